package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayumbro/Remindy/internal/pkg/calendar"
)

func validSubscription() *Subscription {
	day := 31
	return &Subscription{
		UserID:           7,
		Name:             "Streaming",
		Price:            decimal.RequireFromString("9.99"),
		Currency:         "EUR",
		NotifyDaysBefore: DefaultNotifyDaysBefore,
		BillingCycle:     "monthly",
		BillingInterval:  1,
		FirstBillingDate: calendar.MustParse("2024-01-31"),
		BillingCycleDay:  &day,
	}
}

func TestSubscriptionValidate(t *testing.T) {
	require.NoError(t, validSubscription().Validate())

	s := validSubscription()
	s.Currency = "eur"
	assert.Error(t, s.Validate())

	s = validSubscription()
	s.BillingCycle = "fortnightly"
	assert.Error(t, s.Validate())

	s = validSubscription()
	s.Price = decimal.RequireFromString("-1")
	assert.Error(t, s.Validate())

	s = validSubscription()
	s.FirstBillingDate = calendar.Date{}
	assert.Error(t, s.Validate())

	s = validSubscription()
	s.Name = ""
	assert.Error(t, s.Validate())
}

func TestSubscriptionBeforeCreateDefaultsStartDate(t *testing.T) {
	s := validSubscription()
	require.NoError(t, s.BeforeCreate(nil))
	assert.Equal(t, s.FirstBillingDate, s.StartDate)
}

func TestPaymentRecordBeforeCreate(t *testing.T) {
	billing := calendar.MustParse("2024-01-31")
	p := &PaymentRecord{
		SubscriptionID: 1,
		Amount:         decimal.RequireFromString("9.99"),
		Currency:       "EUR",
		PaymentDate:    billing,
		Status:         PaymentStatusPaid,
		BillingDate:    &billing,
	}

	require.NoError(t, p.BeforeCreate(nil))
	assert.Len(t, p.UUID, 36)
	assert.True(t, p.IsPaid())

	p.UUID = "fixed"
	require.NoError(t, p.BeforeCreate(nil))
	assert.Equal(t, "fixed", p.UUID)
}

func TestPaymentRecordValidate(t *testing.T) {
	billing := calendar.MustParse("2024-01-31")
	p := &PaymentRecord{
		SubscriptionID: 1,
		Amount:         decimal.RequireFromString("9.99"),
		Currency:       "EUR",
		PaymentDate:    billing,
		Status:         PaymentStatusPending,
		BillingDate:    &billing,
	}
	assert.Error(t, p.Validate(), "pending record must not carry a billing date")

	p.BillingDate = nil
	assert.NoError(t, p.Validate())

	p.Status = "chargeback"
	assert.Error(t, p.Validate())
}
