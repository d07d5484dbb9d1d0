package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ayumbro/Remindy/app/models"
	"github.com/ayumbro/Remindy/internal/pkg/calendar"
)

// newSQLiteRepository opens a private in-memory database with the same error
// translation the MySQL setup uses.
func newSQLiteRepository(t *testing.T) (*gormRepository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection, otherwise every connection gets its own empty database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Subscription{}, &models.PaymentRecord{}))
	return &gormRepository{db: db}, db
}

func storeMonthly(t *testing.T, repo *gormRepository, first string) *models.Subscription {
	t.Helper()
	date := calendar.MustParse(first)
	day := date.Day
	sub := &models.Subscription{
		UserID:           1,
		Name:             "Streaming",
		Price:            decimal.RequireFromString("9.99"),
		Currency:         "EUR",
		NotifyDaysBefore: models.DefaultNotifyDaysBefore,
		BillingCycle:     string(CycleMonthly),
		BillingInterval:  1,
		FirstBillingDate: date,
		BillingCycleDay:  &day,
	}
	require.NoError(t, repo.CreateSubscription(context.Background(), sub))
	return sub
}

func storePayment(t *testing.T, repo *gormRepository, subscriptionID uint, status, paymentDate string) *models.PaymentRecord {
	t.Helper()
	payment := &models.PaymentRecord{
		SubscriptionID: subscriptionID,
		Amount:         decimal.RequireFromString("9.99"),
		Currency:       "EUR",
		PaymentDate:    calendar.MustParse(paymentDate),
		Status:         status,
	}
	if status == models.PaymentStatusPaid {
		billingDate := payment.PaymentDate
		payment.BillingDate = &billingDate
	}
	require.NoError(t, repo.CreatePayment(context.Background(), payment))
	return payment
}

func storedPaidDates(t *testing.T, db *gorm.DB, subscriptionID uint) []string {
	t.Helper()
	var paid []models.PaymentRecord
	require.NoError(t, db.Where("subscription_id = ? AND status = ?", subscriptionID, models.PaymentStatusPaid).
		Order("billing_date").Find(&paid).Error)

	out := make([]string, 0, len(paid))
	for _, p := range paid {
		require.NotNil(t, p.BillingDate, "paid record %d has no billing date", p.ID)
		out = append(out, p.BillingDate.String())
	}
	return out
}

func TestTranslateMapsGormErrors(t *testing.T) {
	boom := errors.New("connection reset")

	tests := []struct {
		name         string
		err          error
		wantNotFound bool
		wantConflict bool
	}{
		{"record not found", gorm.ErrRecordNotFound, true, false},
		{"wrapped record not found", fmt.Errorf("first: %w", gorm.ErrRecordNotFound), true, false},
		{"duplicated key", gorm.ErrDuplicatedKey, false, true},
		{"wrapped duplicated key", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), false, true},
		{"other error", boom, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.err, "payment for subscription", 7)

			assert.Equal(t, tt.wantNotFound, errors.Is(got, ErrNotFound))
			assert.Equal(t, tt.wantConflict, errors.Is(got, ErrConcurrencyConflict))

			var conflict *ConflictError
			if tt.wantConflict {
				require.True(t, errors.As(got, &conflict))
				assert.Equal(t, uint(7), conflict.SubscriptionID)
				assert.True(t, conflict.Retryable())
			}
			if tt.wantNotFound {
				assert.Contains(t, got.Error(), "payment for subscription 7")
			}
			if !tt.wantNotFound && !tt.wantConflict {
				assert.Equal(t, boom, got)
			}
		})
	}
}

func TestGormRepositoryMissingRowsAreNotFound(t *testing.T) {
	repo, _ := newSQLiteRepository(t)
	ctx := context.Background()

	_, err := repo.GetSubscription(ctx, 99)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = repo.GetPayment(ctx, 99)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGormRepositoryDuplicateBillingDateIsConflict(t *testing.T) {
	repo, db := newSQLiteRepository(t)
	ctx := context.Background()
	sub := storeMonthly(t, repo, "2024-01-31")

	storePayment(t, repo, sub.ID, models.PaymentStatusPaid, "2024-01-31")

	billingDate := calendar.MustParse("2024-01-31")
	duplicate := &models.PaymentRecord{
		SubscriptionID: sub.ID,
		Amount:         decimal.RequireFromString("9.99"),
		Currency:       "EUR",
		PaymentDate:    calendar.MustParse("2024-02-01"),
		Status:         models.PaymentStatusPaid,
		BillingDate:    &billingDate,
	}
	err := repo.CreatePayment(ctx, duplicate)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConcurrencyConflict))

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, sub.ID, conflict.SubscriptionID)

	// unsettled records carry no billing date and never collide
	storePayment(t, repo, sub.ID, models.PaymentStatusPending, "2024-02-29")
	storePayment(t, repo, sub.ID, models.PaymentStatusPending, "2024-02-29")

	paid, err := repo.CountPaidPayments(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, paid)
	assert.Equal(t, []string{"2024-01-31"}, storedPaidDates(t, db, sub.ID))
}

func TestGormRepositoryCountPaidPaymentsBySubscription(t *testing.T) {
	repo, _ := newSQLiteRepository(t)
	ctx := context.Background()

	first := storeMonthly(t, repo, "2024-01-31")
	storePayment(t, repo, first.ID, models.PaymentStatusPaid, "2024-01-31")
	storePayment(t, repo, first.ID, models.PaymentStatusPaid, "2024-02-29")
	storePayment(t, repo, first.ID, models.PaymentStatusPending, "2024-03-31")

	second := storeMonthly(t, repo, "2024-01-15")
	storePayment(t, repo, second.ID, models.PaymentStatusPaid, "2024-01-15")
	storePayment(t, repo, second.ID, models.PaymentStatusFailed, "2024-02-15")

	unpaid := storeMonthly(t, repo, "2024-01-01")

	counts, err := repo.CountPaidPaymentsBySubscription(ctx, []uint{first.ID, second.ID, unpaid.ID})
	require.NoError(t, err)
	assert.Equal(t, map[uint]int{first.ID: 2, second.ID: 1}, counts)

	counts, err = repo.CountPaidPaymentsBySubscription(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, counts)

	paid, err := repo.CountPaidPayments(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, paid)
}

func TestGormRepositoryUpdatePaymentStatusRenumbersPaid(t *testing.T) {
	repo, db := newSQLiteRepository(t)
	ctx := context.Background()
	sub := storeMonthly(t, repo, "2024-01-31")
	occurrence := occurrences(mustConfig(t, CycleMonthly, 1, "2024-01-31"))

	january := storePayment(t, repo, sub.ID, models.PaymentStatusPaid, "2024-01-31")
	storePayment(t, repo, sub.ID, models.PaymentStatusPaid, "2024-02-29")
	storePayment(t, repo, sub.ID, models.PaymentStatusPaid, "2024-03-31")

	january.Status = models.PaymentStatusRefunded
	require.NoError(t, repo.UpdatePaymentStatus(ctx, january, occurrence))
	assert.Equal(t, models.PaymentStatusRefunded, january.Status)
	assert.Nil(t, january.BillingDate)
	assert.Equal(t, []string{"2024-01-31", "2024-02-29"}, storedPaidDates(t, db, sub.ID))

	january.Status = models.PaymentStatusPaid
	require.NoError(t, repo.UpdatePaymentStatus(ctx, january, occurrence))
	require.NotNil(t, january.BillingDate)
	assert.Equal(t, "2024-01-31", january.BillingDate.String())
	assert.Equal(t, []string{"2024-01-31", "2024-02-29", "2024-03-31"}, storedPaidDates(t, db, sub.ID))
}

func TestGormRepositoryUpdateBillingConfigurationRenumbers(t *testing.T) {
	repo, db := newSQLiteRepository(t)
	ctx := context.Background()
	sub := storeMonthly(t, repo, "2024-01-31")
	storePayment(t, repo, sub.ID, models.PaymentStatusPaid, "2024-01-31")
	storePayment(t, repo, sub.ID, models.PaymentStatusPaid, "2024-02-29")

	sub.BillingCycle = string(CycleWeekly)
	sub.FirstBillingDate = calendar.MustParse("2024-01-15")
	sub.StartDate = sub.FirstBillingDate
	sub.BillingCycleDay = nil
	weekly := occurrences(mustConfig(t, CycleWeekly, 1, "2024-01-15"))
	require.NoError(t, repo.UpdateBillingConfiguration(ctx, sub, weekly))

	stored, err := repo.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, string(CycleWeekly), stored.BillingCycle)
	assert.Equal(t, "2024-01-15", stored.FirstBillingDate.String())
	assert.Nil(t, stored.BillingCycleDay)
	assert.Equal(t, []string{"2024-01-15", "2024-01-22"}, storedPaidDates(t, db, sub.ID))

	earliest, err := repo.EarliestPaidPaymentDate(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, earliest)
	assert.Equal(t, "2024-01-31", earliest.String())
}

func TestGormRepositoryRenumberFailureRollsBack(t *testing.T) {
	repo, db := newSQLiteRepository(t)
	ctx := context.Background()
	sub := storeMonthly(t, repo, "2024-01-31")
	storePayment(t, repo, sub.ID, models.PaymentStatusPaid, "2024-01-31")
	storePayment(t, repo, sub.ID, models.PaymentStatusPaid, "2024-02-29")

	boom := errors.New("schedule unavailable")
	failing := func(n int) (calendar.Date, error) {
		if n > 0 {
			return calendar.Date{}, boom
		}
		return calendar.MustParse("2024-01-15"), nil
	}

	sub.BillingCycle = string(CycleWeekly)
	err := repo.UpdateBillingConfiguration(ctx, sub, failing)
	assert.ErrorIs(t, err, boom)

	stored, err := repo.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, string(CycleMonthly), stored.BillingCycle)
	assert.Equal(t, []string{"2024-01-31", "2024-02-29"}, storedPaidDates(t, db, sub.ID))
}
