package billing

import (
	"github.com/shopspring/decimal"

	"github.com/ayumbro/Remindy/internal/pkg/calendar"
)

// NewSubscriptionInput is the payload for creating a subscription.
type NewSubscriptionInput struct {
	UserID               uint            `json:"user_id" validate:"required"`
	Name                 string          `json:"name" validate:"required,min=1,max=150"`
	Description          string          `json:"description" validate:"max=2000"`
	Price                decimal.Decimal `json:"price"`
	Currency             string          `json:"currency" validate:"required,len=3,alpha"`
	PaymentMethodID      *uint           `json:"payment_method_id"`
	NotificationsEnabled *bool           `json:"notifications_enabled"`
	NotifyDaysBefore     *int            `json:"notify_days_before" validate:"omitempty,min=0,max=365"`
	BillingCycle         string          `json:"billing_cycle" validate:"required"`
	BillingInterval      int             `json:"billing_interval" validate:"omitempty,min=1"`
	FirstBillingDate     calendar.Date   `json:"first_billing_date"`
	StartDate            calendar.Date   `json:"start_date"`
	EndDate              *calendar.Date  `json:"end_date"`
}

// RecordPaymentInput is a manually entered payment.
type RecordPaymentInput struct {
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency" validate:"omitempty,len=3,alpha"`
	PaymentDate     calendar.Date   `json:"payment_date"`
	Status          string          `json:"status" validate:"omitempty,oneof=paid pending failed refunded"`
	PaymentMethodID *uint           `json:"payment_method_id"`
	Notes           string          `json:"notes" validate:"max=2000"`
}

// UpdateBillingInput changes the billing configuration. Nil fields keep
// their current value; ClearEndDate removes an end date.
type UpdateBillingInput struct {
	BillingCycle     *string        `json:"billing_cycle"`
	BillingInterval  *int           `json:"billing_interval" validate:"omitempty,min=1"`
	FirstBillingDate *calendar.Date `json:"first_billing_date"`
	StartDate        *calendar.Date `json:"start_date"`
	EndDate          *calendar.Date `json:"end_date"`
	ClearEndDate     bool           `json:"clear_end_date"`
}

// StatusReport is the computed billing state of one subscription.
type StatusReport struct {
	SubscriptionID    uint            `json:"subscription_id"`
	NextBillingDate   *calendar.Date  `json:"next_billing_date"`
	Status            Status          `json:"status"`
	IsOverdue         bool            `json:"is_overdue"`
	IsUpcoming        bool            `json:"is_upcoming"`
	PaidCount         int             `json:"paid_count"`
	MonthlyEquivalent decimal.Decimal `json:"monthly_equivalent"`
	Currency          string          `json:"currency"`
	Today             calendar.Date   `json:"today"`
}
