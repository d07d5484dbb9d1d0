package models

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ayumbro/Remindy/internal/pkg/calendar"
)

const DefaultNotifyDaysBefore = 3

// Subscription is a recurring (or one-time) charge a user wants to keep
// track of. The billing_* columns together with start/end date form the
// billing configuration; the next billing date is derived from it and the
// number of paid payments, it is never stored.
type Subscription struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`
	UserID               uint            `gorm:"not null;index:idx_subscriptions_user_id" json:"user_id" validate:"required"`
	Name                 string          `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=1,max=150"`
	Description          string          `gorm:"type:text" json:"description" validate:"max=2000"`
	Price                decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Currency             string          `gorm:"type:char(3);not null" json:"currency" validate:"required,len=3,uppercase"`
	PaymentMethodID      *uint           `gorm:"index" json:"payment_method_id,omitempty"`
	NotificationsEnabled bool            `gorm:"not null;index:idx_subscriptions_notifications" json:"notifications_enabled"`
	NotifyDaysBefore     int             `gorm:"not null" json:"notify_days_before" validate:"min=0,max=365"`
	BillingCycle         string          `gorm:"type:varchar(16);not null" json:"billing_cycle" validate:"required,oneof=daily weekly monthly quarterly yearly one-time"`
	BillingInterval      int             `gorm:"not null;default:1" json:"billing_interval" validate:"min=1"`
	FirstBillingDate     calendar.Date   `gorm:"not null" json:"first_billing_date"`
	BillingCycleDay      *int            `gorm:"type:tinyint" json:"billing_cycle_day,omitempty" validate:"omitempty,min=1,max=31"`
	StartDate            calendar.Date   `gorm:"not null" json:"start_date"`
	EndDate              *calendar.Date  `json:"end_date,omitempty"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt            gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (s *Subscription) Validate() error {
	v := validator.New()
	if err := v.Struct(s); err != nil {
		return err
	}
	if s.Price.IsNegative() {
		return errors.New("price must not be negative")
	}
	if s.FirstBillingDate.IsZero() {
		return errors.New("first_billing_date is required")
	}

	return nil
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.StartDate.IsZero() {
		s.StartDate = s.FirstBillingDate
	}

	return s.Validate()
}
