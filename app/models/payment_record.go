package models

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ayumbro/Remindy/internal/pkg/calendar"
)

const (
	PaymentStatusPaid     = "paid"
	PaymentStatusPending  = "pending"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// PaymentStatuses lists every accepted payment status.
var PaymentStatuses = []string{PaymentStatusPaid, PaymentStatusPending, PaymentStatusFailed, PaymentStatusRefunded}

// PaymentRecord is a single payment against a subscription.
//
// BillingDate is the occurrence a paid record settles. It is NULL for every
// other status, so the unique index only ever holds one paid record per
// occurrence.
type PaymentRecord struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UUID            string          `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"`
	SubscriptionID  uint            `gorm:"not null;index:ux_payment_records_subscription_billing_date,unique,priority:1;index:idx_payment_records_subscription_status,priority:1" json:"subscription_id" validate:"required"`
	Subscription    *Subscription   `gorm:"foreignKey:SubscriptionID;constraint:OnDelete:CASCADE" json:"-"`
	Amount          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency        string          `gorm:"type:char(3);not null" json:"currency" validate:"required,len=3,uppercase"`
	PaymentDate     calendar.Date   `gorm:"not null;index" json:"payment_date"`
	Status          string          `gorm:"type:varchar(16);not null;index:idx_payment_records_subscription_status,priority:2" json:"status" validate:"required,oneof=paid pending failed refunded"`
	PaymentMethodID *uint           `json:"payment_method_id,omitempty"`
	Notes           string          `gorm:"type:text" json:"notes,omitempty" validate:"max=2000"`
	BillingDate     *calendar.Date  `gorm:"index:ux_payment_records_subscription_billing_date,unique,priority:2" json:"billing_date,omitempty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPaid reports whether the record counts towards the billing schedule.
func (p *PaymentRecord) IsPaid() bool {
	return p.Status == PaymentStatusPaid
}

func (p *PaymentRecord) Validate() error {
	v := validator.New()
	if err := v.Struct(p); err != nil {
		return err
	}
	if p.Amount.IsNegative() {
		return errors.New("amount must not be negative")
	}
	if p.PaymentDate.IsZero() {
		return errors.New("payment_date is required")
	}
	if !p.IsPaid() && p.BillingDate != nil {
		return errors.New("billing_date is only set on paid records")
	}

	return nil
}

// BeforeCreate assigns the public UUID.
func (p *PaymentRecord) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == "" {
		p.UUID = uuid.New().String()
	}

	return p.Validate()
}
