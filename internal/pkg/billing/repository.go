package billing

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ayumbro/Remindy/app/models"
	"github.com/ayumbro/Remindy/internal/pkg/calendar"
)

// OccurrenceFunc maps a zero based occurrence index to its billing date.
type OccurrenceFunc func(n int) (calendar.Date, error)

// Repository provides DB operations used by the billing service.
type Repository interface {
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscription(ctx context.Context, id uint) (*models.Subscription, error)
	ListSubscriptionsByUser(ctx context.Context, userID uint) ([]models.Subscription, error)
	ListNotifiableSubscriptions(ctx context.Context, afterID uint, limit int) ([]models.Subscription, error)
	CountPaidPayments(ctx context.Context, subscriptionID uint) (int, error)
	CountPaidPaymentsBySubscription(ctx context.Context, subscriptionIDs []uint) (map[uint]int, error)
	EarliestPaidPaymentDate(ctx context.Context, subscriptionID uint) (*calendar.Date, error)
	CreatePayment(ctx context.Context, payment *models.PaymentRecord) error
	GetPayment(ctx context.Context, id uint) (*models.PaymentRecord, error)
	UpdatePaymentStatus(ctx context.Context, payment *models.PaymentRecord, occurrence OccurrenceFunc) error
	UpdateBillingConfiguration(ctx context.Context, sub *models.Subscription, occurrence OccurrenceFunc) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *gormRepository) GetSubscription(ctx context.Context, id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).First(&sub, id).Error; err != nil {
		return nil, translate(err, "subscription", id)
	}
	return &sub, nil
}

func (r *gormRepository) ListSubscriptionsByUser(ctx context.Context, userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&subs).Error
	return subs, err
}

func (r *gormRepository) ListNotifiableSubscriptions(ctx context.Context, afterID uint, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("notifications_enabled = ? AND id > ?", true, afterID).
		Order("id").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) CountPaidPayments(ctx context.Context, subscriptionID uint) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PaymentRecord{}).
		Where("subscription_id = ? AND status = ?", subscriptionID, models.PaymentStatusPaid).
		Count(&count).Error
	return int(count), err
}

func (r *gormRepository) CountPaidPaymentsBySubscription(ctx context.Context, subscriptionIDs []uint) (map[uint]int, error) {
	counts := make(map[uint]int, len(subscriptionIDs))
	if len(subscriptionIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		SubscriptionID uint
		Paid           int
	}
	err := r.db.WithContext(ctx).Model(&models.PaymentRecord{}).
		Select("subscription_id, COUNT(*) AS paid").
		Where("subscription_id IN ? AND status = ?", subscriptionIDs, models.PaymentStatusPaid).
		Group("subscription_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.SubscriptionID] = row.Paid
	}
	return counts, nil
}

func (r *gormRepository) EarliestPaidPaymentDate(ctx context.Context, subscriptionID uint) (*calendar.Date, error) {
	var payment models.PaymentRecord
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND status = ?", subscriptionID, models.PaymentStatusPaid).
		Order("payment_date, id").
		Limit(1).
		Find(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment.PaymentDate, nil
}

func (r *gormRepository) CreatePayment(ctx context.Context, payment *models.PaymentRecord) error {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return translate(err, "payment for subscription", payment.SubscriptionID)
	}
	return nil
}

func (r *gormRepository) GetPayment(ctx context.Context, id uint) (*models.PaymentRecord, error) {
	var payment models.PaymentRecord
	if err := r.db.WithContext(ctx).First(&payment, id).Error; err != nil {
		return nil, translate(err, "payment", id)
	}
	return &payment, nil
}

// UpdatePaymentStatus stores the new status and renumbers the subscription's
// paid records in the same transaction.
func (r *gormRepository) UpdatePaymentStatus(ctx context.Context, payment *models.PaymentRecord, occurrence OccurrenceFunc) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":       payment.Status,
			"billing_date": nil,
		}
		if err := tx.Model(&models.PaymentRecord{}).Where("id = ?", payment.ID).Updates(updates).Error; err != nil {
			return err
		}
		return renumberPaid(tx, payment.SubscriptionID, occurrence)
	})
	if err != nil {
		return translate(err, "payment for subscription", payment.SubscriptionID)
	}
	return r.db.WithContext(ctx).First(payment, payment.ID).Error
}

// UpdateBillingConfiguration saves the billing columns and re-keys every paid
// record to the new schedule in one transaction.
func (r *gormRepository) UpdateBillingConfiguration(ctx context.Context, sub *models.Subscription, occurrence OccurrenceFunc) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"billing_cycle":      sub.BillingCycle,
			"billing_interval":   sub.BillingInterval,
			"first_billing_date": sub.FirstBillingDate,
			"billing_cycle_day":  sub.BillingCycleDay,
			"start_date":         sub.StartDate,
			"end_date":           sub.EndDate,
		}
		if err := tx.Model(&models.Subscription{}).Where("id = ?", sub.ID).Updates(updates).Error; err != nil {
			return err
		}
		return renumberPaid(tx, sub.ID, occurrence)
	})
	if err != nil {
		return translate(err, "subscription", sub.ID)
	}
	return nil
}

// renumberPaid assigns occurrence 0..k-1 to the k paid records of a
// subscription, keeping their current order. Keys are cleared first so the
// unique index never sees a transient duplicate.
func renumberPaid(tx *gorm.DB, subscriptionID uint, occurrence OccurrenceFunc) error {
	var paid []models.PaymentRecord
	err := tx.Where("subscription_id = ? AND status = ?", subscriptionID, models.PaymentStatusPaid).
		Order("COALESCE(billing_date, payment_date), payment_date, id").
		Find(&paid).Error
	if err != nil {
		return err
	}
	if len(paid) == 0 {
		return nil
	}

	if err := tx.Model(&models.PaymentRecord{}).
		Where("subscription_id = ? AND billing_date IS NOT NULL", subscriptionID).
		Update("billing_date", nil).Error; err != nil {
		return err
	}

	for i, p := range paid {
		d, err := occurrence(i)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.PaymentRecord{}).Where("id = ?", p.ID).Update("billing_date", d).Error; err != nil {
			return err
		}
	}
	return nil
}

func translate(err error, what string, id uint) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &ConflictError{SubscriptionID: id, Reason: "billing date already settled"}
	default:
		return err
	}
}
