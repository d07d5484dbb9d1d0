package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ayumbro/Remindy/app/models"
	"github.com/ayumbro/Remindy/internal/pkg/cache"
	"github.com/ayumbro/Remindy/internal/pkg/calendar"
)

const (
	DefaultLockTTL         = 10 * time.Second
	DefaultForecastWorkers = 4
	DefaultForecastTTL     = 5 * time.Minute
)

// Cache is the key/value store used for forecast results.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
}

// Metrics receives billing events. All methods must be safe for concurrent use.
type Metrics interface {
	PaymentRecorded(currency, source string)
	Conflict(operation string)
	ObserveForecast(d time.Duration)
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Locker          cache.Locker
	Cache           Cache
	Clock           Clock
	Metrics         Metrics
	LockTTL         time.Duration
	ForecastWorkers int
	ForecastTTL     time.Duration
}

// Service orchestrates billing reads and payment writes for subscriptions.
type Service struct {
	repo            Repository
	locker          cache.Locker
	cache           Cache
	clock           Clock
	metrics         Metrics
	lockTTL         time.Duration
	forecastWorkers int
	forecastTTL     time.Duration
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, opts Options) *Service {
	s := &Service{
		repo:            repo,
		locker:          opts.Locker,
		cache:           opts.Cache,
		clock:           opts.Clock,
		metrics:         opts.Metrics,
		lockTTL:         opts.LockTTL,
		forecastWorkers: opts.ForecastWorkers,
		forecastTTL:     opts.ForecastTTL,
	}
	if s.locker == nil {
		s.locker = cache.NewInMemoryLocker()
	}
	if s.cache == nil {
		s.cache = noCache{}
	}
	if s.clock == nil {
		s.clock = SystemClock{Location: time.UTC}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.lockTTL <= 0 {
		s.lockTTL = DefaultLockTTL
	}
	if s.forecastWorkers <= 0 {
		s.forecastWorkers = DefaultForecastWorkers
	}
	if s.forecastTTL <= 0 {
		s.forecastTTL = DefaultForecastTTL
	}
	return s
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, opts Options) *Service {
	return NewService(NewRepository(db), opts)
}

// Today returns the current date of the service clock.
func (s *Service) Today() calendar.Date {
	return s.clock.Today()
}

// CreateSubscription validates the input, captures the billing anchor day and
// stores the subscription.
func (s *Service) CreateSubscription(ctx context.Context, in NewSubscriptionInput) (*models.Subscription, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.Price.IsNegative() {
		return nil, configErr("price", "must not be negative")
	}
	cycle, err := ParseCycle(in.BillingCycle)
	if err != nil {
		return nil, err
	}
	interval := in.BillingInterval
	if interval == 0 {
		interval = 1
	}
	cfg, err := NewConfig(cycle, interval, in.FirstBillingDate, in.StartDate, in.EndDate)
	if err != nil {
		return nil, err
	}

	sub := &models.Subscription{
		UserID:               in.UserID,
		Name:                 in.Name,
		Description:          in.Description,
		Price:                in.Price,
		Currency:             normalizeCurrency(in.Currency),
		PaymentMethodID:      in.PaymentMethodID,
		NotificationsEnabled: true,
		NotifyDaysBefore:     models.DefaultNotifyDaysBefore,
	}
	if in.NotificationsEnabled != nil {
		sub.NotificationsEnabled = *in.NotificationsEnabled
	}
	if in.NotifyDaysBefore != nil {
		sub.NotifyDaysBefore = *in.NotifyDaysBefore
	}
	cfg.Apply(sub)

	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	s.invalidateForecast(ctx, sub.UserID)
	return sub, nil
}

// GetSubscription loads a subscription by id.
func (s *Service) GetSubscription(ctx context.Context, id uint) (*models.Subscription, error) {
	return s.repo.GetSubscription(ctx, id)
}

// SubscriptionStatus computes the billing state of a subscription as of today.
func (s *Service) SubscriptionStatus(ctx context.Context, id uint) (*StatusReport, error) {
	sub, cfg, paid, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	today := s.clock.Today()

	next, err := NextBillingDate(cfg, paid, today)
	if err != nil {
		return nil, err
	}
	status, err := StatusOf(cfg, paid, today, sub.NotifyDaysBefore)
	if err != nil {
		return nil, err
	}
	perMonth, err := MonthlyEquivalent(cfg, sub.Price)
	if err != nil {
		return nil, err
	}

	return &StatusReport{
		SubscriptionID:    sub.ID,
		NextBillingDate:   next,
		Status:            status,
		IsOverdue:         status == StatusOverdue,
		IsUpcoming:        status == StatusUpcoming,
		PaidCount:         paid,
		MonthlyEquivalent: perMonth,
		Currency:          sub.Currency,
		Today:             today,
	}, nil
}

// UpcomingBillingDates lists the next count unpaid occurrences. Occurrences
// after the end date are left out.
func (s *Service) UpcomingBillingDates(ctx context.Context, id uint, count int) ([]calendar.Date, error) {
	_, cfg, paid, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := NextBillingDate(cfg, paid, s.clock.Today())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return []calendar.Date{}, nil
	}

	dates, err := BillingDates(cfg, paid, count)
	if err != nil {
		return nil, err
	}
	if cfg.EndDate != nil {
		for i, d := range dates {
			if d.After(*cfg.EndDate) {
				return dates[:i], nil
			}
		}
	}
	return dates, nil
}

// MarkAsPaid records a full payment for the next billing date. Concurrent
// calls for the same subscription settle the occurrence exactly once; the
// losers get a ConflictError.
func (s *Service) MarkAsPaid(ctx context.Context, id uint) (*models.PaymentRecord, error) {
	var payment *models.PaymentRecord
	err := s.withLock(ctx, id, "mark_paid", func() error {
		sub, cfg, paid, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		next, err := DueBillingDate(cfg, paid, s.clock.Today())
		if err != nil {
			return err
		}
		if next == nil {
			return fmt.Errorf("subscription %d: %w", id, ErrNoBillingDue)
		}

		billingDate := *next
		payment = &models.PaymentRecord{
			SubscriptionID:  sub.ID,
			Amount:          sub.Price,
			Currency:        sub.Currency,
			PaymentDate:     billingDate,
			Status:          models.PaymentStatusPaid,
			PaymentMethodID: sub.PaymentMethodID,
			BillingDate:     &billingDate,
		}
		if err := s.repo.CreatePayment(ctx, payment); err != nil {
			return err
		}
		s.metrics.PaymentRecorded(payment.Currency, "mark_paid")
		s.invalidateForecast(ctx, sub.UserID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// RecordPayment stores a manually entered payment. A paid record settles the
// next billing date the same way MarkAsPaid does.
func (s *Service) RecordPayment(ctx context.Context, id uint, in RecordPaymentInput) (*models.PaymentRecord, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.Amount.IsNegative() {
		return nil, configErr("amount", "must not be negative")
	}
	status, err := normalizePaymentStatus(in.Status)
	if err != nil {
		return nil, err
	}

	var payment *models.PaymentRecord
	err = s.withLock(ctx, id, "record_payment", func() error {
		sub, cfg, paid, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		today := s.clock.Today()

		payment = &models.PaymentRecord{
			SubscriptionID:  sub.ID,
			Amount:          in.Amount,
			Currency:        normalizeCurrency(in.Currency),
			PaymentDate:     in.PaymentDate,
			Status:          status,
			PaymentMethodID: in.PaymentMethodID,
			Notes:           in.Notes,
		}
		if payment.Amount.IsZero() {
			payment.Amount = sub.Price
		}
		if payment.Currency == "" {
			payment.Currency = sub.Currency
		}
		if payment.PaymentDate.IsZero() {
			payment.PaymentDate = today
		}
		if payment.PaymentMethodID == nil {
			payment.PaymentMethodID = sub.PaymentMethodID
		}

		if payment.IsPaid() {
			next, err := DueBillingDate(cfg, paid, today)
			if err != nil {
				return err
			}
			if next == nil {
				return fmt.Errorf("subscription %d: %w", id, ErrNoBillingDue)
			}
			payment.BillingDate = next
		}

		if err := s.repo.CreatePayment(ctx, payment); err != nil {
			return err
		}
		if payment.IsPaid() {
			s.metrics.PaymentRecorded(payment.Currency, "manual")
			s.invalidateForecast(ctx, sub.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// UpdatePaymentStatus changes the status of a payment. Paid records are
// re-keyed to occurrences 0..k-1 afterwards, so refunding a payment re-opens
// the latest occurrence and the schedule never has gaps.
func (s *Service) UpdatePaymentStatus(ctx context.Context, paymentID uint, status string) (*models.PaymentRecord, error) {
	status, err := normalizePaymentStatus(status)
	if err != nil {
		return nil, err
	}
	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	err = s.withLock(ctx, payment.SubscriptionID, "update_payment_status", func() error {
		// re-read under the lock
		current, err := s.repo.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		payment = current
		if payment.Status == status {
			return nil
		}

		sub, cfg, paid, err := s.load(ctx, payment.SubscriptionID)
		if err != nil {
			return err
		}
		if status == models.PaymentStatusPaid {
			next, err := DueBillingDate(cfg, paid, s.clock.Today())
			if err != nil {
				return err
			}
			if next == nil {
				return fmt.Errorf("subscription %d: %w", sub.ID, ErrNoBillingDue)
			}
		}

		payment.Status = status
		if err := s.repo.UpdatePaymentStatus(ctx, payment, occurrences(cfg)); err != nil {
			return err
		}
		if status == models.PaymentStatusPaid {
			s.metrics.PaymentRecorded(payment.Currency, "status_change")
		}
		s.invalidateForecast(ctx, sub.UserID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// UpdateBillingConfiguration edits the billing configuration. The edit is
// rejected before any write when the new first billing date lies after the
// earliest paid payment. The anchor day is only re-captured when the first
// billing date changes.
func (s *Service) UpdateBillingConfiguration(ctx context.Context, id uint, in UpdateBillingInput) (*models.Subscription, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var sub *models.Subscription
	err := s.withLock(ctx, id, "update_billing", func() error {
		var err error
		sub, err = s.repo.GetSubscription(ctx, id)
		if err != nil {
			return err
		}

		cfg, firstChanged, err := mergeBillingInput(sub, in)
		if err != nil {
			return err
		}

		paid, err := s.repo.CountPaidPayments(ctx, id)
		if err != nil {
			return err
		}
		if cfg.Cycle == CycleOneTime && paid > 1 {
			return &InvariantViolation{
				Field:  "billing_cycle",
				Reason: fmt.Sprintf("one-time billing allows a single payment, %d are recorded", paid),
			}
		}
		if firstChanged {
			earliest, err := s.repo.EarliestPaidPaymentDate(ctx, id)
			if err != nil {
				return err
			}
			if earliest != nil && cfg.FirstBillingDate.After(*earliest) {
				return &InvariantViolation{
					Field:  "first_billing_date",
					Reason: fmt.Sprintf("%s is after the earliest paid payment on %s", cfg.FirstBillingDate, *earliest),
				}
			}
		}

		cfg.Apply(sub)
		if err := s.repo.UpdateBillingConfiguration(ctx, sub, occurrences(cfg)); err != nil {
			return err
		}
		s.invalidateForecast(ctx, sub.UserID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// mergeBillingInput applies the edit on top of the stored configuration.
func mergeBillingInput(sub *models.Subscription, in UpdateBillingInput) (Config, bool, error) {
	cycleName := sub.BillingCycle
	if in.BillingCycle != nil {
		cycleName = *in.BillingCycle
	}
	cycle, err := ParseCycle(cycleName)
	if err != nil {
		return Config{}, false, err
	}

	cfg := Config{
		Cycle:            cycle,
		Interval:         sub.BillingInterval,
		FirstBillingDate: sub.FirstBillingDate,
		StartDate:        sub.StartDate,
		EndDate:          sub.EndDate,
	}
	if in.BillingInterval != nil {
		cfg.Interval = *in.BillingInterval
	}

	firstChanged := in.FirstBillingDate != nil && !in.FirstBillingDate.Equal(sub.FirstBillingDate)
	if firstChanged {
		cfg.FirstBillingDate = *in.FirstBillingDate
	}

	switch {
	case in.StartDate != nil:
		cfg.StartDate = *in.StartDate
	case cfg.StartDate.IsZero() || cfg.StartDate.After(cfg.FirstBillingDate):
		cfg.StartDate = cfg.FirstBillingDate
	}

	if in.ClearEndDate {
		cfg.EndDate = nil
	} else if in.EndDate != nil {
		end := *in.EndDate
		cfg.EndDate = &end
	}

	if cycle.UsesCycleDay() {
		if firstChanged || sub.BillingCycleDay == nil {
			day := cfg.FirstBillingDate.Day
			cfg.CycleDay = &day
		} else {
			day := *sub.BillingCycleDay
			cfg.CycleDay = &day
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, false, err
	}
	return cfg, firstChanged, nil
}

// Forecast sums what a user's subscriptions bill in month, per currency.
// Results are cached until the next payment write for that user.
func (s *Service) Forecast(ctx context.Context, userID uint, month calendar.Month) (*Forecast, error) {
	today := s.clock.Today()
	key := s.forecastKey(ctx, userID, month, today)

	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		log.Warnf("[Billing] Forecast cache read failed for user %d: %v", userID, err)
	} else if ok {
		var cached Forecast
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return &cached, nil
		}
		log.Warnf("[Billing] Dropping unreadable forecast cache entry %s", key)
	}

	start := time.Now()
	subs, err := s.repo.ListSubscriptionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	ids := make([]uint, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.ID)
	}
	counts, err := s.repo.CountPaidPaymentsBySubscription(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("count paid payments: %w", err)
	}

	items := make([]ForecastItem, 0, len(subs))
	for i := range subs {
		sub := &subs[i]
		cfg, err := ConfigOf(sub)
		if err != nil {
			return nil, fmt.Errorf("subscription %d: %w", sub.ID, err)
		}
		items = append(items, ForecastItem{
			SubscriptionID: sub.ID,
			Name:           sub.Name,
			Config:         cfg,
			Price:          sub.Price,
			Currency:       sub.Currency,
			PaidCount:      counts[sub.ID],
		})
	}

	forecast, err := MonthlyForecast(ctx, items, month, today, s.forecastWorkers)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveForecast(time.Since(start))

	if raw, err := json.Marshal(forecast); err == nil {
		if err := s.cache.Set(ctx, key, string(raw), s.forecastTTL); err != nil {
			log.Warnf("[Billing] Forecast cache write failed for user %d: %v", userID, err)
		}
	}
	return forecast, nil
}

// load reads a subscription with its configuration and paid count.
func (s *Service) load(ctx context.Context, id uint) (*models.Subscription, Config, int, error) {
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, Config{}, 0, err
	}
	cfg, err := ConfigOf(sub)
	if err != nil {
		return nil, Config{}, 0, fmt.Errorf("subscription %d: %w", id, err)
	}
	paid, err := s.repo.CountPaidPayments(ctx, id)
	if err != nil {
		return nil, Config{}, 0, fmt.Errorf("count paid payments: %w", err)
	}
	return sub, cfg, paid, nil
}

func (s *Service) withLock(ctx context.Context, subscriptionID uint, operation string, fn func() error) error {
	release, ok, err := s.locker.TryAcquire(ctx, LockKey(subscriptionID), s.lockTTL)
	if err != nil {
		return err
	}
	if !ok {
		s.metrics.Conflict(operation)
		return &ConflictError{SubscriptionID: subscriptionID, Reason: "another update is in progress"}
	}
	defer release()

	err = fn()
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		s.metrics.Conflict(operation)
	}
	return err
}

func (s *Service) forecastKey(ctx context.Context, userID uint, month calendar.Month, today calendar.Date) string {
	version := "0"
	if v, ok, err := s.cache.Get(ctx, forecastVersionKey(userID)); err == nil && ok {
		version = v
	}
	return fmt.Sprintf("forecast:%d:v%s:%s:%s", userID, version, month, today)
}

func (s *Service) invalidateForecast(ctx context.Context, userID uint) {
	if _, err := s.cache.Incr(ctx, forecastVersionKey(userID)); err != nil {
		log.Warnf("[Billing] Failed to invalidate forecast cache for user %d: %v", userID, err)
	}
}

// LockKey is the lock guarding writes to one subscription.
func LockKey(subscriptionID uint) string {
	return fmt.Sprintf("lock:subscription:%d", subscriptionID)
}

func forecastVersionKey(userID uint) string {
	return fmt.Sprintf("forecast:version:%d", userID)
}

func occurrences(cfg Config) OccurrenceFunc {
	return func(n int) (calendar.Date, error) {
		return NthBillingDate(cfg, n)
	}
}

type noCache struct{}

func (noCache) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (noCache) Set(context.Context, string, string, time.Duration) error { return nil }
func (noCache) Incr(context.Context, string) (int64, error) { return 0, nil }

type nopMetrics struct{}

func (nopMetrics) PaymentRecorded(string, string) {}
func (nopMetrics) Conflict(string) {}
func (nopMetrics) ObserveForecast(time.Duration) {}
