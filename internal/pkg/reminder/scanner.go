package reminder

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ayumbro/Remindy/app/models"
	"github.com/ayumbro/Remindy/internal/pkg/billing"
)

const (
	DefaultPageSize = 200
	DedupTTL        = 24 * time.Hour
)

// Source lists the subscriptions a scan looks at. billing.Repository
// satisfies it.
type Source interface {
	ListNotifiableSubscriptions(ctx context.Context, afterID uint, limit int) ([]models.Subscription, error)
	CountPaidPaymentsBySubscription(ctx context.Context, subscriptionIDs []uint) (map[uint]int, error)
}

// Deduper remembers which reminders were already sent. cache.Store
// satisfies it.
type Deduper interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Metrics receives scan outcomes.
type Metrics interface {
	ReminderSent(kind string)
	ReminderFailed()
	ReminderDeduplicated()
}

// Result summarizes one scan.
type Result struct {
	Scanned      int
	Published    int
	Deduplicated int
	Failed       int
	Invalid      int
}

// Scanner turns billing status into reminder events.
type Scanner struct {
	source    Source
	publisher Publisher
	dedup     Deduper
	clock     billing.Clock
	metrics   Metrics
	pageSize  int
}

// ScannerOption customizes a Scanner.
type ScannerOption func(*Scanner)

func WithDeduper(d Deduper) ScannerOption {
	return func(s *Scanner) { s.dedup = d }
}

func WithMetrics(m Metrics) ScannerOption {
	return func(s *Scanner) { s.metrics = m }
}

func WithPageSize(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func NewScanner(source Source, publisher Publisher, clock billing.Clock, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		source:    source,
		publisher: publisher,
		clock:     clock,
		metrics:   nopMetrics{},
		pageSize:  DefaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan walks every subscription with notifications enabled and publishes an
// event for each one that is upcoming within its own lead time or overdue.
// A failed publish does not stop the scan; the reminder is retried on the
// next run.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	var result Result
	today := s.clock.Today()

	var afterID uint
	for {
		subs, err := s.source.ListNotifiableSubscriptions(ctx, afterID, s.pageSize)
		if err != nil {
			return result, err
		}
		if len(subs) == 0 {
			return result, nil
		}

		ids := make([]uint, len(subs))
		for i := range subs {
			ids[i] = subs[i].ID
		}
		paid, err := s.source.CountPaidPaymentsBySubscription(ctx, ids)
		if err != nil {
			return result, err
		}

		for i := range subs {
			sub := &subs[i]
			result.Scanned++

			event, ok, err := s.eventFor(sub, paid[sub.ID])
			if err != nil {
				result.Invalid++
				log.Warnf("[Reminder] Skipping subscription %d: %v", sub.ID, err)
				continue
			}
			if !ok {
				continue
			}
			event.GeneratedOn = today

			sent, err := s.deliver(ctx, event)
			switch {
			case err != nil:
				result.Failed++
				s.metrics.ReminderFailed()
				log.Errorf("[Reminder] Failed to publish reminder for subscription %d: %v", sub.ID, err)
			case sent:
				result.Published++
				s.metrics.ReminderSent(event.Kind)
			default:
				result.Deduplicated++
				s.metrics.ReminderDeduplicated()
			}
		}

		if len(subs) < s.pageSize {
			return result, nil
		}
		afterID = subs[len(subs)-1].ID
	}
}

func (s *Scanner) eventFor(sub *models.Subscription, paidCount int) (Event, bool, error) {
	cfg, err := billing.ConfigOf(sub)
	if err != nil {
		return Event{}, false, err
	}

	today := s.clock.Today()
	next, err := billing.DueBillingDate(cfg, paidCount, today)
	if err != nil || next == nil {
		return Event{}, false, err
	}
	status, err := billing.StatusOf(cfg, paidCount, today, sub.NotifyDaysBefore)
	if err != nil {
		return Event{}, false, err
	}

	var kind string
	switch status {
	case billing.StatusUpcoming:
		kind = KindUpcoming
	case billing.StatusOverdue:
		kind = KindOverdue
	default:
		return Event{}, false, nil
	}

	return Event{
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		Name:           sub.Name,
		Kind:           kind,
		BillingDate:    *next,
		Amount:         sub.Price,
		Currency:       sub.Currency,
	}, true, nil
}

func (s *Scanner) deliver(ctx context.Context, event Event) (bool, error) {
	key := event.DedupKey()
	if s.dedup != nil {
		fresh, err := s.dedup.SetNX(ctx, key, "1", DedupTTL)
		if err != nil {
			return false, err
		}
		if !fresh {
			return false, nil
		}
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		if s.dedup != nil {
			if derr := s.dedup.Delete(ctx, key); derr != nil {
				log.Warnf("[Reminder] Failed to release dedup key %s: %v", key, derr)
			}
		}
		return false, err
	}
	return true, nil
}

type nopMetrics struct{}

func (nopMetrics) ReminderSent(string)   {}
func (nopMetrics) ReminderFailed()       {}
func (nopMetrics) ReminderDeduplicated() {}
