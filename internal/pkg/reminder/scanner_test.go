package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayumbro/Remindy/app/models"
	"github.com/ayumbro/Remindy/internal/pkg/billing"
	"github.com/ayumbro/Remindy/internal/pkg/cache"
	"github.com/ayumbro/Remindy/internal/pkg/calendar"
)

type memorySource struct {
	mu        sync.Mutex
	subs      []models.Subscription
	paid      map[uint]int
	listCalls int
	err       error
}

func (m *memorySource) ListNotifiableSubscriptions(_ context.Context, afterID uint, limit int) ([]models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.err != nil {
		return nil, m.err
	}

	sorted := append([]models.Subscription(nil), m.subs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var out []models.Subscription
	for _, sub := range sorted {
		if sub.ID <= afterID || !sub.NotificationsEnabled {
			continue
		}
		out = append(out, sub)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memorySource) CountPaidPaymentsBySubscription(_ context.Context, ids []uint) (map[uint]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint]int, len(ids))
	for _, id := range ids {
		out[id] = m.paid[id]
	}
	return out, nil
}

type countingMetrics struct {
	sent    map[string]int
	failed  int
	deduped int
}

func (c *countingMetrics) ReminderSent(kind string) { c.sent[kind]++ }
func (c *countingMetrics) ReminderFailed()          { c.failed++ }
func (c *countingMetrics) ReminderDeduplicated()    { c.deduped++ }

func monthly(id uint, first string, notifyDays int) models.Subscription {
	date := calendar.MustParse(first)
	day := date.Day
	return models.Subscription{
		ID:                   id,
		UserID:               7,
		Name:                 fmt.Sprintf("Plan %d", id),
		Price:                decimal.RequireFromString("12.50"),
		Currency:             "EUR",
		NotificationsEnabled: true,
		NotifyDaysBefore:     notifyDays,
		BillingCycle:         "monthly",
		BillingInterval:      1,
		FirstBillingDate:     date,
		BillingCycleDay:      &day,
		StartDate:            date,
	}
}

// today is 2024-03-10 in every scan below.
func fixtureSource() *memorySource {
	invalid := monthly(4, "2024-01-05", 3)
	invalid.BillingCycle = "fortnightly"

	oneTime := monthly(5, "2024-03-11", 3)
	oneTime.BillingCycle = "one-time"
	oneTime.BillingCycleDay = nil

	muted := monthly(6, "2024-01-11", 3)
	muted.NotificationsEnabled = false

	return &memorySource{
		subs: []models.Subscription{
			monthly(1, "2024-01-12", 3),
			monthly(2, "2024-01-01", 3),
			monthly(3, "2024-01-25", 3),
			invalid,
			oneTime,
			muted,
		},
		paid: map[uint]int{1: 2, 2: 2, 3: 2, 5: 1},
	}
}

func newStore(t *testing.T) (*cache.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.NewStore(rdb), mr
}

func expectEvent(t *testing.T, producer *mocks.SyncProducer, subscriptionID uint, kind, billingDate string) {
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != fmt.Sprint(subscriptionID) {
			return fmt.Errorf("unexpected key %s", key)
		}
		if msg.Topic != "reminders" {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}

		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			return err
		}
		if event.Kind != kind || event.BillingDate.String() != billingDate || event.GeneratedOn.String() != "2024-03-10" {
			return fmt.Errorf("unexpected event %+v", event)
		}
		return nil
	})
}

func TestScanPublishesUpcomingAndOverdue(t *testing.T) {
	source := fixtureSource()
	producer := mocks.NewSyncProducer(t, nil)
	expectEvent(t, producer, 1, KindUpcoming, "2024-03-12")
	expectEvent(t, producer, 2, KindOverdue, "2024-03-01")

	metrics := &countingMetrics{sent: map[string]int{}}
	scanner := NewScanner(source, NewKafkaPublisher(producer, "reminders"),
		billing.FixedClock(calendar.MustParse("2024-03-10")),
		WithMetrics(metrics), WithPageSize(2))

	result, err := scanner.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{Scanned: 5, Published: 2, Invalid: 1}, result)
	assert.Equal(t, map[string]int{KindUpcoming: 1, KindOverdue: 1}, metrics.sent)
	assert.Equal(t, 3, source.listCalls)
	require.NoError(t, producer.Close())
}

func TestScanDeduplicatesWithinADay(t *testing.T) {
	store, mr := newStore(t)
	source := fixtureSource()
	producer := mocks.NewSyncProducer(t, nil)
	expectEvent(t, producer, 1, KindUpcoming, "2024-03-12")
	expectEvent(t, producer, 2, KindOverdue, "2024-03-01")

	scanner := NewScanner(source, NewKafkaPublisher(producer, "reminders"),
		billing.FixedClock(calendar.MustParse("2024-03-10")), WithDeduper(store))

	first, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Published)

	second, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Published)
	assert.Equal(t, 2, second.Deduplicated)

	key := "reminder:sent:1:2024-03-12:upcoming:2024-03-10"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, DedupTTL, mr.TTL(key))
	require.NoError(t, producer.Close())
}

func TestScanReleasesDedupKeyOnFailure(t *testing.T) {
	store, mr := newStore(t)
	source := fixtureSource()
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	expectEvent(t, producer, 2, KindOverdue, "2024-03-01")

	metrics := &countingMetrics{sent: map[string]int{}}
	scanner := NewScanner(source, NewKafkaPublisher(producer, "reminders"),
		billing.FixedClock(calendar.MustParse("2024-03-10")),
		WithDeduper(store), WithMetrics(metrics))

	result, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Published)
	assert.Equal(t, 1, metrics.failed)

	assert.False(t, mr.Exists("reminder:sent:1:2024-03-12:upcoming:2024-03-10"))
	assert.True(t, mr.Exists("reminder:sent:2:2024-03-01:overdue:2024-03-10"))
	require.NoError(t, producer.Close())
}

func TestScanRespectsPerSubscriptionLeadTime(t *testing.T) {
	source := &memorySource{
		subs: []models.Subscription{
			monthly(1, "2024-03-20", 14),
			monthly(2, "2024-03-20", 0),
		},
		paid: map[uint]int{},
	}
	producer := mocks.NewSyncProducer(t, nil)
	expectEvent(t, producer, 1, KindUpcoming, "2024-03-20")

	scanner := NewScanner(source, NewKafkaPublisher(producer, "reminders"),
		billing.FixedClock(calendar.MustParse("2024-03-10")))

	result, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Published)
	require.NoError(t, producer.Close())
}

func TestScanSkipsOccurrencesAfterEndDate(t *testing.T) {
	cancelled := monthly(1, "2024-02-12", 3)
	end := calendar.MustParse("2024-03-11")
	cancelled.EndDate = &end

	source := &memorySource{
		subs: []models.Subscription{cancelled, monthly(2, "2024-02-12", 3)},
		paid: map[uint]int{1: 1, 2: 1},
	}
	producer := mocks.NewSyncProducer(t, nil)
	expectEvent(t, producer, 2, KindUpcoming, "2024-03-12")

	scanner := NewScanner(source, NewKafkaPublisher(producer, "reminders"),
		billing.FixedClock(calendar.MustParse("2024-03-10")))

	result, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Scanned: 2, Published: 1}, result)
	require.NoError(t, producer.Close())
}

func TestScanStopsOnSourceError(t *testing.T) {
	source := &memorySource{err: errors.New("db down")}
	scanner := NewScanner(source, LogPublisher{}, billing.FixedClock(calendar.MustParse("2024-03-10")))

	_, err := scanner.Scan(context.Background())
	assert.EqualError(t, err, "db down")
}

func TestKafkaPublisherDefaultsTopic(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != DefaultTopic {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "reminder.overdue" {
			return fmt.Errorf("unexpected headers %v", msg.Headers)
		}
		return nil
	})

	publisher := NewKafkaPublisher(producer, "")
	require.NoError(t, publisher.Publish(context.Background(), Event{SubscriptionID: 3, Kind: KindOverdue}))
	require.NoError(t, publisher.Close())
}

func TestKafkaPublisherHonoursCancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewKafkaPublisher(producer, "reminders").Publish(ctx, Event{SubscriptionID: 1})
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, producer.Close())
}

func TestNewSyncProducerRequiresBrokers(t *testing.T) {
	_, err := NewSyncProducer(nil)
	assert.Error(t, err)
}
