package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ayumbro/Remindy/internal/pkg/billing"
	"github.com/ayumbro/Remindy/internal/pkg/calendar"
)

func TestManagerScansOnStartAndStops(t *testing.T) {
	source := &memorySource{paid: map[uint]int{}}
	scanner := NewScanner(source, LogPublisher{}, billing.FixedClock(calendar.MustParse("2024-03-10")))
	m := NewManager(scanner, time.Hour)

	m.Start()
	m.Start()
	assert.True(t, m.Running())

	assert.Eventually(t, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return source.listCalls >= 1
	}, time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop()
	assert.False(t, m.Running())

	source.mu.Lock()
	assert.Equal(t, 1, source.listCalls)
	source.mu.Unlock()
}

func TestManagerRunsOnInterval(t *testing.T) {
	source := &memorySource{paid: map[uint]int{}}
	scanner := NewScanner(source, LogPublisher{}, billing.FixedClock(calendar.MustParse("2024-03-10")))
	m := NewManager(scanner, 10*time.Millisecond)

	m.Start()
	defer m.Stop()

	assert.Eventually(t, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return source.listCalls >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestNewManagerDefaultsInterval(t *testing.T) {
	m := NewManager(nil, 0)
	assert.Equal(t, DefaultInterval, m.interval)
}
