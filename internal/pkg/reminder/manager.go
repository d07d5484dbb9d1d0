package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

const DefaultInterval = time.Hour

// Manager runs the scanner on a fixed interval.
type Manager struct {
	scanner  *Scanner
	interval time.Duration
	ticker   *time.Ticker
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

func NewManager(scanner *Scanner, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Manager{scanner: scanner, interval: interval}
}

// Start launches the scan worker. The first scan runs immediately.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.stopCh = make(chan struct{})
	m.running = true
	m.ticker = time.NewTicker(m.interval)
	m.wg.Add(1)
	go m.scanWorker(m.stopCh, m.ticker)

	log.Infof("[Reminder Manager] Started (interval: %v)", m.interval)
}

// Stop halts the worker and waits for a running scan to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Reminder Manager] Stopping...")
	m.ticker.Stop()
	close(m.stopCh)
	m.running = false
	m.wg.Wait()
	log.Info("[Reminder Manager] Stopped")
}

// Running reports whether the worker is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) scanWorker(stopCh <-chan struct{}, ticker *time.Ticker) {
	defer m.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stopCh
		cancel()
	}()

	m.runScan(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.runScan(ctx)
		}
	}
}

func (m *Manager) runScan(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	start := time.Now()
	result, err := m.scanner.Scan(ctx)
	if err != nil {
		log.Errorf("[Reminder Manager] Scan failed after %d subscriptions: %v", result.Scanned, err)
		return
	}
	log.Infof("[Reminder Manager] Scan finished in %v: scanned=%d published=%d deduplicated=%d failed=%d invalid=%d",
		time.Since(start).Round(time.Millisecond), result.Scanned, result.Published, result.Deduplicated, result.Failed, result.Invalid)
}
