package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/ArmelNjike/MomoBill/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

// Manager runs the billing sweep on a fixed period and exposes an on-demand
// trigger for manual runs.
type Manager struct {
	sweeper  *Sweeper
	interval time.Duration

	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// Setup initializes the global scheduler manager (singleton).
func Setup(sweeper *Sweeper) *Manager {
	managerOnce.Do(func() {
		hours := env.GetEnvInt("BILLING_SWEEP_INTERVAL_HOURS", 24)
		globalManager = &Manager{
			sweeper:  sweeper,
			interval: time.Duration(hours) * time.Hour,
			stopCh:   make(chan struct{}),
		}
	})
	return globalManager
}

// GetManager returns the global scheduler manager.
func GetManager() *Manager {
	return globalManager
}

// Start starts the periodic sweep worker.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so the manager can be
	// restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true

	log.Infof("[Scheduler] starting billing sweep every %s", m.interval)

	m.ticker = time.NewTicker(m.interval)
	m.wg.Add(1)
	go m.sweepWorker()
}

// Stop stops the periodic sweep worker and waits for it to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Scheduler] stopping billing sweep worker...")

	if m.ticker != nil {
		m.ticker.Stop()
	}

	close(m.stopCh)
	m.running = false

	m.wg.Wait()

	log.Info("[Scheduler] stopped")
}

// RunNow performs one sweep immediately, outside the periodic schedule.
func (m *Manager) RunNow(ctx context.Context) (*Report, error) {
	return m.sweeper.Sweep(ctx)
}

func (m *Manager) sweepWorker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ticker.C:
			m.runSweep()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) runSweep() {
	report, err := m.sweeper.Sweep(context.Background())
	if err != nil {
		log.Errorf("[Scheduler] sweep failed: %v", err)
		return
	}
	log.Infof("[Scheduler] sweep complete: initiated %d charges, canceled %d subscriptions",
		report.ChargesInitiated, report.SubscriptionsCanceled)
}
