package jobqueue

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/keerthivasan-d/pay/internal/pkg/env"
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue              *Queue
	webhookRetryTicker *time.Ticker
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workerCount := envInt("PAY_QUEUE_WORKERS", 5)

		globalManager = &Manager{
			queue:  NewQueue(workerCount),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	// Start the job queue
	m.queue.Start()

	// Re-enqueue webhook events stranded between accept and process
	retryInterval := time.Duration(envInt("PAY_WEBHOOK_RETRY_MINUTES", 5)) * time.Minute
	m.webhookRetryTicker = time.NewTicker(retryInterval)
	m.wg.Add(1)
	go m.webhookRetryWorker()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.webhookRetryTicker != nil {
		m.webhookRetryTicker.Stop()
	}

	// Signal workers to stop
	close(m.stopCh)
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	// Stop the job queue
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// webhookRetryWorker runs periodically to recover webhook events that were
// accepted but never processed to completion.
func (m *Manager) webhookRetryWorker() {
	defer m.wg.Done()
	staleAfter := envInt("PAY_WEBHOOK_STALE_MINUTES", 10)
	batchSize := envInt("PAY_WEBHOOK_RETRY_BATCH", 100)
	log.Infof("[JobQueue Manager] Started webhook retry worker (stale after: %d minutes)", staleAfter)

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Webhook retry worker stopping")
			return
		case <-m.webhookRetryTicker.C:
			log.Debug("[JobQueue Manager] Running retry check for unprocessed webhook events")
			if err := m.queue.RetryUnprocessedWebhooks(staleAfter, batchSize); err != nil {
				log.Errorf("[JobQueue Manager] Error retrying unprocessed webhooks: %v", err)
			}
		}
	}
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(env.GetEnv(key, "")); err == nil && v > 0 {
		return v
	}
	return def
}
