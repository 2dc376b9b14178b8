// Package cleanup implements the size-bounded cache pruning that rides on
// top of the pooled Postgres backend: append-only from the dispatcher's
// perspective, but bounded in total storage footprint by a background
// manager watching write notifications.
package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/rpccache/gateway/internal/cache"
	"go.uber.org/zap"
)

// safetyNetInterval re-checks size even if no write ever calls
// NotifyWrite, e.g. because the process restarted above the size cap.
const safetyNetInterval = 30 * time.Second

// Manager watches one chain's Postgres-backed cache and prunes the
// least-recently-accessed rows once the total size crosses maxSize,
// bringing it back down to (1 - slackRatio) * maxSize.
type Manager struct {
	chain      string
	logger     *zap.Logger
	backend    *cache.PostgresBackend
	maxSize    int64
	slackRatio float64
	trigger    chan struct{}
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewManager builds a cleanup manager for one chain's backend. slackRatio
// <= 0 defaults to 20%.
func NewManager(logger *zap.Logger, chain string, backend *cache.PostgresBackend, maxSize int64, slackRatio float64) *Manager {
	if slackRatio <= 0 {
		slackRatio = 0.2
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		chain:      chain,
		logger:     logger,
		backend:    backend,
		maxSize:    maxSize,
		slackRatio: slackRatio,
		trigger:    make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (m *Manager) Start() {
	m.wg.Add(1)
	go m.run()
}

func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

// NotifyWrite wakes the manager to re-check size after a cache write.
// Coalesces bursts of writes into a single pending check.
func (m *Manager) NotifyWrite() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

func (m *Manager) run() {
	defer m.wg.Done()
	ticker := time.NewTicker(safetyNetInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.trigger:
			m.cleanup()
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *Manager) cleanup() {
	currentSize, err := m.backend.SizeBytes(m.ctx)
	if err != nil {
		m.logger.Error("failed to get cache size", zap.String("chain", m.chain), zap.Error(err))
		return
	}

	if currentSize <= m.maxSize {
		return
	}

	targetSize := int64(float64(m.maxSize) * (1.0 - m.slackRatio))
	toFree := currentSize - targetSize
	if toFree <= 0 {
		return
	}

	freed, err := m.backend.Prune(m.ctx, toFree)
	if err != nil {
		m.logger.Error("failed to prune cache", zap.String("chain", m.chain), zap.Error(err))
		return
	}
	m.logger.Info("pruned cache", zap.String("chain", m.chain), zap.Int64("freed_bytes", freed))
}
