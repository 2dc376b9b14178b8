// Package exporter periodically refreshes the gauge-shaped cache metrics
// (size, item count) that can't be kept up to date on every write without
// an extra round-trip, one ticking goroutine per chain.
package exporter

import (
	"context"
	"time"

	"github.com/rpccache/gateway/internal/cache"
	"github.com/rpccache/gateway/internal/metrics"
	"go.uber.org/zap"
)

type Exporter struct {
	chain    string
	logger   *zap.Logger
	backend  *cache.PostgresBackend
	interval time.Duration
}

func New(logger *zap.Logger, chain string, backend *cache.PostgresBackend, interval time.Duration) *Exporter {
	return &Exporter{
		chain:    chain,
		logger:   logger,
		backend:  backend,
		interval: interval,
	}
}

func (e *Exporter) Start(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.collect(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.collect(ctx)
		}
	}
}

func (e *Exporter) collect(ctx context.Context) {
	size, err := e.backend.SizeBytes(ctx)
	if err != nil {
		e.logger.Warn("failed to get cache size", zap.String("chain", e.chain), zap.Error(err))
	} else {
		metrics.CacheSizeBytes.WithLabelValues(e.chain).Set(float64(size))
	}

	count, err := e.backend.ItemCount(ctx)
	if err != nil {
		e.logger.Warn("failed to get cache item count", zap.String("chain", e.chain), zap.Error(err))
	} else {
		metrics.CacheItemsCount.WithLabelValues(e.chain).Set(float64(count))
	}
}
