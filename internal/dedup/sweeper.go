package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dedup_sweep_deleted_total",
		Help: "Ledger records removed by the retention sweeper",
	})
	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dedup_sweep_duration_seconds",
		Help:    "Time taken by a retention sweep",
		Buckets: []float64{0.1, 0.5, 1, 2, 5},
	})
)

// Sweeper periodically removes ledger records older than the retention
// window. A record that outlives one cycle is only deduplicated longer
// than necessary, so a failed sweep waits for the next tick.
type Sweeper struct {
	ledger        Ledger
	retentionDays int
	interval      time.Duration
	log           *slog.Logger

	running atomic.Bool
}

func NewSweeper(l Ledger, retentionDays int, interval time.Duration, log *slog.Logger) *Sweeper {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Sweeper{
		ledger:        l,
		retentionDays: retentionDays,
		interval:      interval,
		log:           log,
	}
}

// Run sweeps on each tick until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("retention sweeper started", "retention_days", s.retentionDays, "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.Error("retention sweep failed", "error", err)
			}
		}
	}
}

// Sweep deletes everything older than the configured retention window.
// Overlapping runs are skipped: a second sweep started while one is in
// flight would only contend on the same rows.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("retention sweep already in progress, skipping")
		return 0, nil
	}
	defer s.running.Store(false)

	started := time.Now()
	deleted, err := s.CleanupOlderThan(ctx, s.retentionDays)
	if err != nil {
		return 0, err
	}
	sweepDuration.Observe(time.Since(started).Seconds())
	return deleted, nil
}

// CleanupOlderThan deletes records whose ProcessedAt is older than the
// given number of days. Also called on demand by the admin surface.
func (s *Sweeper) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	deleted, err := s.ledger.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired records: %w", err)
	}

	sweepDeleted.Add(float64(deleted))
	s.log.Info("cleaned up expired message records", "deleted", deleted, "older_than_days", days)
	return deleted, nil
}
