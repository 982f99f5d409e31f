// Package health watches for challenges stuck in PENDING (render jobs whose
// completion callback never arrived or whose finalize kept failing) and
// surfaces the backlog to operators through logs and a metrics gauge.
package health

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Config holds monitor configuration.
type Config struct {
	// CheckInterval is how often the backlog is counted.
	CheckInterval time.Duration
	// StaleAfter is how long a challenge may sit unmodified in PENDING
	// before it counts as stuck.
	StaleAfter time.Duration
}

// PendingCounter counts PENDING challenges last updated before a cutoff.
type PendingCounter interface {
	CountStalePending(ctx context.Context, updatedBefore int64) (int64, error)
}

// GaugeRecordFunc is an optional callback for exporting the backlog size.
type GaugeRecordFunc func(count float64)

// Monitor periodically counts the stale-PENDING backlog.
type Monitor struct {
	store   PendingCounter
	cfg     Config
	onGauge GaugeRecordFunc
	logger  *zap.Logger
	now     func() time.Time
}

// NewMonitor creates a Monitor.
func NewMonitor(store PendingCounter, cfg Config, logger *zap.Logger) *Monitor {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	return &Monitor{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetGaugeRecorder configures the metrics callback.
func (m *Monitor) SetGaugeRecorder(fn GaugeRecordFunc) {
	m.onGauge = fn
}

// Run loops until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			m.CheckOnce(checkCtx)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

// CheckOnce counts the backlog a single time and reports it.
func (m *Monitor) CheckOnce(ctx context.Context) (int64, error) {
	cutoff := m.now().Add(-m.cfg.StaleAfter).Unix()

	n, err := m.store.CountStalePending(ctx, cutoff)
	if err != nil {
		m.logger.Warn("pending backlog check failed", zap.Error(err))
		return 0, err
	}

	if m.onGauge != nil {
		m.onGauge(float64(n))
	}
	if n > 0 {
		m.logger.Warn("challenges stuck in PENDING, render completion missing or finalize failing",
			zap.Int64("count", n),
			zap.Duration("stale_after", m.cfg.StaleAfter),
		)
	}
	return n, nil
}
