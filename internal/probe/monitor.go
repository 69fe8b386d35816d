package probe

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Monitor re-probes every dependency on a fixed interval. It only refreshes
// the status table; the bootstrap outcome is never revisited.
type Monitor struct {
	prober   *Prober
	interval time.Duration
	logger   *zap.Logger
}

// NewMonitor creates a Monitor. A non-positive interval disables it.
func NewMonitor(prober *Prober, interval time.Duration, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{prober: prober, interval: interval, logger: logger}
}

// Run blocks until ctx ends. Ticks are serialized, so probes never overlap.
func (m *Monitor) Run(ctx context.Context) {
	if m.interval <= 0 {
		m.logger.Info("dependency monitoring disabled")
		return
	}
	m.logger.Info("dependency monitoring started", zap.Duration("interval", m.interval))
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("dependency monitoring stopped")
			return
		case <-ticker.C:
			for _, s := range m.prober.ProbeAll(ctx) {
				m.logger.Debug("dependency rechecked",
					zap.String("dependency", s.Name),
					zap.Bool("reachable", s.Reachable),
				)
			}
		}
	}
}
