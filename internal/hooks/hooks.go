// Package hooks runs best-effort tasks once the server reaches a ready phase.
// Hooks never see or change the ServerState; their failures are logged and
// counted, nothing more.
package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/empire-server/internal/metrics"
)

// Hook is one deferred task.
type Hook struct {
	Name string
	Run  func(ctx context.Context) error
}

// SchedulerConfig tunes when and for how long hooks run.
type SchedulerConfig struct {
	// Delay before each hook starts.
	Delay time.Duration
	// Timeout bounds a single hook run.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Scheduler starts hooks in the background.
type Scheduler struct {
	cfg SchedulerConfig
	wg  sync.WaitGroup
}

// NewScheduler builds a Scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Scheduler{cfg: cfg}
}

// Schedule starts every hook in its own goroutine and returns immediately.
// Hooks whose delay has not elapsed when ctx ends are skipped.
func (s *Scheduler) Schedule(ctx context.Context, hooks ...Hook) {
	for _, h := range hooks {
		if h.Run == nil {
			continue
		}
		s.wg.Add(1)
		go func(h Hook) {
			defer s.wg.Done()
			if s.cfg.Delay > 0 {
				timer := time.NewTimer(s.cfg.Delay)
				defer timer.Stop()
				select {
				case <-ctx.Done():
					s.cfg.Logger.Debug("hook skipped", zap.String("hook", h.Name))
					return
				case <-timer.C:
				}
			}
			s.run(ctx, h)
		}(h)
	}
}

// Wait blocks until every scheduled hook has finished or been skipped.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, h Hook) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := safeRun(ctx, h)
	metrics.ObserveHook(h.Name, err)
	if err != nil {
		s.cfg.Logger.Warn("post-ready hook failed",
			zap.String("hook", h.Name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	s.cfg.Logger.Info("post-ready hook finished",
		zap.String("hook", h.Name),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func safeRun(ctx context.Context, h Hook) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("hook %s panicked: %v", h.Name, rec)
		}
	}()
	return h.Run(ctx)
}
