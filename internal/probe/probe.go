// Package probe checks external dependencies without ever failing its caller.
//
// A Prober runs a bounded liveness check per dependency and records the outcome
// in a Table. Errors, timeouts and panics all end up as reachable=false; the
// bootstrap sequence decides what that means.
package probe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/empire-server/internal/metrics"
)

// Database is the name the Postgres dependency is registered under.
const Database = "database"

// Broker is the name the NATS dependency is registered under.
const Broker = "broker"

const defaultTimeout = 3 * time.Second

// ErrDependencyUnreachable marks a failed liveness check.
var ErrDependencyUnreachable = errors.New("dependency unreachable")

// ErrNotConfigured is reported for dependencies without a checker.
var ErrNotConfigured = errors.New("dependency not configured")

// Checker performs a minimal round trip against one dependency.
type Checker interface {
	CheckLiveness(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// CheckLiveness calls f.
func (f CheckerFunc) CheckLiveness(ctx context.Context) error {
	return f(ctx)
}

// Clock supplies probe timestamps.
type Clock interface {
	Now() time.Time
}

// Config tunes a Prober.
type Config struct {
	Timeout time.Duration
	Clock   Clock
	Logger  *zap.Logger
}

// Prober owns the dependency Table.
type Prober struct {
	checkers map[string]Checker
	table    *Table
	timeout  time.Duration
	clock    Clock
	logger   *zap.Logger
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// New creates a Prober for the given checkers. A nil checker registers the
// dependency as known but unconfigured.
func New(cfg Config, checkers map[string]Checker) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = wallClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	cs := make(map[string]Checker, len(checkers))
	for name, c := range checkers {
		cs[name] = c
	}
	return &Prober{
		checkers: cs,
		table:    NewTable(),
		timeout:  cfg.Timeout,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
}

// Table exposes the status table for readers.
func (p *Prober) Table() *Table {
	return p.table
}

// Names lists the registered dependencies in a stable order.
func (p *Prober) Names() []string {
	names := make([]string, 0, len(p.checkers))
	for name := range p.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Checker returns the configured checker for name, if any.
func (p *Prober) Checker(name string) (Checker, bool) {
	c, ok := p.checkers[name]
	return c, ok && c != nil
}

// Probe checks one dependency and records the outcome. It never returns an
// error; failures are folded into the returned status.
func (p *Prober) Probe(ctx context.Context, name string) DependencyStatus {
	start := time.Now()
	err := p.check(ctx, name)
	elapsed := time.Since(start)

	status := DependencyStatus{
		Name:          name,
		Reachable:     err == nil,
		LastCheckedAt: p.clock.Now(),
		LatencyMs:     elapsed.Milliseconds(),
	}
	if err != nil {
		status.Error = err.Error()
		p.logger.Warn("dependency unreachable",
			zap.String("dependency", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	} else {
		p.logger.Debug("dependency reachable",
			zap.String("dependency", name),
			zap.Duration("elapsed", elapsed),
		)
	}
	p.table.set(status)
	metrics.ObserveDependency(name, status.Reachable, elapsed)
	return status
}

// ProbeAll checks every registered dependency in name order.
func (p *Prober) ProbeAll(ctx context.Context) []DependencyStatus {
	names := p.Names()
	out := make([]DependencyStatus, 0, len(names))
	for _, name := range names {
		out = append(out, p.Probe(ctx, name))
	}
	return out
}

func (p *Prober) check(ctx context.Context, name string) (err error) {
	checker, ok := p.Checker(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("liveness check panicked: %v", rec)
			}
		}()
		done <- checker.CheckLiveness(ctx)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		// The checker ignored its context; stop waiting for it.
		err = ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDependencyUnreachable, name, err)
	}
	return nil
}
