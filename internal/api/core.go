package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/JakeFAU/empire-server/internal/metrics"
	"github.com/JakeFAU/empire-server/internal/middleware"
	"github.com/JakeFAU/empire-server/internal/probe"
	"github.com/JakeFAU/empire-server/internal/routes"
	"github.com/JakeFAU/empire-server/internal/state"
)

// CoreGroup registers the status, health and introspection routes that every
// normal startup carries.
type CoreGroup struct {
	Clock   Clock
	State   *state.ServerState
	Prober  *probe.Prober
	Version string
}

// Name implements routes.Group.
func (CoreGroup) Name() string { return "core" }

// Register implements routes.Group.
func (g CoreGroup) Register(_ context.Context, b *routes.Builder) error {
	if g.Clock == nil || g.State == nil {
		return errors.New("core group requires a clock and server state")
	}
	if g.Prober == nil {
		return errors.New("core group requires a dependency prober")
	}
	table := g.Prober.Table()
	reachability := func() map[string]bool {
		out := make(map[string]bool)
		for _, s := range table.Snapshot() {
			out[s.Name] = s.Reachable
		}
		return out
	}

	steps := []func() error{
		func() error { return b.Get("/api/status", statusHandler(g.Clock, g.State, g.Version)) },
		func() error { return b.Get("/api/health", healthHandler(g.Clock, g.State, reachability)) },
		func() error { return b.Get("/health", plainHealth) },
		func() error {
			return b.Get("/api/dependencies", func(w http.ResponseWriter, _ *http.Request) {
				middleware.WriteJSON(w, http.StatusOK, map[string]any{
					"success":      true,
					"dependencies": table.Snapshot(),
				})
			})
		},
		func() error {
			return b.Get("/api/bootstrap", func(w http.ResponseWriter, _ *http.Request) {
				history := g.State.History()
				phases := make([]string, 0, len(history))
				for _, p := range history {
					phases = append(phases, p.String())
				}
				middleware.WriteJSON(w, http.StatusOK, map[string]any{
					"success": true,
					"state":   g.State.Snapshot(),
					"history": phases,
				})
			})
		},
		func() error { return b.Handle(http.MethodGet, "/metrics", metrics.Handler()) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// DatabaseGroup exposes an on-demand database liveness check.
type DatabaseGroup struct {
	Prober *probe.Prober
}

// ErrDatabaseNotInitialized is returned when the database checker is missing.
var ErrDatabaseNotInitialized = errors.New("database checker not initialized")

// Name implements routes.Group.
func (DatabaseGroup) Name() string { return "database" }

// Register implements routes.Group.
func (g DatabaseGroup) Register(_ context.Context, b *routes.Builder) error {
	if g.Prober == nil {
		return ErrDatabaseNotInitialized
	}
	if _, ok := g.Prober.Checker(probe.Database); !ok {
		return ErrDatabaseNotInitialized
	}
	return b.Get("/api/db/health", func(w http.ResponseWriter, r *http.Request) {
		status := g.Prober.Probe(r.Context(), probe.Database)
		code := http.StatusOK
		if !status.Reachable {
			code = http.StatusServiceUnavailable
		}
		middleware.WriteJSON(w, code, map[string]any{
			"success":  status.Reachable,
			"database": status,
		})
	})
}
