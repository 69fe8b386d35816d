// Package bootstrap brings the server from cold start to a traffic-serving
// pipeline: probe dependencies, register routes (or the fallback table), fold
// optional capabilities, then wrap everything in the telemetry chain.
//
// Every step fails open. A Build call always ends in NormalReady,
// EmergencyReady or Degraded and always returns a usable pipeline.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JakeFAU/empire-server/internal/api"
	"github.com/JakeFAU/empire-server/internal/clock/system"
	"github.com/JakeFAU/empire-server/internal/config"
	"github.com/JakeFAU/empire-server/internal/metrics"
	"github.com/JakeFAU/empire-server/internal/middleware"
	"github.com/JakeFAU/empire-server/internal/probe"
	"github.com/JakeFAU/empire-server/internal/routes"
	"github.com/JakeFAU/empire-server/internal/state"
	"github.com/JakeFAU/empire-server/internal/telemetry"
)

// ErrAuxiliaryService wraps failures of optional subsystems (asset serving,
// live reload). They are logged and skipped.
var ErrAuxiliaryService = errors.New("auxiliary service failure")

// Capability is an optional subsystem folded into the router after routes are
// installed. A failing Attempt must leave the router unchanged.
type Capability interface {
	Name() string
	Attempt(ctx context.Context, r chi.Router) error
}

// GroupFactory returns the business route groups, in priority order, bound to
// the ServerState of the attempt being built.
type GroupFactory func(st *state.ServerState) []routes.Group

// Deps carries everything Build needs. Only Config is required.
type Deps struct {
	Config       config.Config
	Logger       *zap.Logger
	Clock        api.Clock
	Prober       *probe.Prober
	Groups       GroupFactory
	Capabilities []Capability
}

// Pipeline is the finished request handler chain plus the state it reports.
type Pipeline struct {
	handler http.Handler
	state   *state.ServerState
	routes  routes.Table
}

// ServeHTTP implements http.Handler.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.handler.ServeHTTP(w, r)
}

// State returns the ServerState of the attempt that built the pipeline.
func (p *Pipeline) State() *state.ServerState {
	return p.state
}

// Routes returns the installed route table.
func (p *Pipeline) Routes() routes.Table {
	return p.routes
}

var allPhases = []string{
	state.Starting.String(),
	state.ProbingDependencies.String(),
	state.RegisteringRoutes.String(),
	state.NormalReady.String(),
	state.EmergencyReady.String(),
	state.Degraded.String(),
}

// Build runs one bootstrap attempt. It is safe to call repeatedly; each call
// owns a fresh ServerState and router and touches nothing shared besides logs
// and metrics.
func Build(ctx context.Context, deps Deps) (*Pipeline, *Report) {
	b := newBuilder(deps)
	return b.build(ctx)
}

type builder struct {
	deps   Deps
	cfg    config.Config
	logger *zap.Logger
	clock  api.Clock
	prober *probe.Prober
}

func newBuilder(deps Deps) *builder {
	b := &builder{deps: deps, cfg: deps.Config, logger: deps.Logger, clock: deps.Clock, prober: deps.Prober}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	b.logger = b.logger.Named("bootstrap")
	if b.clock == nil {
		b.clock = system.New()
	}
	if b.prober == nil {
		b.prober = probe.New(probe.Config{Timeout: b.cfg.Database.ProbeTimeout, Logger: b.logger}, nil)
	}
	return b
}

func (b *builder) build(ctx context.Context) (*Pipeline, *Report) {
	metrics.Init()
	profile := b.cfg.Server.Profile
	if profile == "" {
		profile = config.ProfileNormal
	}
	st := state.New(profile, b.clock.Now())
	report := &Report{Profile: profile, StartedAt: st.StartedAt()}
	b.logger.Info("bootstrap starting",
		zap.String("mode", b.cfg.Server.Mode),
		zap.String("profile", profile),
	)

	b.advance(st, state.ProbingDependencies)
	report.Dependencies = b.prober.ProbeAll(ctx)
	emergency := profile == config.ProfileEmergency
	if !emergency && b.cfg.Database.Required && !b.prober.Table().Reachable(probe.Database) {
		b.logger.Warn("required database unreachable, switching to emergency profile")
		emergency = true
	}
	report.Emergency = emergency

	b.advance(st, state.RegisteringRoutes)
	mux := chi.NewRouter()
	mux.Use(metrics.Middleware, middleware.Recover(b.logger.Named("recover"), b.cfg.Server.DebugErrors))
	if b.cfg.Server.RequestTimeout > 0 {
		// Handlers see a canceled context and the client gets a 504.
		mux.Use(chimw.Timeout(b.cfg.Server.RequestTimeout))
	}

	table := b.routeTable(ctx, st, emergency, report)
	table.Install(mux)
	report.Routes = table.Len()

	report.Capabilities = b.foldCapabilities(ctx, mux)

	if st.Phase() != state.Degraded {
		next := state.NormalReady
		if emergency {
			next = state.EmergencyReady
		}
		b.advance(st, next)
	}

	handler := b.instrument(mux)

	final := st.Phase()
	report.Phase = final
	report.PhaseName = final.String()
	report.Mode = st.Mode()
	report.ReadyAt = b.clock.Now()
	metrics.ObserveBootstrap(final.String(), allPhases)
	b.logger.Info("bootstrap complete",
		zap.String("phase", final.String()),
		zap.String("mode", report.Mode),
		zap.Int("routes", report.Routes),
		zap.Duration("elapsed", report.ReadyAt.Sub(report.StartedAt)),
	)
	return &Pipeline{handler: handler, state: st, routes: table}, report
}

// routeTable returns the full table, or the fallback table when the emergency
// profile applies or registration fails.
func (b *builder) routeTable(ctx context.Context, st *state.ServerState, emergency bool, report *Report) routes.Table {
	if emergency {
		b.logger.Info("emergency profile: installing fallback routes only")
		return api.FallbackTable(b.clock, st)
	}
	table, err := b.register(ctx, st)
	if err != nil {
		report.RegistrationError = err
		st.Degrade(err.Error())
		b.logger.Warn("route registration failed, installing fallback routes", zap.Error(err))
		return api.FallbackTable(b.clock, st)
	}
	return table
}

func (b *builder) register(ctx context.Context, st *state.ServerState) (table routes.Table, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &routes.RegistrationError{Group: "factory", Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	var groups []routes.Group
	if b.deps.Groups != nil {
		groups = b.deps.Groups(st)
	}
	return routes.NewRegistrar(b.logger.Named("routes"), groups...).RegisterAll(ctx)
}

func (b *builder) foldCapabilities(ctx context.Context, r chi.Router) []CapabilityOutcome {
	outcomes := make([]CapabilityOutcome, 0, len(b.deps.Capabilities))
	for _, c := range b.deps.Capabilities {
		if c == nil {
			continue
		}
		err := attempt(ctx, c, r)
		metrics.ObserveCapability(c.Name(), err)
		outcome := CapabilityOutcome{Name: c.Name(), Installed: err == nil}
		if err != nil {
			outcome.Error = err.Error()
			b.logger.Warn("capability skipped", zap.String("capability", c.Name()), zap.Error(err))
		} else {
			b.logger.Info("capability installed", zap.String("capability", c.Name()))
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func attempt(ctx context.Context, c Capability, r chi.Router) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrAuxiliaryService, c.Name(), rec)
		}
	}()
	if err := c.Attempt(ctx, r); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrAuxiliaryService, c.Name(), err)
	}
	return nil
}

// instrument wraps the router in the outer chain: CORS and pre-flight first,
// then request IDs and the telemetry tap.
func (b *builder) instrument(mux http.Handler) http.Handler {
	cors := middleware.NewCORSPolicy(b.cfg.CORS.AllowHeaders)
	tap := telemetry.Tap(telemetry.Config{
		APIPrefix:  b.cfg.Telemetry.APIPrefix,
		SummaryCap: b.cfg.Telemetry.SummaryCap,
		Logger:     b.logger.Named("http"),
	})
	return chi.Chain(cors.Middleware, middleware.RequestID, tap).Handler(mux)
}

func (b *builder) advance(st *state.ServerState, next state.Phase) {
	from := st.Phase()
	if err := st.Advance(next); err != nil {
		b.logger.Warn("phase transition refused", zap.Error(err))
		return
	}
	b.logger.Debug("phase transition",
		zap.String("from", from.String()),
		zap.String("to", next.String()),
	)
}
