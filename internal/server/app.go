// Package server assembles the empire server from configuration: logger,
// database pool and prober, optional GCS and Pub/Sub clients, route groups and
// asset capabilities. The same assembly backs the persistent listener and the
// serverless invoker.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/empire-server/internal/adapter"
	"github.com/JakeFAU/empire-server/internal/api"
	"github.com/JakeFAU/empire-server/internal/assets"
	gcsassets "github.com/JakeFAU/empire-server/internal/assets/gcs"
	localassets "github.com/JakeFAU/empire-server/internal/assets/local"
	"github.com/JakeFAU/empire-server/internal/bootstrap"
	"github.com/JakeFAU/empire-server/internal/clock/system"
	"github.com/JakeFAU/empire-server/internal/config"
	"github.com/JakeFAU/empire-server/internal/hooks"
	"github.com/JakeFAU/empire-server/internal/id/uuid"
	"github.com/JakeFAU/empire-server/internal/logging"
	"github.com/JakeFAU/empire-server/internal/middleware"
	"github.com/JakeFAU/empire-server/internal/probe"
	memorypublisher "github.com/JakeFAU/empire-server/internal/publisher/memory"
	natspublisher "github.com/JakeFAU/empire-server/internal/publisher/nats"
	gcppublisher "github.com/JakeFAU/empire-server/internal/publisher/pubsub"
	"github.com/JakeFAU/empire-server/internal/routes"
	"github.com/JakeFAU/empire-server/internal/state"
)

const defaultReadyTopic = "server-ready"

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     *system.Clock
	ids       *uuid.Generator
	pool      *pgxpool.Pool
	prober    *probe.Prober
	storage   *storage.Client
	publisher hooks.Publisher
	pubsub    *gcppublisher.Publisher
	nats      *natspublisher.Publisher
}

// Build creates the application's dependencies. Only logger construction can
// fail; every other subsystem degrades to "absent" with a warning.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.App.Name)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return newApp(ctx, cfg, logger), nil
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) *App {
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("mode", cfg.Server.Mode),
		zap.String("profile", cfg.Server.Profile),
	)
	app := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.NewUUIDGenerator(),
	}
	checkers := map[string]probe.Checker{}
	app.setupDatabase(ctx, checkers)
	app.setupBroker(checkers)
	app.prober = probe.New(probe.Config{
		Timeout: cfg.Database.ProbeTimeout,
		Clock:   app.clock,
		Logger:  logger.Named("probe"),
	}, checkers)
	if !cfg.IsServerless() {
		app.setupStorage(ctx)
	}
	return app
}

func (a *App) setupDatabase(ctx context.Context, checkers map[string]probe.Checker) {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no DSN specified for database, skipping pool initialization")
	} else {
		pool, err := probe.NewPool(ctx, probe.PoolConfig{DSN: a.cfg.Database.DSN, MaxConns: a.cfg.Database.MaxConns})
		if err != nil {
			a.logger.Warn("database pool init failed", zap.Error(err))
		} else {
			a.pool = pool
			checker, err := probe.NewPostgresChecker(pool)
			if err != nil {
				a.logger.Warn("database checker init failed", zap.Error(err))
			} else {
				checkers[probe.Database] = checker
			}
		}
	}
}

func (a *App) setupBroker(checkers map[string]probe.Checker) {
	if a.cfg.NATS.URL == "" {
		return
	}
	pub, err := natspublisher.Connect(natspublisher.Config{
		URL:            a.cfg.NATS.URL,
		Name:           a.cfg.App.Name,
		ConnectTimeout: a.cfg.NATS.ConnectTimeout,
	})
	if err != nil {
		// Still probed, so the dependency table reports the broker as down.
		a.logger.Warn("nats connect failed", zap.Error(err))
		checkers[probe.Broker] = natspublisher.New(nil)
		return
	}
	a.nats = pub
	checkers[probe.Broker] = pub
}

func (a *App) setupStorage(ctx context.Context) {
	if a.cfg.Assets.GCSBucket == "" {
		return
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		a.logger.Warn("gcs client init failed, falling back to local assets", zap.Error(err))
		return
	}
	a.storage = client
	a.logger.Info("serving assets from GCS",
		zap.String("bucket", a.cfg.Assets.GCSBucket),
		zap.String("prefix", a.cfg.Assets.GCSPrefix),
	)
}

func (a *App) setupPublisher(ctx context.Context) {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		if a.nats != nil {
			a.logger.Info("publishing lifecycle events to NATS", zap.String("subject", a.cfg.NATS.Subject))
			a.publisher = a.nats
			return
		}
		a.logger.Info("no Pub/Sub topic configured, using in-memory publisher")
		a.publisher = memorypublisher.New(a.logger.Named("publisher"))
		return
	}
	pub, err := gcppublisher.Connect(ctx, gcppublisher.Config{
		ProjectID: a.cfg.PubSub.ProjectID,
		TopicID:   a.cfg.PubSub.TopicName,
	})
	if err != nil {
		a.logger.Warn("pubsub publisher init failed, using in-memory publisher", zap.Error(err))
		a.publisher = memorypublisher.New(a.logger.Named("publisher"))
		return
	}
	a.pubsub = pub
	a.publisher = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
}

// Pipeline runs one bootstrap attempt against the app's dependencies.
func (a *App) Pipeline(ctx context.Context) (*bootstrap.Pipeline, *bootstrap.Report) {
	return bootstrap.Build(ctx, bootstrap.Deps{
		Config:       a.cfg,
		Logger:       a.logger,
		Clock:        a.clock,
		Prober:       a.prober,
		Groups:       a.groups,
		Capabilities: a.capabilities(),
	})
}

// groups lists the business route groups in priority order.
func (a *App) groups(st *state.ServerState) []routes.Group {
	groups := []routes.Group{
		api.CoreGroup{Clock: a.clock, State: st, Prober: a.prober, Version: a.cfg.App.Version},
	}
	if a.cfg.Database.DSN != "" {
		groups = append(groups, api.DatabaseGroup{Prober: a.prober})
	}
	return groups
}

// unavailable records a capability that could not even be constructed.
type unavailable struct {
	name string
	err  error
}

func (u unavailable) Name() string { return u.name }

func (u unavailable) Attempt(context.Context, chi.Router) error { return u.err }

func (a *App) capabilities() []bootstrap.Capability {
	if a.cfg.IsServerless() {
		// The hosting platform serves the UI bundle itself.
		return nil
	}
	logger := a.logger.Named("assets")
	if a.cfg.IsDevelopment() {
		dev, err := assets.NewDevReload(assets.DevReloadConfig{
			Target:       a.cfg.Assets.DevServerURL,
			APIPrefix:    a.cfg.Telemetry.APIPrefix,
			CheckTimeout: a.cfg.Assets.CheckTimeout,
			Logger:       logger,
		})
		if err != nil {
			return []bootstrap.Capability{unavailable{name: "dev-reload", err: err}}
		}
		return []bootstrap.Capability{dev}
	}

	name := "static"
	var bundle assets.Source
	if a.storage != nil {
		src, err := gcsassets.New(a.storage, gcsassets.Config{Bucket: a.cfg.Assets.GCSBucket, Prefix: a.cfg.Assets.GCSPrefix})
		if err != nil {
			return []bootstrap.Capability{unavailable{name: "static-gcs", err: err}}
		}
		name, bundle = "static-gcs", src
	} else {
		src, err := localassets.New(localassets.Config{BaseDir: a.cfg.Assets.StaticDir})
		if err != nil {
			return []bootstrap.Capability{unavailable{name: name, err: err}}
		}
		bundle = src
	}

	var extra []assets.Source
	if a.cfg.Assets.PublicDir != "" {
		if public, err := localassets.New(localassets.Config{BaseDir: a.cfg.Assets.PublicDir}); err == nil {
			extra = append(extra, public)
		} else {
			logger.Debug("public directory unavailable", zap.Error(err))
		}
	}
	return []bootstrap.Capability{assets.NewStatic(assets.StaticConfig{
		Name:         name,
		Bundle:       bundle,
		Extra:        extra,
		APIPrefix:    a.cfg.Telemetry.APIPrefix,
		CheckTimeout: a.cfg.Assets.CheckTimeout,
		Logger:       logger,
	})}
}

// ProbeOnce checks every configured dependency a single time.
func (a *App) ProbeOnce(ctx context.Context) []probe.DependencyStatus {
	return a.prober.ProbeAll(ctx)
}

// Run bootstraps the pipeline, binds the listener and blocks until SIGINT,
// SIGTERM or ctx ends. Only a bind failure is returned as fatal.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer a.Close()

	pipeline, report := a.Pipeline(ctx)

	listener, err := adapter.Listen(adapter.ListenerConfig{
		Addr:              a.cfg.Addr(),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   a.cfg.Server.ShutdownTimeout,
		Logger:            a.logger,
	}, pipeline)
	if err != nil {
		a.logger.Error("listener bind failed", zap.Error(err))
		return err
	}

	go probe.NewMonitor(a.prober, a.cfg.Database.MonitorInterval, a.logger.Named("monitor")).Run(ctx)

	a.setupPublisher(ctx)
	scheduler := hooks.NewScheduler(hooks.SchedulerConfig{
		Delay:   a.cfg.Hooks.Delay,
		Timeout: a.cfg.Hooks.Timeout,
		Logger:  a.logger.Named("hooks"),
	})
	scheduler.Schedule(ctx, a.readyHooks(report)...)

	a.logger.Info("empire server ready",
		zap.String("addr", listener.Addr().String()),
		zap.String("phase", report.PhaseName),
		zap.String("mode", report.Mode),
	)
	serveErr := listener.Serve(ctx)
	stop()
	scheduler.Wait()
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}

func (a *App) readyHooks(report *bootstrap.Report) []hooks.Hook {
	topic := a.cfg.PubSub.TopicName
	switch {
	case a.pubsub != nil:
	case a.nats != nil && a.publisher == a.nats:
		topic = a.cfg.NATS.Subject
	case topic == "":
		topic = defaultReadyTopic
	}
	event := hooks.ReadyEvent{
		Service:      a.cfg.App.Name,
		Version:      a.cfg.App.Version,
		Phase:        report.PhaseName,
		Mode:         report.Mode,
		Profile:      report.Profile,
		Routes:       report.Routes,
		Dependencies: report.DependencyMap(),
		Capabilities: report.CapabilityMap(),
		ReadyAt:      report.ReadyAt,
	}
	hs := []hooks.Hook{hooks.AnnounceReady(a.publisher, topic, a.ids, event)}
	if a.cfg.Hooks.BrainURL != "" {
		hs = append(hs, hooks.BrainConnector(a.cfg.Hooks.BrainURL, nil))
	}
	return hs
}

// Close releases external clients. It is safe to call more than once.
func (a *App) Close() {
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
		a.pubsub = nil
	}
	if a.nats != nil {
		if err := a.nats.Close(); err != nil {
			a.logger.Warn("nats drain failed", zap.Error(err))
		}
		a.nats = nil
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.storage = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	_ = a.logger.Sync() //nolint:errcheck // syncing stderr fails on some terminals
}

// NewInvoker returns the serverless entry handler. Each cold start builds its
// own App and ServerState on the first request.
func NewInvoker(cfg config.Config) *adapter.Invoker {
	logger, err := logging.New(cfg.Logging.Development, cfg.App.Name)
	if err != nil {
		logger = zap.NewNop()
	}
	return adapter.NewInvoker(adapter.InvokerConfig{
		Build: func(ctx context.Context) (http.Handler, error) {
			pipeline, _ := newApp(ctx, cfg, logger).Pipeline(ctx)
			return pipeline, nil
		},
		CORS:        middleware.NewCORSPolicy(cfg.CORS.AllowHeaders),
		Development: cfg.Server.DebugErrors,
		Name:        cfg.App.Name,
		Version:     cfg.App.Version,
		Logger:      logger.Named("adapter"),
	})
}
