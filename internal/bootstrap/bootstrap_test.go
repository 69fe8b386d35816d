package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/empire-server/internal/api"
	"github.com/JakeFAU/empire-server/internal/config"
	"github.com/JakeFAU/empire-server/internal/probe"
	"github.com/JakeFAU/empire-server/internal/routes"
	"github.com/JakeFAU/empire-server/internal/state"
)

func testConfig() config.Config {
	return config.Config{
		App:       config.AppConfig{Name: "Findawise Empire API", Version: "1.0.0"},
		Server:    config.ServerConfig{Port: 5000, Mode: config.ModeProduction, Profile: config.ProfileNormal},
		Database:  config.DatabaseConfig{ProbeTimeout: 100 * time.Millisecond},
		Telemetry: config.TelemetryConfig{APIPrefix: "/api", SummaryCap: 80},
		CORS:      config.CORSConfig{AllowHeaders: config.DefaultAllowHeaders},
	}
}

func dbChecker(reachable bool) map[string]probe.Checker {
	return map[string]probe.Checker{
		probe.Database: probe.CheckerFunc(func(context.Context) error {
			if reachable {
				return nil
			}
			return errors.New("connection refused")
		}),
	}
}

// offersGroup is a stand-in business group that counts handler executions.
type offersGroup struct {
	fail  bool
	calls *atomic.Int32
}

func (offersGroup) Name() string { return "affiliate" }

func (g offersGroup) Register(_ context.Context, b *routes.Builder) error {
	if err := b.Get("/api/affiliate/offers", func(w http.ResponseWriter, _ *http.Request) {
		if g.calls != nil {
			g.calls.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"offers":[]}`))
	}); err != nil {
		return err
	}
	if g.fail {
		return errors.New("storage not initialized")
	}
	return nil
}

type scenario struct {
	reachable     bool
	registrarFail bool
	profile       string
	required      bool
	calls         *atomic.Int32
	capabilities  []Capability
	logger        *zap.Logger
}

func build(t *testing.T, sc scenario) (*Pipeline, *Report) {
	t.Helper()
	cfg := testConfig()
	if sc.profile != "" {
		cfg.Server.Profile = sc.profile
	}
	cfg.Database.Required = sc.required
	prober := probe.New(probe.Config{Timeout: cfg.Database.ProbeTimeout}, dbChecker(sc.reachable))
	clock := fixedClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return Build(context.Background(), Deps{
		Config: cfg,
		Logger: sc.logger,
		Clock:  clock,
		Prober: prober,
		Groups: func(st *state.ServerState) []routes.Group {
			return []routes.Group{
				api.CoreGroup{Clock: clock, State: st, Prober: prober, Version: cfg.App.Version},
				offersGroup{fail: sc.registrarFail, calls: sc.calls},
			}
		},
		Capabilities: sc.capabilities,
	})
}

type fixedClock struct{ now time.Time }

func (f fixedClock) Now() time.Time { return f.now }

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestBuildAlwaysReachesTerminalPhase(t *testing.T) {
	t.Parallel()

	for _, reachable := range []bool{true, false} {
		for _, fail := range []bool{true, false} {
			for _, profile := range []string{config.ProfileNormal, config.ProfileEmergency} {
				for _, required := range []bool{true, false} {
					sc := scenario{reachable: reachable, registrarFail: fail, profile: profile, required: required}
					name := fmt.Sprintf("reachable=%v/fail=%v/%s/required=%v", reachable, fail, profile, required)
					t.Run(name, func(t *testing.T) {
						t.Parallel()
						p, report := build(t, sc)
						require.True(t, p.State().Phase().Terminal(), "ended in %s", p.State().Phase())
						require.Equal(t, p.State().Phase(), report.Phase)

						rec := do(t, p, http.MethodGet, "/api/health")
						require.Equal(t, http.StatusOK, rec.Code)
						require.Equal(t, true, decode(t, rec)["success"])
					})
				}
			}
		}
	}
}

func TestBuildDatabaseDownRegistrarOK(t *testing.T) {
	t.Parallel()

	calls := &atomic.Int32{}
	p, report := build(t, scenario{reachable: false, calls: calls})

	require.Equal(t, state.NormalReady, p.State().Phase())
	require.False(t, report.DependencyMap()[probe.Database])
	require.NoError(t, report.RegistrationError)
	require.True(t, p.Routes().Has(http.MethodGet, "/api/affiliate/offers"))

	rec := do(t, p, http.MethodGet, "/api/status")
	require.Equal(t, "normal", decode(t, rec)["mode"])

	rec = do(t, p, http.MethodGet, "/api/affiliate/offers")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int32(1), calls.Load())
}

func TestBuildRegistrarFailureInstallsFallback(t *testing.T) {
	t.Parallel()

	calls := &atomic.Int32{}
	p, report := build(t, scenario{reachable: true, registrarFail: true, calls: calls})

	require.Equal(t, state.Degraded, p.State().Phase())
	var regErr *routes.RegistrationError
	require.ErrorAs(t, report.RegistrationError, &regErr)
	require.Equal(t, "affiliate", regErr.Group)
	require.Equal(t, 3, report.Routes)

	rec := do(t, p, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "fallback", body["mode"])
	require.Equal(t, true, body["success"])

	rec = do(t, p, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decode(t, rec)["success"])

	rec = do(t, p, http.MethodGet, "/health")
	require.Equal(t, "OK", rec.Body.String())

	for _, path := range []string{"/api/affiliate/offers", "/api/dependencies", "/metrics"} {
		rec = do(t, p, http.MethodGet, path)
		require.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	require.Zero(t, calls.Load(), "partially registered routes are never served")
}

func TestBuildEmergencyProfile(t *testing.T) {
	t.Parallel()

	t.Run("configured", func(t *testing.T) {
		t.Parallel()
		p, report := build(t, scenario{reachable: true, profile: config.ProfileEmergency})
		require.Equal(t, state.EmergencyReady, p.State().Phase())
		require.True(t, report.Emergency)
		require.Equal(t, "emergency", decode(t, do(t, p, http.MethodGet, "/api/status"))["mode"])
		require.Equal(t, http.StatusNotFound, do(t, p, http.MethodGet, "/api/affiliate/offers").Code)
	})

	t.Run("required database unreachable", func(t *testing.T) {
		t.Parallel()
		p, report := build(t, scenario{reachable: false, required: true})
		require.Equal(t, state.EmergencyReady, p.State().Phase())
		require.True(t, report.Emergency)
	})

	t.Run("required database reachable", func(t *testing.T) {
		t.Parallel()
		p, _ := build(t, scenario{reachable: true, required: true})
		require.Equal(t, state.NormalReady, p.State().Phase())
	})
}

func TestPreflightShortCircuits(t *testing.T) {
	t.Parallel()

	calls := &atomic.Int32{}
	for _, sc := range []scenario{{reachable: true, calls: calls}, {registrarFail: true, calls: calls}} {
		p, _ := build(t, sc)
		for _, path := range []string{"/api/affiliate/offers", "/api/status", "/anything/at/all"} {
			rec := do(t, p, http.MethodOptions, path)
			require.Equal(t, http.StatusOK, rec.Code)
			require.Empty(t, rec.Body.String())
			require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
			require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
			require.Equal(t, "GET,OPTIONS,PATCH,DELETE,POST,PUT", rec.Header().Get("Access-Control-Allow-Methods"))
			require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "x-client-version")
		}
	}
	require.Zero(t, calls.Load())
}

func TestCORSHeadersOnEveryResponse(t *testing.T) {
	t.Parallel()

	p, _ := build(t, scenario{reachable: true})
	for _, path := range []string{"/api/status", "/health", "/nope"} {
		rec := do(t, p, http.MethodGet, path)
		require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), path)
		require.NotEmpty(t, rec.Header().Get("X-Request-ID"), path)
	}
}

type stubCapability struct {
	name string
	err  error
	hit  *atomic.Int32
}

func (c stubCapability) Name() string { return c.name }

func (c stubCapability) Attempt(_ context.Context, r chi.Router) error {
	if c.err != nil {
		return c.err
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		c.hit.Add(1)
		_, _ = w.Write([]byte("ui"))
	})
	return nil
}

type panickingCapability struct{}

func (panickingCapability) Name() string { return "hmr" }

func (panickingCapability) Attempt(context.Context, chi.Router) error { panic("vite missing") }

func TestCapabilityFailuresAreSkipped(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	hits := &atomic.Int32{}
	p, report := build(t, scenario{
		reachable: true,
		logger:    zap.New(core),
		capabilities: []Capability{
			stubCapability{name: "dev-reload", err: errors.New("dev server down")},
			panickingCapability{},
			stubCapability{name: "static", hit: hits},
		},
	})

	require.Equal(t, state.NormalReady, p.State().Phase(), "capability failures never change the phase")
	require.Len(t, report.Capabilities, 3)
	require.False(t, report.Capabilities[0].Installed)
	require.Contains(t, report.Capabilities[0].Error, "dev server down")
	require.False(t, report.Capabilities[1].Installed)
	require.Contains(t, report.Capabilities[1].Error, "vite missing")
	require.True(t, report.Capabilities[2].Installed)
	require.Equal(t, "installed", report.CapabilityMap()["static"])
	require.Equal(t, 2, logs.FilterMessage("capability skipped").Len())

	rec := do(t, p, http.MethodGet, "/dashboard")
	require.Equal(t, "ui", rec.Body.String())
	require.Equal(t, int32(1), hits.Load())
}

func TestAttemptWrapsAuxiliaryFailures(t *testing.T) {
	t.Parallel()

	err := attempt(context.Background(), stubCapability{name: "static", err: errors.New("no index")}, chi.NewRouter())
	require.ErrorIs(t, err, ErrAuxiliaryService)
	require.ErrorContains(t, err, "static")
}

func TestBuildIsRepeatable(t *testing.T) {
	t.Parallel()

	first, r1 := build(t, scenario{reachable: true})
	second, r2 := build(t, scenario{reachable: true})

	require.NotSame(t, first.State(), second.State())
	require.Equal(t, r1.Phase, r2.Phase)
	require.Equal(t, r1.Routes, r2.Routes)
	require.Equal(t, do(t, first, http.MethodGet, "/api/status").Body.String(),
		do(t, second, http.MethodGet, "/api/status").Body.String())
}

func TestTelemetryTapLogsAPIRequests(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	p, _ := build(t, scenario{reachable: true, logger: zap.New(core)})

	do(t, p, http.MethodGet, "/api/affiliate/offers")
	do(t, p, http.MethodGet, "/health")

	var lines []string
	for _, e := range logs.All() {
		if e.LoggerName == "bootstrap.http" {
			lines = append(lines, e.Message)
		}
	}
	require.Len(t, lines, 1)
	require.True(t, strings.HasPrefix(lines[0], "GET /api/affiliate/offers 200 in "))
	require.True(t, strings.HasSuffix(lines[0], `:: {"offers":[]}`))
}

func TestHandlerPanicBecomesStructured500(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	p, _ := Build(context.Background(), Deps{
		Config: cfg,
		Groups: func(*state.ServerState) []routes.Group {
			return []routes.Group{routes.GroupFunc{GroupName: "boom", Fn: func(_ context.Context, b *routes.Builder) error {
				return b.Get("/api/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })
			}}}
		},
	})

	rec := do(t, p, http.MethodGet, "/api/boom")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "error", body["status"])
	require.Equal(t, "Internal server error", body["message"])
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandlerPanicDetailFollowsDebugFlag(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.Mode = config.ModeServerless
	cfg.Server.DebugErrors = true
	p, _ := Build(context.Background(), Deps{
		Config: cfg,
		Groups: func(*state.ServerState) []routes.Group {
			return []routes.Group{routes.GroupFunc{GroupName: "boom", Fn: func(_ context.Context, b *routes.Builder) error {
				return b.Get("/api/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })
			}}}
		},
	})

	rec := do(t, p, http.MethodGet, "/api/boom")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "kaboom", decode(t, rec)["message"])
}

func TestRequestTimeoutBoundsHandlers(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.RequestTimeout = 20 * time.Millisecond
	p, _ := Build(context.Background(), Deps{
		Config: cfg,
		Groups: func(*state.ServerState) []routes.Group {
			return []routes.Group{routes.GroupFunc{GroupName: "slow", Fn: func(_ context.Context, b *routes.Builder) error {
				return b.Get("/api/slow", func(_ http.ResponseWriter, r *http.Request) {
					select {
					case <-r.Context().Done():
					case <-time.After(5 * time.Second):
					}
				})
			}}}
		},
	})

	start := time.Now()
	rec := do(t, p, http.MethodGet, "/api/slow")
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	require.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGroupFactoryPanicDegrades(t *testing.T) {
	t.Parallel()

	p, report := Build(context.Background(), Deps{
		Config: testConfig(),
		Groups: func(*state.ServerState) []routes.Group { panic("registry corrupted") },
	})
	require.Equal(t, state.Degraded, p.State().Phase())
	require.ErrorContains(t, report.RegistrationError, "registry corrupted")
	require.Equal(t, http.StatusOK, do(t, p, http.MethodGet, "/api/health").Code)
}
