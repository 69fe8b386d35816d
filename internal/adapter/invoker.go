package adapter

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/empire-server/internal/metrics"
	"github.com/JakeFAU/empire-server/internal/middleware"
)

const (
	defaultName    = "Findawise Empire API"
	defaultVersion = "1.0.0"
)

// BuildFunc constructs the request pipeline for one cold start.
type BuildFunc func(ctx context.Context) (http.Handler, error)

// InvokerConfig configures serverless mode.
type InvokerConfig struct {
	Build BuildFunc
	CORS  middleware.CORSPolicy
	// Development exposes panic text in 500 payloads.
	Development bool
	Name        string
	Version     string
	Logger      *zap.Logger
	Now         func() time.Time
}

// FallbackPayload is served when the pipeline cannot be built.
type FallbackPayload struct {
	Message     string `json:"message"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Environment string `json:"environment"`
	Version     string `json:"version"`
}

// Invoker is the serverless entry point. The pipeline is built on the first
// invocation and reused by every later one in the same cold start, including
// when the build failed.
type Invoker struct {
	cfg      InvokerConfig
	once     sync.Once
	pipeline http.Handler
	buildErr error
}

// NewInvoker creates an Invoker.
func NewInvoker(cfg InvokerConfig) *Invoker {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Name == "" {
		cfg.Name = defaultName
	}
	if cfg.Version == "" {
		cfg.Version = defaultVersion
	}
	return &Invoker{cfg: cfg}
}

// ServeHTTP runs one invocation and waits for it to finish.
func (i *Invoker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	<-i.Invoke(w, r).Done()
}

// Invoke binds the request to the pipeline and returns its completion token.
// CORS headers are set before anything else happens.
func (i *Invoker) Invoke(w http.ResponseWriter, r *http.Request) *PendingInvocation {
	i.cfg.CORS.Apply(w)
	if middleware.Preflight(w, r) {
		metrics.ObserveInvocation("preflight")
		return completed(Completion{Status: http.StatusOK, HeadersSent: true})
	}

	pipeline, err := i.load(r.Context())
	if err != nil {
		metrics.ObserveInvocation("fallback")
		middleware.WriteJSON(w, http.StatusOK, FallbackPayload{
			Message:     i.cfg.Name,
			Status:      "operational",
			Timestamp:   i.cfg.Now().UTC().Format(time.RFC3339Nano),
			Environment: "serverless",
			Version:     i.cfg.Version,
		})
		return completed(Completion{Status: http.StatusOK, HeadersSent: true, Fallback: true})
	}

	p := newPending()
	go i.run(p, pipeline, w, r)
	return p
}

// load builds the pipeline once. A build that panics counts as failed.
func (i *Invoker) load(ctx context.Context) (http.Handler, error) {
	i.once.Do(func() {
		defer func() {
			if rec := recover(); rec != nil {
				i.buildErr = fmt.Errorf("build pipeline: panic: %v", rec)
			}
			if i.buildErr != nil {
				i.cfg.Logger.Error("pipeline construction failed, serving static fallback", zap.Error(i.buildErr))
			}
		}()
		if i.cfg.Build == nil {
			i.buildErr = fmt.Errorf("build pipeline: no build function")
			return
		}
		handler, err := i.cfg.Build(context.WithoutCancel(ctx))
		switch {
		case err != nil:
			i.buildErr = fmt.Errorf("build pipeline: %w", err)
		case handler == nil:
			i.buildErr = fmt.Errorf("build pipeline: nil handler")
		default:
			i.pipeline = handler
		}
	})
	return i.pipeline, i.buildErr
}

func (i *Invoker) run(p *PendingInvocation, pipeline http.Handler, w http.ResponseWriter, r *http.Request) {
	rec := middleware.Record(w)
	defer func() {
		v := recover()
		if v == nil {
			metrics.ObserveInvocation("ok")
			p.finish(Completion{Status: rec.Status(), HeadersSent: rec.HeadersSent()})
			return
		}
		metrics.ObserveInvocation("error")
		invErr := &InvocationError{Value: v, Stack: debug.Stack()}
		sent := middleware.HeadersSent(rec)
		i.cfg.Logger.Error("pipeline invocation failed",
			zap.Error(invErr),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Bool("headers_sent", sent),
		)
		status := rec.Status()
		if !sent {
			status = http.StatusInternalServerError
			middleware.WriteJSON(rec, status, middleware.NewErrorResponse(invErr, i.cfg.Now(), i.cfg.Development))
		}
		p.finish(Completion{Status: status, HeadersSent: true, Err: invErr})
	}()
	pipeline.ServeHTTP(rec, r)
}
