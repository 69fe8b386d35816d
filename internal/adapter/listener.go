// Package adapter drives one request pipeline from either execution model:
// a persistent listener bound to a port, or a per-invocation serverless
// callable that wraps each request in a PendingInvocation.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrUnrecoverableStartup marks failures the process cannot serve through,
// such as the listen port being taken.
var ErrUnrecoverableStartup = errors.New("unrecoverable startup failure")

// ListenerConfig configures persistent-listener mode.
type ListenerConfig struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	Logger            *zap.Logger
}

// Listener serves a handler on a bound socket.
type Listener struct {
	cfg    ListenerConfig
	ln     net.Listener
	server *http.Server
}

// Listen binds the address immediately so bind errors surface before any
// traffic is expected.
func Listen(cfg ListenerConfig, handler http.Handler) (*Listener, error) {
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen on %s: %w", ErrUnrecoverableStartup, cfg.Addr, err)
	}
	return &Listener{
		cfg: cfg,
		ln:  ln,
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			ErrorLog:          zap.NewStdLog(cfg.Logger.Named("http_server")),
		},
	}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve blocks until ctx ends, then drains in-flight requests within the
// shutdown timeout.
func (l *Listener) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		l.cfg.Logger.Info("http server started", zap.String("addr", l.ln.Addr().String()))
		errCh <- l.server.Serve(l.ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	l.cfg.Logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), l.cfg.ShutdownTimeout)
	defer cancel()
	if err := l.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
