package assets

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// DevReloadConfig configures the development proxy.
type DevReloadConfig struct {
	// Target is the live-reload dev server base URL.
	Target       string
	APIPrefix    string
	CheckTimeout time.Duration
	Client       *http.Client
	Logger       *zap.Logger
}

// DevReload proxies unmatched non-API requests, websocket upgrades included, to
// the UI dev server so the browser gets hot module reloading.
type DevReload struct {
	cfg    DevReloadConfig
	target *url.URL
	proxy  *httputil.ReverseProxy
}

// NewDevReload validates the target URL.
func NewDevReload(cfg DevReloadConfig) (*DevReload, error) {
	target, err := url.Parse(cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("parse dev server url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("dev server url %q must be absolute", cfg.Target)
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 2 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	d := &DevReload{cfg: cfg, target: target}
	d.proxy = httputil.NewSingleHostReverseProxy(target)
	d.proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		d.cfg.Logger.Warn("dev server proxy failed", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "dev server unavailable", http.StatusBadGateway)
	}
	return d, nil
}

// Name returns the capability label.
func (d *DevReload) Name() string { return "dev-reload" }

// Attempt checks the dev server answers and installs the proxy.
func (d *DevReload) Attempt(ctx context.Context, r chi.Router) error {
	checkCtx, cancel := context.WithTimeout(ctx, d.cfg.CheckTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, d.target.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: build dev server check: %w", ErrUnavailable, err)
	}
	resp, err := d.cfg.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: dev server %s: %w", ErrUnavailable, d.target, err)
	}
	_ = resp.Body.Close() //nolint:errcheck // status only
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: dev server %s answered %d", ErrUnavailable, d.target, resp.StatusCode)
	}

	r.NotFound(d.ServeHTTP)
	return nil
}

// ServeHTTP forwards one unmatched request.
func (d *DevReload) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if underPrefix(r.URL.Path, d.cfg.APIPrefix) {
		apiNotFound(w, r)
		return
	}
	d.proxy.ServeHTTP(w, r)
}
