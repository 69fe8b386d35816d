package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const indexFile = "index.html"

// StaticConfig configures the static bundle capability.
type StaticConfig struct {
	// Name labels the capability in logs and metrics.
	Name string
	// Bundle holds the built UI; it must contain index.html.
	Bundle Source
	// Extra sources are consulted after Bundle, e.g. the PWA public directory.
	Extra        []Source
	APIPrefix    string
	CheckTimeout time.Duration
	Logger       *zap.Logger
}

// Static serves a prebuilt UI bundle with single-page-app index fallback.
type Static struct {
	cfg StaticConfig
}

// NewStatic builds the capability.
func NewStatic(cfg StaticConfig) *Static {
	if cfg.Name == "" {
		cfg.Name = "static"
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Static{cfg: cfg}
}

// Name returns the capability label.
func (s *Static) Name() string { return s.cfg.Name }

// Attempt verifies the bundle has an index and installs the handler for
// unmatched paths.
func (s *Static) Attempt(ctx context.Context, r chi.Router) error {
	if s.cfg.Bundle == nil {
		return fmt.Errorf("%w: no bundle source", ErrUnavailable)
	}
	checkCtx, cancel := context.WithTimeout(ctx, s.cfg.CheckTimeout)
	defer cancel()
	obj, err := s.cfg.Bundle.Open(checkCtx, indexFile)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrUnavailable, indexFile, err)
	}
	_ = obj.Body.Close() //nolint:errcheck // probe read only

	r.NotFound(s.ServeHTTP)
	return nil
}

// ServeHTTP serves one unmatched request.
func (s *Static) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if underPrefix(r.URL.Path, s.cfg.APIPrefix) {
		apiNotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		name = indexFile
	}
	obj, err := s.open(r.Context(), name)
	if errors.Is(err, fs.ErrNotExist) && path.Ext(name) == "" {
		name = indexFile
		obj, err = s.cfg.Bundle.Open(r.Context(), indexFile)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		s.cfg.Logger.Warn("asset read failed", zap.String("asset", name), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	defer obj.Body.Close() //nolint:errcheck // read side

	writeObject(w, r, name, obj)
}

func (s *Static) open(ctx context.Context, name string) (*Object, error) {
	sources := append([]Source{s.cfg.Bundle}, s.cfg.Extra...)
	var lastErr error = fs.ErrNotExist
	for _, src := range sources {
		obj, err := src.Open(ctx, name)
		if err == nil {
			return obj, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func writeObject(w http.ResponseWriter, r *http.Request, name string, obj *Object) {
	contentType := obj.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(name))
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if name == indexFile {
		w.Header().Set("Cache-Control", "no-cache")
	}
	if rs, ok := obj.Body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, obj.ModTime, rs)
		return
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.Copy(w, obj.Body) //nolint:errcheck // client went away
}
