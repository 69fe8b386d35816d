// Package assets provides the optional UI-serving capabilities folded into the
// pipeline after route registration: a reverse proxy to the live-reload dev
// server in development, and static bundle serving (local disk or GCS)
// everywhere else. Both only answer requests no route matched.
package assets

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/empire-server/internal/middleware"
)

// Object is one file opened from a Source.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
	ModTime     time.Time
}

// Source opens bundle files by slash-separated name. Missing files return an
// error matching fs.ErrNotExist.
type Source interface {
	Open(ctx context.Context, name string) (*Object, error)
}

// ErrUnavailable wraps failures to reach an asset backend during Attempt.
var ErrUnavailable = errors.New("asset backend unavailable")

func underPrefix(path, prefix string) bool {
	if prefix == "" || !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// apiNotFound answers unmatched API paths so they never reach the UI layer.
func apiNotFound(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusNotFound, map[string]any{
		"success": false,
		"error":   "route not found",
		"path":    r.URL.Path,
	})
}
