// Package telemetry implements the response tap: one log line per API request
// summarizing method, path, status, latency and the start of the JSON body.
package telemetry

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/empire-server/internal/middleware"
)

const (
	defaultPrefix = "/api"
	defaultCap    = 80
	ellipsis      = "…"
)

// RequestTrace describes one finished request. It is built, logged and dropped.
type RequestTrace struct {
	Method     string
	Path       string
	StatusCode int
	Duration   time.Duration
	Summary    string
}

// Line renders the trace as "METHOD PATH STATUS in Nms[ :: summary]", cut to
// limit runes with a trailing ellipsis.
func (t RequestTrace) Line(limit int) string {
	line := fmt.Sprintf("%s %s %d in %dms", t.Method, t.Path, t.StatusCode, t.Duration.Milliseconds())
	if t.Summary != "" {
		line += " :: " + t.Summary
	}
	return truncate(line, limit)
}

func truncate(s string, limit int) string {
	if limit <= 1 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := 0
	for i := range s {
		if runes == limit-1 {
			return s[:i] + ellipsis
		}
		runes++
	}
	return s
}

// Config controls the tap.
type Config struct {
	APIPrefix  string
	SummaryCap int
	Logger     *zap.Logger
	Now        func() time.Time
}

// Tap returns middleware that logs a RequestTrace for every request under the
// API prefix. Other paths pass through untouched.
func Tap(cfg Config) func(http.Handler) http.Handler {
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = defaultPrefix
	}
	if cfg.SummaryCap <= 1 {
		cfg.SummaryCap = defaultCap
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	// Enough body for the summary to overflow the cap even with multibyte runes.
	captureLimit := cfg.SummaryCap * utf8.UTFMax

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, cfg.APIPrefix) {
				next.ServeHTTP(w, r)
				return
			}
			start := cfg.Now()
			rec := middleware.Record(w).Capture(captureLimit)
			defer func() {
				trace := RequestTrace{
					Method:     r.Method,
					Path:       r.URL.Path,
					StatusCode: rec.Status(),
					Duration:   cfg.Now().Sub(start),
				}
				if isJSON(rec.Header().Get("Content-Type")) {
					trace.Summary = summarize(rec.Captured())
				}
				cfg.Logger.Info(trace.Line(cfg.SummaryCap),
					zap.String("method", trace.Method),
					zap.String("path", trace.Path),
					zap.Int("status", trace.StatusCode),
					zap.Int64("duration_ms", trace.Duration.Milliseconds()),
					zap.String("request_id", middleware.RequestIDFrom(r.Context())),
				)
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func summarize(body []byte) string {
	body = bytes.TrimSpace(body)
	return strings.ToValidUTF8(string(body), "")
}
