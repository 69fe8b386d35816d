package api

import (
	"net/http"
	"time"

	"github.com/JakeFAU/empire-server/internal/middleware"
	"github.com/JakeFAU/empire-server/internal/state"
)

// Clock supplies timestamps for payloads.
type Clock interface {
	Now() time.Time
}

// StatusPayload is the body of GET /api/status.
type StatusPayload struct {
	Success   bool   `json:"success"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Server    string `json:"server"`
	Mode      string `json:"mode"`
	Version   string `json:"version,omitempty"`
}

// HealthPayload is the body of GET /api/health.
type HealthPayload struct {
	Success      bool            `json:"success"`
	Status       string          `json:"status"`
	Timestamp    string          `json:"timestamp"`
	Server       string          `json:"server"`
	Mode         string          `json:"mode"`
	Uptime       float64         `json:"uptime"`
	Dependencies map[string]bool `json:"dependencies,omitempty"`
}

func timestamp(c Clock) string {
	return c.Now().UTC().Format(time.RFC3339Nano)
}

func statusHandler(clock Clock, st *state.ServerState, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, StatusPayload{
			Success:   true,
			Status:    "healthy",
			Timestamp: timestamp(clock),
			Server:    "running",
			Mode:      st.Mode(),
			Version:   version,
		})
	}
}

func healthHandler(clock Clock, st *state.ServerState, deps func() map[string]bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		payload := HealthPayload{
			Success:   true,
			Status:    "healthy",
			Timestamp: timestamp(clock),
			Server:    "running",
			Mode:      st.Mode(),
			Uptime:    clock.Now().Sub(st.StartedAt()).Seconds(),
		}
		if deps != nil {
			payload.Dependencies = deps()
		}
		middleware.WriteJSON(w, http.StatusOK, payload)
	}
}

// plainHealth answers load balancer checks.
func plainHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK")) //nolint:errcheck // client went away
}
