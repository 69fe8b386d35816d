package api

import (
	"net/http"

	"github.com/JakeFAU/empire-server/internal/routes"
	"github.com/JakeFAU/empire-server/internal/state"
)

// FallbackTable returns the fixed route set installed when full registration
// fails or the emergency profile applies. Its handlers only read the clock and
// the ServerState.
func FallbackTable(clock Clock, st *state.ServerState) routes.Table {
	return routes.MustTable(
		routes.Route{Method: http.MethodGet, Pattern: "/api/status", Handler: statusHandler(clock, st, ""), Group: "fallback"},
		routes.Route{Method: http.MethodGet, Pattern: "/api/health", Handler: healthHandler(clock, st, nil), Group: "fallback"},
		routes.Route{Method: http.MethodGet, Pattern: "/health", Handler: http.HandlerFunc(plainHealth), Group: "fallback"},
	)
}
