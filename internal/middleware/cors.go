package middleware

import (
	"net/http"
	"strings"
)

// AllowMethods is the fixed method list advertised to browsers.
const AllowMethods = "GET,OPTIONS,PATCH,DELETE,POST,PUT"

// CORSPolicy is the fixed header table applied to every response.
type CORSPolicy struct {
	allowHeaders string
}

// NewCORSPolicy builds the policy from the request-header allow-list.
func NewCORSPolicy(allowHeaders []string) CORSPolicy {
	return CORSPolicy{allowHeaders: strings.Join(allowHeaders, ", ")}
}

// Apply sets the CORS headers on w.
func (p CORSPolicy) Apply(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", AllowMethods)
	if p.allowHeaders != "" {
		h.Set("Access-Control-Allow-Headers", p.allowHeaders)
	}
}

// Preflight answers OPTIONS requests with 200 and no body. It reports whether
// the request was handled.
func Preflight(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodOptions {
		return false
	}
	w.WriteHeader(http.StatusOK)
	return true
}

// Middleware applies the policy before anything else runs and short-circuits
// pre-flight requests.
func (p CORSPolicy) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.Apply(w)
		if Preflight(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}
