// Package routes builds the ordered route table the pipeline serves.
//
// Registration is all-or-nothing: groups add routes to a scratch Builder and
// the Table is only produced when every group succeeded.
package routes

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Route is one entry of a Table.
type Route struct {
	Method  string
	Pattern string
	Handler http.Handler
	Group   string
}

// Table is an ordered, read-only sequence of routes.
type Table struct {
	routes []Route
}

// Len returns the number of routes.
func (t Table) Len() int {
	return len(t.routes)
}

// Routes returns a copy of the entries in registration order.
func (t Table) Routes() []Route {
	return append([]Route(nil), t.routes...)
}

// Has reports whether the table serves method + pattern.
func (t Table) Has(method, pattern string) bool {
	for _, r := range t.routes {
		if r.Method == method && r.Pattern == pattern {
			return true
		}
	}
	return false
}

// Install attaches every route to r in order.
func (t Table) Install(r chi.Router) {
	for _, route := range t.routes {
		r.Method(route.Method, route.Pattern, route.Handler)
	}
}

var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// Builder collects routes for one registration attempt.
type Builder struct {
	group  string
	routes []Route
	seen   map[string]string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{seen: make(map[string]string)}
}

// Handle adds a route. Unknown methods, relative patterns, nil handlers and
// duplicates are rejected.
func (b *Builder) Handle(method, pattern string, h http.Handler) error {
	method = strings.ToUpper(method)
	if !knownMethods[method] {
		return fmt.Errorf("unsupported method %q for %s", method, pattern)
	}
	if !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("pattern %q must start with /", pattern)
	}
	if h == nil {
		return fmt.Errorf("nil handler for %s %s", method, pattern)
	}
	key := method + " " + pattern
	if owner, dup := b.seen[key]; dup {
		return fmt.Errorf("%s already registered by group %q", key, owner)
	}
	b.seen[key] = b.group
	b.routes = append(b.routes, Route{Method: method, Pattern: pattern, Handler: h, Group: b.group})
	return nil
}

// Get adds a GET route.
func (b *Builder) Get(pattern string, h http.HandlerFunc) error {
	return b.Handle(http.MethodGet, pattern, h)
}

// Table freezes the collected routes.
func (b *Builder) Table() Table {
	return Table{routes: append([]Route(nil), b.routes...)}
}

// MustTable builds a Table from fixed routes. It panics on invalid input and
// is meant for hardcoded tables.
func MustTable(routes ...Route) Table {
	b := NewBuilder()
	for _, r := range routes {
		b.group = r.Group
		if err := b.Handle(r.Method, r.Pattern, r.Handler); err != nil {
			panic(fmt.Sprintf("routes: %v", err))
		}
	}
	return b.Table()
}
