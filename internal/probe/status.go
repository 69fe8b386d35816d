package probe

import (
	"sort"
	"sync"
	"time"
)

// DependencyStatus is the last known liveness of one external dependency.
type DependencyStatus struct {
	Name          string    `json:"name"`
	Reachable     bool      `json:"reachable"`
	LastCheckedAt time.Time `json:"last_checked_at"`
	Error         string    `json:"error,omitempty"`
	LatencyMs     int64     `json:"latency_ms"`
}

// Table holds one DependencyStatus per dependency. Only the Prober writes it.
type Table struct {
	mu      sync.RWMutex
	entries map[string]DependencyStatus
}

// NewTable creates an empty status table.
func NewTable() *Table {
	return &Table{entries: make(map[string]DependencyStatus)}
}

func (t *Table) set(s DependencyStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[s.Name] = s
}

// Get returns the status for name.
func (t *Table) Get(name string) (DependencyStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.entries[name]
	return s, ok
}

// Reachable reports whether name answered its last probe. Unknown
// dependencies are unreachable.
func (t *Table) Reachable(name string) bool {
	s, ok := t.Get(name)
	return ok && s.Reachable
}

// Snapshot returns all statuses ordered by name.
func (t *Table) Snapshot() []DependencyStatus {
	t.mu.RLock()
	out := make([]DependencyStatus, 0, len(t.entries))
	for _, s := range t.entries {
		out = append(out, s)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
