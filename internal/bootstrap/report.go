package bootstrap

import (
	"time"

	"github.com/JakeFAU/empire-server/internal/probe"
	"github.com/JakeFAU/empire-server/internal/state"
)

// CapabilityOutcome records one optional subsystem attempt.
type CapabilityOutcome struct {
	Name      string `json:"name"`
	Installed bool   `json:"installed"`
	Error     string `json:"error,omitempty"`
}

// Report summarizes one bootstrap attempt.
type Report struct {
	Phase        state.Phase              `json:"-"`
	PhaseName    string                   `json:"phase"`
	Mode         string                   `json:"mode"`
	Profile      string                   `json:"profile"`
	Emergency    bool                     `json:"emergency"`
	Dependencies []probe.DependencyStatus `json:"dependencies"`
	Routes       int                      `json:"routes"`
	// RegistrationError is set when the full route table was abandoned.
	RegistrationError error               `json:"-"`
	Capabilities      []CapabilityOutcome `json:"capabilities"`
	StartedAt         time.Time           `json:"started_at"`
	ReadyAt           time.Time           `json:"ready_at"`
}

// DependencyMap returns dependency reachability by name.
func (r *Report) DependencyMap() map[string]bool {
	out := make(map[string]bool, len(r.Dependencies))
	for _, d := range r.Dependencies {
		out[d.Name] = d.Reachable
	}
	return out
}

// CapabilityMap returns "installed" or the failure text per capability.
func (r *Report) CapabilityMap() map[string]string {
	out := make(map[string]string, len(r.Capabilities))
	for _, c := range r.Capabilities {
		if c.Installed {
			out[c.Name] = "installed"
			continue
		}
		out[c.Name] = c.Error
	}
	return out
}
