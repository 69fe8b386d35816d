// Package state models the lifecycle of a single bootstrap attempt.
//
// A ServerState is created per process (persistent mode) or per cold start
// (serverless mode) and handed explicitly to whoever needs it. Phases only move
// forward; Degraded may be entered from any phase and ends the attempt.
package state

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Phase is one step of the bootstrap state machine.
type Phase int

// Phases in their forward order. Degraded sits outside the order.
const (
	Starting Phase = iota
	ProbingDependencies
	RegisteringRoutes
	NormalReady
	EmergencyReady
	Degraded
)

var phaseNames = map[Phase]string{
	Starting:            "starting",
	ProbingDependencies: "probing_dependencies",
	RegisteringRoutes:   "registering_routes",
	NormalReady:         "normal_ready",
	EmergencyReady:      "emergency_ready",
	Degraded:            "degraded",
}

// String returns the snake_case phase name used in logs and payloads.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Terminal reports whether the phase ends a bootstrap attempt.
func (p Phase) Terminal() bool {
	return p == NormalReady || p == EmergencyReady || p == Degraded
}

// ErrTransition is returned for transitions the state machine refuses.
var ErrTransition = errors.New("invalid state transition")

// Snapshot is an immutable copy of a ServerState.
type Snapshot struct {
	Phase     Phase     `json:"-"`
	PhaseName string    `json:"phase"`
	Degraded  bool      `json:"degraded"`
	Reasons   []string  `json:"reasons,omitempty"`
	Profile   string    `json:"profile"`
	Mode      string    `json:"mode"`
	StartedAt time.Time `json:"started_at"`
}

// ServerState tracks the active phase of one bootstrap attempt.
type ServerState struct {
	mu        sync.RWMutex
	phase     Phase
	reasons   []string
	profile   string
	startedAt time.Time
	history   []Phase
}

// New creates a ServerState in the Starting phase.
func New(profile string, startedAt time.Time) *ServerState {
	return &ServerState{
		phase:     Starting,
		profile:   profile,
		startedAt: startedAt,
		history:   []Phase{Starting},
	}
}

// Advance moves to a later phase. Moving backwards, re-entering the current
// phase, entering Degraded through Advance, or leaving Degraded all fail.
func (s *ServerState) Advance(next Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.phase == Degraded:
		return fmt.Errorf("%w: attempt already degraded, cannot enter %s", ErrTransition, next)
	case next == Degraded:
		return fmt.Errorf("%w: use Degrade to enter %s", ErrTransition, next)
	case s.phase.Terminal():
		return fmt.Errorf("%w: %s is terminal", ErrTransition, s.phase)
	case next <= s.phase:
		return fmt.Errorf("%w: %s -> %s", ErrTransition, s.phase, next)
	case next == EmergencyReady && s.phase < RegisteringRoutes, next == NormalReady && s.phase < RegisteringRoutes:
		return fmt.Errorf("%w: %s -> %s skips route registration", ErrTransition, s.phase, next)
	}
	s.phase = next
	s.history = append(s.history, next)
	return nil
}

// Degrade marks the attempt as running with reduced capability. It is valid
// from every phase; further reasons are appended once degraded.
func (s *ServerState) Degrade(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasons = append(s.reasons, reason)
	if s.phase != Degraded {
		s.phase = Degraded
		s.history = append(s.history, Degraded)
	}
}

// Phase returns the active phase.
func (s *ServerState) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// History returns the phases visited, in order.
func (s *ServerState) History() []Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Phase(nil), s.history...)
}

// Mode is the operating mode reported by the status endpoints.
func (s *ServerState) Mode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return modeFor(s.phase)
}

func modeFor(p Phase) string {
	switch p {
	case NormalReady:
		return "normal"
	case EmergencyReady:
		return "emergency"
	case Degraded:
		return "fallback"
	default:
		return "starting"
	}
}

// Snapshot copies the current state.
func (s *ServerState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Phase:     s.phase,
		PhaseName: s.phase.String(),
		Degraded:  s.phase == Degraded,
		Reasons:   append([]string(nil), s.reasons...),
		Profile:   s.profile,
		Mode:      modeFor(s.phase),
		StartedAt: s.startedAt,
	}
}

// StartedAt returns when the attempt began; uptime is measured from here.
func (s *ServerState) StartedAt() time.Time {
	return s.startedAt
}
