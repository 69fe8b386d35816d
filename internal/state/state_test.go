package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServerStateForwardOnly(t *testing.T) {
	t.Parallel()

	s := New("normal", time.Unix(100, 0))
	require.Equal(t, Starting, s.Phase())
	require.Equal(t, "starting", s.Mode())

	require.NoError(t, s.Advance(ProbingDependencies))
	require.ErrorIs(t, s.Advance(Starting), ErrTransition)
	require.ErrorIs(t, s.Advance(ProbingDependencies), ErrTransition)
	require.ErrorIs(t, s.Advance(NormalReady), ErrTransition, "ready requires registration first")

	require.NoError(t, s.Advance(RegisteringRoutes))
	require.NoError(t, s.Advance(NormalReady))
	require.Equal(t, "normal", s.Mode())
	require.ErrorIs(t, s.Advance(EmergencyReady), ErrTransition, "ready phases are terminal")

	require.Equal(t, []Phase{Starting, ProbingDependencies, RegisteringRoutes, NormalReady}, s.History())
}

func TestServerStateDegradeFromAnyPhase(t *testing.T) {
	t.Parallel()

	for _, phase := range []Phase{Starting, ProbingDependencies, RegisteringRoutes, NormalReady} {
		phase := phase
		t.Run(phase.String(), func(t *testing.T) {
			t.Parallel()
			s := New("normal", time.Now())
			for p := ProbingDependencies; p <= phase; p++ {
				require.NoError(t, s.Advance(p))
			}
			s.Degrade("registrar failed")
			require.Equal(t, Degraded, s.Phase())
			require.Equal(t, "fallback", s.Mode())
			require.ErrorIs(t, s.Advance(NormalReady), ErrTransition)
			require.True(t, s.Phase().Terminal())
		})
	}
}

func TestServerStateDegradeAccumulatesReasons(t *testing.T) {
	t.Parallel()

	started := time.Unix(42, 0)
	s := New("emergency", started)
	s.Degrade("first")
	s.Degrade("second")

	snap := s.Snapshot()
	require.True(t, snap.Degraded)
	require.Equal(t, "degraded", snap.PhaseName)
	require.Equal(t, []string{"first", "second"}, snap.Reasons)
	require.Equal(t, "emergency", snap.Profile)
	require.Equal(t, started, snap.StartedAt)
	require.Equal(t, []Phase{Starting, Degraded}, s.History())
}

func TestServerStateRejectsAdvanceIntoDegraded(t *testing.T) {
	t.Parallel()

	s := New("normal", time.Now())
	require.ErrorIs(t, s.Advance(Degraded), ErrTransition)
	require.Equal(t, Starting, s.Phase())
}

func TestPhaseString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "emergency_ready", EmergencyReady.String())
	require.Equal(t, "phase(42)", Phase(42).String())
}
