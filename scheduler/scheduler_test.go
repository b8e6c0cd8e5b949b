package scheduler

import (
	"testing"

	"github.com/loomkit/compose/slot"
)

func TestScheduleInvalidationIsIdempotent(t *testing.T) {
	s := New()
	scope := s.NewScope(slot.AnchorId(1))

	s.ScheduleInvalidation(scope)
	s.ScheduleInvalidation(scope)
	if got := s.PendingCount(); got != 1 {
		t.Fatalf("expected 1 pending scope, got %d", got)
	}
}

func TestScheduleInvalidationIgnoresDeadScope(t *testing.T) {
	s := New()
	scope := s.NewScope(slot.AnchorId(1))
	s.RemoveScope(scope)

	s.ScheduleInvalidation(scope)
	if got := s.PendingCount(); got != 0 {
		t.Fatalf("expected scheduling a removed scope to be a no-op, got %d pending", got)
	}
}

func TestProcessInvalidScopesRunsEachLiveScopeOnce(t *testing.T) {
	s := New()
	a := s.NewScope(slot.AnchorId(1))
	b := s.NewScope(slot.AnchorId(2))
	s.ScheduleInvalidation(a)
	s.ScheduleInvalidation(b)

	var visited []ScopeId
	changed, err := s.ProcessInvalidScopes(func(scope ScopeId) {
		visited = append(visited, scope)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Fatalf("expected no further invalidations from a pass that schedules none")
	}
	if len(visited) != 2 || visited[0] != a || visited[1] != b {
		t.Fatalf("expected [a b] in insertion order, got %v", visited)
	}
	if s.PendingCount() != 0 {
		t.Fatalf("expected invalidation set drained, got %d pending", s.PendingCount())
	}
}

func TestProcessInvalidScopesSkipsScopeRemovedDuringRecompose(t *testing.T) {
	s := New()
	a := s.NewScope(slot.AnchorId(1))
	b := s.NewScope(slot.AnchorId(2))
	s.ScheduleInvalidation(a)
	s.ScheduleInvalidation(b)

	var visited []ScopeId
	s.ProcessInvalidScopes(func(scope ScopeId) {
		if scope == a {
			s.RemoveScope(b)
		}
		visited = append(visited, scope)
	})
	if len(visited) != 1 || visited[0] != a {
		t.Fatalf("expected only a to run since b was removed before its turn, got %v", visited)
	}
}

func TestProcessInvalidScopesDoesNotRevisitWithinOnePass(t *testing.T) {
	s := New()
	a := s.NewScope(slot.AnchorId(1))
	b := s.NewScope(slot.AnchorId(2))
	s.ScheduleInvalidation(a)
	s.ScheduleInvalidation(b)

	var visited []ScopeId
	changed, err := s.ProcessInvalidScopes(func(scope ScopeId) {
		visited = append(visited, scope)
		// Re-invalidating the scope currently running, and the other
		// live scope, must not cause either to run twice in this pass.
		s.ScheduleInvalidation(a)
		s.ScheduleInvalidation(b)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(visited) != 2 {
		t.Fatalf("expected exactly one visit per scope in this pass, got %v", visited)
	}
	if !changed {
		t.Fatalf("expected changed=true since both scopes re-invalidated themselves")
	}
	if got := s.PendingCount(); got != 2 {
		t.Fatalf("expected both re-invalidations pending for the next pass, got %d", got)
	}
}

func TestProcessInvalidScopesNoopWhenNothingPending(t *testing.T) {
	s := New()
	changed, err := s.ProcessInvalidScopes(func(ScopeId) {
		t.Fatalf("recompose should not be called when nothing is invalid")
	})
	if err != nil || changed {
		t.Fatalf("expected (false, nil), got (%v, %v)", changed, err)
	}
}

func TestFuelExhaustionReportsError(t *testing.T) {
	s := New()
	s.fuelLimit = 3
	scope := s.NewScope(slot.AnchorId(1))
	s.ScheduleInvalidation(scope)

	var err error
	for i := 0; i < 3; i++ {
		_, err = s.ProcessInvalidScopes(func(ScopeId) {
			s.ScheduleInvalidation(scope) // never settles
		})
		if err != nil {
			t.Fatalf("unexpected error on call %d: %v", i, err)
		}
	}
	// Fuel is now fully spent (3 calls against a limit of 3); a fourth
	// call must report exhaustion instead of recomposing again.
	ran := false
	_, err = s.ProcessInvalidScopes(func(ScopeId) { ran = true })
	if err != ErrFuelExhausted {
		t.Fatalf("expected ErrFuelExhausted, got %v", err)
	}
	if ran {
		t.Fatalf("expected recompose not to run once fuel is exhausted")
	}
}

func TestRenderStartedReplenishesFuel(t *testing.T) {
	s := New()
	s.fuelLimit = 1
	scope := s.NewScope(slot.AnchorId(1))
	s.ScheduleInvalidation(scope)

	if _, err := s.ProcessInvalidScopes(func(ScopeId) {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.ProcessInvalidScopes(func(ScopeId) {}); err != ErrFuelExhausted {
		t.Fatalf("expected fuel exhausted on second call, got %v", err)
	}

	s.RenderStarted()
	s.ScheduleInvalidation(scope)
	if _, err := s.ProcessInvalidScopes(func(ScopeId) {}); err != nil {
		t.Fatalf("expected fuel replenished after RenderStarted, got %v", err)
	}
}

func TestDrainFrameCallbacksDefersCallbacksRegisteredDuringDrain(t *testing.T) {
	s := New()
	var order []int64
	var cancel CancelFunc
	s.RegisterFrameCallback(func(t int64) {
		order = append(order, t)
		cancel = s.RegisterFrameCallback(func(t int64) {
			order = append(order, t)
		})
	})

	s.DrainFrameCallbacks(1)
	if len(order) != 1 || order[0] != 1 {
		t.Fatalf("expected only the first callback to run at t=1, got %v", order)
	}

	s.DrainFrameCallbacks(2)
	if len(order) != 2 || order[1] != 2 {
		t.Fatalf("expected the nested callback to run at t=2, got %v", order)
	}
	_ = cancel
}

func TestCancelledFrameCallbackDoesNotRun(t *testing.T) {
	s := New()
	ran := false
	cancel := s.RegisterFrameCallback(func(int64) { ran = true })
	cancel()
	s.DrainFrameCallbacks(5)
	if ran {
		t.Fatalf("expected cancelled callback not to run")
	}
	// Cancelling twice, or after the drain, must not panic.
	cancel()
}

func TestShouldRenderReflectsAllThreeSources(t *testing.T) {
	s := New()
	if s.ShouldRender() {
		t.Fatalf("expected false on a fresh scheduler")
	}

	scope := s.NewScope(slot.AnchorId(1))
	s.ScheduleInvalidation(scope)
	if !s.ShouldRender() {
		t.Fatalf("expected true with a pending invalidation")
	}
	s.ProcessInvalidScopes(func(ScopeId) {})
	if s.ShouldRender() {
		t.Fatalf("expected false once invalidations are drained")
	}

	cancel := s.RegisterFrameCallback(func(int64) {})
	if !s.ShouldRender() {
		t.Fatalf("expected true with a queued frame callback")
	}
	cancel()
	s.DrainFrameCallbacks(0)

	s.MarkStateMutated()
	if !s.ShouldRender() {
		t.Fatalf("expected true after a state mutation")
	}
	s.RenderStarted()
	if s.ShouldRender() {
		t.Fatalf("expected false after RenderStarted clears the mutation flag")
	}
}

func TestFrameRequestedTracksScheduleAndRegister(t *testing.T) {
	s := New()
	if s.FrameRequested() {
		t.Fatalf("expected no frame requested initially")
	}
	scope := s.NewScope(slot.AnchorId(1))
	s.ScheduleInvalidation(scope)
	if !s.FrameRequested() {
		t.Fatalf("expected ScheduleInvalidation to request a frame")
	}
	s.RenderStarted()
	if s.FrameRequested() {
		t.Fatalf("expected RenderStarted to clear the frame request")
	}
}
