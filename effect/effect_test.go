package effect

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/loomkit/compose/compose"
	"github.com/loomkit/compose/scheduler"
	"github.com/loomkit/compose/slot"
	"github.com/loomkit/compose/snapshot"
)

type syncDispatcher struct{}

func (syncDispatcher) Go(fn func()) { fn() }

type noopClock struct{}

func (noopClock) AwaitFrame() int64 { return 0 }

type fakeHandle struct {
	sched *scheduler.Scheduler
}

func (h fakeHandle) Tasks() compose.TaskDispatcher      { return syncDispatcher{} }
func (h fakeHandle) Clock() compose.FrameClock          { return noopClock{} }
func (h fakeHandle) Scheduler() *scheduler.Scheduler    { return h.sched }

func newComposer() *compose.Composer {
	table := slot.NewChunked()
	sched := scheduler.New()
	store := snapshot.NewStore()
	snap := store.TakeMutableSnapshot(nil, nil)
	return compose.New(table, sched, snap, fakeHandle{sched: sched})
}

func loc(line int) compose.Location { return compose.Location{File: "effect_test.go", Line: line} }

func drain(c *compose.Composer) {
	for _, e := range c.DrainPendingEffects() {
		e.Run()
	}
}

func TestLaunchedRunsOnceForStableKeys(t *testing.T) {
	c := newComposer()
	runs := 0
	parent := c.WithGroup(slot.Key(1), func() {
		Launched(c, loc(10), "k", func(s Scope) { runs++ })
	})
	drain(c)
	if runs != 1 {
		t.Fatalf("expected 1 launch, got %d", runs)
	}

	c.RecomposeScope(parent, func() {
		Launched(c, loc(10), "k", func(s Scope) { runs++ })
	})
	drain(c)
	if runs != 1 {
		t.Fatalf("expected no relaunch for an unchanged key, got %d runs", runs)
	}
}

func TestLaunchedRelaunchesOnKeyChangeAndCancelsPrevious(t *testing.T) {
	c := newComposer()
	var scopes []Scope
	parent := c.WithGroup(slot.Key(1), func() {
		Launched(c, loc(20), "a", func(s Scope) { scopes = append(scopes, s) })
	})
	drain(c)
	if len(scopes) != 1 {
		t.Fatalf("expected 1 launch, got %d", len(scopes))
	}
	if !scopes[0].IsActive() {
		t.Fatalf("expected first scope active before rekey")
	}

	c.RecomposeScope(parent, func() {
		Launched(c, loc(20), "b", func(s Scope) { scopes = append(scopes, s) })
	})
	drain(c)

	if len(scopes) != 2 {
		t.Fatalf("expected 2 launches after rekey, got %d", len(scopes))
	}
	if scopes[0].IsActive() {
		t.Fatalf("expected first scope cancelled once its key changed")
	}
	if !scopes[1].IsActive() {
		t.Fatalf("expected second scope active")
	}
}

func TestLaunchedCancelledWhenCallSiteOmittedFromParentRerun(t *testing.T) {
	c := newComposer()
	var got Scope
	parent := c.WithGroup(slot.Key(1), func() {
		Launched(c, loc(30), "k", func(s Scope) { got = s })
	})
	drain(c)
	if !got.IsActive() {
		t.Fatalf("expected scope active after first launch")
	}

	c.RecomposeScope(parent, func() {
		// call site omitted this run
	})
	drain(c)

	if got.IsActive() {
		t.Fatalf("expected scope cancelled once its call site drops out of the parent body")
	}
}

func TestDisposableRunsCleanupOnRekeyThenOnDisposal(t *testing.T) {
	c := newComposer()
	var events []string
	parent := c.WithGroup(slot.Key(1), func() {
		Disposable(c, loc(40), "a", func() func() {
			events = append(events, "setup:a")
			return func() { events = append(events, "cleanup:a") }
		})
	})
	drain(c)
	if got := events; len(got) != 1 || got[0] != "setup:a" {
		t.Fatalf("expected only setup:a to have run, got %v", got)
	}

	c.RecomposeScope(parent, func() {
		Disposable(c, loc(40), "b", func() func() {
			events = append(events, "setup:b")
			return func() { events = append(events, "cleanup:b") }
		})
	})
	drain(c)
	want := []string{"setup:a", "cleanup:a", "setup:b"}
	if !equalStrings(events, want) {
		t.Fatalf("expected %v after rekey, got %v", want, events)
	}

	c.RecomposeScope(parent, func() {
		// call site omitted: final cleanup should fire
	})
	drain(c)
	want = append(want, "cleanup:b")
	if !equalStrings(events, want) {
		t.Fatalf("expected %v after disposal, got %v", want, events)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestWithFrameNanosRunsOnceAtNextDrain(t *testing.T) {
	sched := scheduler.New()
	handle := fakeHandle{sched: sched}
	var got int64
	calls := 0
	WithFrameNanos(handle, func(t int64) {
		calls++
		got = t
	})
	sched.DrainFrameCallbacks(42)
	if calls != 1 || got != 42 {
		t.Fatalf("expected exactly one call with t=42, got calls=%d got=%d", calls, got)
	}
	sched.DrainFrameCallbacks(99)
	if calls != 1 {
		t.Fatalf("expected frame callback not to rerun on a later drain, calls=%d", calls)
	}
}

func TestWithFrameNanosCancelSkipsTheCallback(t *testing.T) {
	sched := scheduler.New()
	handle := fakeHandle{sched: sched}
	calls := 0
	cancel := WithFrameNanos(handle, func(int64) { calls++ })
	cancel()
	sched.DrainFrameCallbacks(1)
	if calls != 0 {
		t.Fatalf("expected cancelled callback not to run, calls=%d", calls)
	}
}

func TestBackgroundPoolBoundsConcurrency(t *testing.T) {
	pool := NewBackgroundPool(2)
	var mu sync.Mutex
	running := 0
	maxSeen := 0
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		pool.Go(ctx, func() {
			mu.Lock()
			running++
			if running > maxSeen {
				maxSeen = running
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
		})
	}
	pool.Wait()
	if maxSeen > 2 {
		t.Fatalf("expected at most 2 concurrent workers, saw %d", maxSeen)
	}
}

func TestBackgroundPoolCancelledContextDropsQueuedWork(t *testing.T) {
	pool := NewBackgroundPool(1)
	ctx, cancel := context.WithCancel(context.Background())

	block := make(chan struct{})
	pool.Go(context.Background(), func() { <-block })

	ran := false
	pool.Go(ctx, func() { ran = true })
	cancel()
	close(block)
	pool.Wait()

	if ran {
		t.Fatalf("expected work submitted with a cancelled context to be dropped")
	}
}
