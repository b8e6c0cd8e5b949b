// Package effect implements the effects runtime: launched effects (tasks
// tied to keys), disposable effects (setup/teardown), and frame
// callbacks.
//
// A launched effect remembers a small state struct keyed by an input
// hash, relaunches its task when the hash changes (cancelling the
// previous run first), and tears down on disposal. There are no
// destructors to rely on for that teardown, so it registers with
// Composer.RegisterDisposer instead, which the composer invokes the
// moment the call site's scope is cancelled.
package effect

import (
	"context"
	"sync"

	"github.com/loomkit/compose/compose"
	"github.com/loomkit/compose/internal/keyhash"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// LaunchFunc is the body of a launched effect.
type LaunchFunc func(Scope)

// Scope is handed to a running LaunchFunc. It exposes cooperative
// cancellation (mirroring launched_effect.rs's is_active/CancelToken)
// through a context.Context instead of a bare atomic flag, and lets the
// body launch further UI or background work without outliving its call
// site.
type Scope struct {
	ctx    context.Context
	handle compose.RuntimeHandle
	bg     *BackgroundPool
}

// Context is cancelled the moment this effect is superseded by a rekey
// or its call site is disposed.
func (s Scope) Context() context.Context { return s.ctx }

// IsActive reports whether Context has not yet been cancelled.
func (s Scope) IsActive() bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
		return true
	}
}

// Launch runs a follow-up task on the same dispatcher this scope's
// effect is running on, skipped outright if the scope is already
// cancelled by the time it's picked up.
func (s Scope) Launch(task func(Scope)) {
	if !s.IsActive() {
		return
	}
	s.handle.Tasks().Go(func() {
		if s.IsActive() {
			task(s)
		}
	})
}

// LaunchBackground runs work on the scope's background pool and, unless
// the scope is cancelled in the meantime, marshals its result back to
// onUI through the task dispatcher. A scope created without a pool (via
// Launched rather than LaunchedWithPool) cannot launch background work.
func (s Scope) LaunchBackground(work func(context.Context) interface{}, onUI func(interface{})) {
	if !s.IsActive() || s.bg == nil {
		return
	}
	s.bg.Go(s.ctx, func() {
		if s.ctx.Err() != nil {
			return
		}
		result := work(s.ctx)
		if s.ctx.Err() != nil {
			return
		}
		s.handle.Tasks().Go(func() {
			if s.IsActive() {
				onUI(result)
			}
		})
	})
}

// BackgroundPool bounds how many LaunchedEffect background workers may
// run concurrently: a weighted semaphore caps fan-out since Go programs
// share an OS thread pool with everything else in the process.
type BackgroundPool struct {
	sem *semaphore.Weighted
	grp errgroup.Group
}

// NewBackgroundPool returns a pool that runs at most maxConcurrent
// submitted functions at once.
func NewBackgroundPool(maxConcurrent int64) *BackgroundPool {
	return &BackgroundPool{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Go submits fn to run once a slot is free, or drops it if ctx is
// cancelled first while waiting for one.
func (p *BackgroundPool) Go(ctx context.Context, fn func()) {
	p.grp.Go(func() error {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		defer p.sem.Release(1)
		fn()
		return nil
	})
}

// Wait blocks until every function submitted so far has returned.
func (p *BackgroundPool) Wait() { p.grp.Wait() }

type launchedState struct {
	mu          sync.Mutex
	hasKey      bool
	key         uint64
	cancel      context.CancelFunc
	disposerSet bool
}

func (s *launchedState) shouldRun(key uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.hasKey || s.key != key
}

func (s *launchedState) markDisposerRegistered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposerSet {
		return false
	}
	s.disposerSet = true
	return true
}

func (s *launchedState) launch(handle compose.RuntimeHandle, bg *BackgroundPool, key uint64, fn LaunchFunc) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.hasKey = true
	s.key = key
	s.cancel = cancel
	s.mu.Unlock()

	scope := Scope{ctx: ctx, handle: handle, bg: bg}
	handle.Tasks().Go(func() { fn(scope) })
}

func (s *launchedState) dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func inputHash(key interface{}) uint64 {
	return keyhash.Of(keyhash.Location{}, key)
}

// Launched runs fn on the runtime's task dispatcher the first time its
// call site is composed, and again whenever keys hashes to something
// different than the last run (the previous run's Scope is cancelled
// first). The final run is cancelled automatically once the call site
// stops being visited.
func Launched(c *compose.Composer, loc compose.Location, keys interface{}, fn LaunchFunc) {
	LaunchedWithPool(c, loc, keys, nil, fn)
}

// LaunchedWithPool is Launched, but routes any Scope.LaunchBackground
// calls fn makes through bg instead of failing silently.
func LaunchedWithPool(c *compose.Composer, loc compose.Location, keys interface{}, bg *BackgroundPool, fn LaunchFunc) {
	c.WithKey(loc, "effect.launched", func() {
		key := inputHash(keys)
		rem := c.Remember(loc, func() interface{} { return &launchedState{} })
		v, _ := rem.Value()
		state := v.(*launchedState)

		if state.markDisposerRegistered() {
			c.RegisterDisposer(rem.Scope(), state.dispose)
		}
		if state.shouldRun(key) {
			handle := c.RuntimeHandleOf()
			c.RegisterSideEffect(loc, "effect.launched", func() {
				state.launch(handle, bg, key, fn)
			})
		}
	})
}
