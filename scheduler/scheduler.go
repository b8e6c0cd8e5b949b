// Package scheduler implements the recompose scheduler: it turns "state
// object S changed" into "this set of
// scopes must re-execute next frame", and separately queues one-shot
// frame callbacks.
//
// The invalidation set is a mutex-guarded store that tracks "what's
// left to process" and drains it in batches, sized dynamically rather
// than held in a fixed-size sliding window.
package scheduler

import (
	"errors"
	"sync"

	"github.com/loomkit/compose/internal/idset"
	"github.com/loomkit/compose/slot"
)

// ScopeId is the scheduler's scope identity. It is the same type slot.Group
// attaches via SetGroupScope, since a scope and the group it recomposes
// from share one identity.
type ScopeId = slot.ScopeId

// ErrFuelExhausted is returned by ProcessInvalidScopes when a single
// frame's worth of recompose passes has looped without settling,
// indicating scopes are invalidating each other forever.
var ErrFuelExhausted = errors.New("scheduler: fuel exhausted before invalidations settled")

// FrameCallback runs at the next drained frame, receiving its timestamp.
type FrameCallback func(timeNanos int64)

// CancelFunc cancels a registered frame callback. Safe to call more than
// once, and safe to call after the callback already ran.
type CancelFunc func()

type scopeEntry struct {
	anchor slot.AnchorId
}

type frameCallbackEntry struct {
	fn        FrameCallback
	cancelled bool
}

const defaultFuelLimit = 1000

// Scheduler owns the invalidation set, the live-scope table, and the
// frame-callback queue for one composition.
type Scheduler struct {
	mu sync.Mutex

	scopes    map[ScopeId]scopeEntry
	nextScope uint64

	invalid        idset.Set
	frameRequested bool
	stateMutated   bool

	callbacks []*frameCallbackEntry

	fuelUsed  int
	fuelLimit int

	removeObservers []func(ScopeId)
}

// New returns an empty scheduler with the default fuel budget.
func New() *Scheduler {
	return &Scheduler{
		scopes:    make(map[ScopeId]scopeEntry),
		fuelLimit: defaultFuelLimit,
	}
}

// NewScope allocates a fresh scope id rooted at anchor and registers it as
// live. Composers call this once per with_group call site that wants to
// be independently recomposable.
func (s *Scheduler) NewScope(anchor slot.AnchorId) ScopeId {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextScope++
	id := ScopeId(s.nextScope)
	s.scopes[id] = scopeEntry{anchor: anchor}
	return id
}

// RemoveScope drops scope from the live table and clears any pending
// invalidation for it. Called when the
// scope's parent group is demoted to a gap.
func (s *Scheduler) RemoveScope(scope ScopeId) {
	s.mu.Lock()
	delete(s.scopes, scope)
	s.invalid.Remove(uint64(scope))
	observers := s.removeObservers
	s.mu.Unlock()

	for _, fn := range observers {
		fn(scope)
	}
}

// OnScopeRemoved registers fn to run, outside the scheduler's lock, every
// time a scope is removed. Used by package readtrack to drop a scope's
// read-tracking entry the moment the scope it belongs to goes away,
// without readtrack having to duplicate disposal bookkeeping the
// scheduler already does.
func (s *Scheduler) OnScopeRemoved(fn func(ScopeId)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeObservers = append(s.removeObservers, fn)
}

// IsLive reports whether scope is still registered.
func (s *Scheduler) IsLive(scope ScopeId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.scopes[scope]
	return ok
}

// ScheduleInvalidation marks scope for recomposition and requests a
// frame. Idempotent: scheduling an already-pending or dead scope is a
// no-op beyond the idempotent set insertion.
func (s *Scheduler) ScheduleInvalidation(scope ScopeId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, live := s.scopes[scope]; !live {
		return
	}
	s.invalid.Add(uint64(scope))
	s.frameRequested = true
}

// MarkStateMutated records that a state write happened since the last
// render, independent of whether it resolved to a known scope yet.
func (s *Scheduler) MarkStateMutated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateMutated = true
}

// ProcessInvalidScopes drains at most one level of invalid scopes: it
// snapshots the current invalidation set, clears it, then calls recompose
// for each scope still live, in insertion order. recompose is expected to
// call back into the composer (begin_recompose_at_scope, run the scope's
// body, end_recompose); any invalidations recompose schedules land in the
// set for the next call, never this one. Returns whether the pass left
// further invalidations pending.
//
// Each call consumes one unit of fuel; fuel is not replenished until
// RenderStarted is called, so a scope ping-pong that never settles within
// one frame's drain loop is reported rather than spun on forever.
func (s *Scheduler) ProcessInvalidScopes(recompose func(ScopeId)) (changed bool, err error) {
	s.mu.Lock()
	if s.fuelUsed >= s.fuelLimit {
		s.mu.Unlock()
		return false, ErrFuelExhausted
	}
	s.fuelUsed++

	if s.invalid.Len() == 0 {
		s.mu.Unlock()
		return false, nil
	}
	var batch []ScopeId
	s.invalid.Each(func(id uint64) { batch = append(batch, ScopeId(id)) })
	s.invalid = idset.Set{}
	s.mu.Unlock()

	for _, scope := range batch {
		s.mu.Lock()
		_, live := s.scopes[scope]
		s.mu.Unlock()
		if !live {
			continue
		}
		recompose(scope)
	}

	s.mu.Lock()
	changed = s.invalid.Len() > 0
	s.mu.Unlock()
	return changed, nil
}

// RegisterFrameCallback queues fn to run with the timestamp passed to the
// next DrainFrameCallbacks call.
func (s *Scheduler) RegisterFrameCallback(fn FrameCallback) CancelFunc {
	s.mu.Lock()
	entry := &frameCallbackEntry{fn: fn}
	s.callbacks = append(s.callbacks, entry)
	s.frameRequested = true
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		entry.cancelled = true
		s.mu.Unlock()
	}
}

// DrainFrameCallbacks runs every callback queued before this call with
// timeNanos, in registration order, then clears them. A callback that
// registers another callback while running defers it to the next drain.
func (s *Scheduler) DrainFrameCallbacks(timeNanos int64) {
	s.mu.Lock()
	batch := s.callbacks
	s.callbacks = nil
	s.mu.Unlock()

	for _, entry := range batch {
		s.mu.Lock()
		cancelled := entry.cancelled
		s.mu.Unlock()
		if cancelled {
			continue
		}
		entry.fn(timeNanos)
	}
}

// ShouldRender reports whether a scope is invalid, a frame callback is
// queued, or a state mutation has been observed since the last render.
func (s *Scheduler) ShouldRender() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalid.Len() > 0 || len(s.callbacks) > 0 || s.stateMutated
}

// RenderStarted clears the per-frame state-mutation flag and replenishes
// the fuel budget; callers invoke it once, right before composing a frame.
func (s *Scheduler) RenderStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateMutated = false
	s.frameRequested = false
	s.fuelUsed = 0
}

// FrameRequested reports whether a frame has been requested since the
// last RenderStarted.
func (s *Scheduler) FrameRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameRequested
}

// PendingCount returns the number of currently invalid scopes, for
// diagnostics and tests.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalid.Len()
}

// SetFuelLimit overrides the per-frame fuel budget (default 1000).
func (s *Scheduler) SetFuelLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fuelLimit = n
}

// FuelUsed returns how much of the current frame's fuel budget
// ProcessInvalidScopes has spent since the last RenderStarted, for a bench
// tool to report alongside recompose counts.
func (s *Scheduler) FuelUsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fuelUsed
}
