// Package readtrack implements the state-read observer: per-scope
// tracking of which state objects a composable body read, so a snapshot
// apply can invalidate exactly the scopes whose inputs actually changed
// instead of recomposing everything.
//
// The observer keeps a scope-keyed table of observed-id sets plus a
// frame-version counter that coalesces repeated ObserveReads calls for
// the same scope within one frame. Scope identity is always a dense
// scheduler.ScopeId, so there is no generic-handle fallback path to
// maintain.
package readtrack

import (
	"sync"

	"github.com/loomkit/compose/internal/idset"
	"github.com/loomkit/compose/scheduler"
	"github.com/loomkit/compose/snapshot"
)

// Executor runs an invalidation callback on behalf of a changed scope.
// The caller decides whether that happens inline or is queued; the
// scheduler's own ScheduleInvalidation is the usual choice.
type Executor func(scope scheduler.ScopeId)

type scopeEntry struct {
	observed        idset.Set
	bloom           *scopeBloom
	lastSeenVersion uint64
	stateless       bool
}

func (e *scopeEntry) mayIntersect(modified []snapshot.ObjectID) bool {
	if e.bloom == nil {
		return true
	}
	for _, id := range modified {
		if e.bloom.mayContain(uint64(id)) {
			return true
		}
	}
	return false
}

// Observer records, per scope, the state object ids read during
// ObserveReads, then notifies the executor for every scope whose
// recorded reads intersect a snapshot apply's modified-object set.
type Observer struct {
	mu sync.Mutex

	entries      map[scheduler.ScopeId]*scopeEntry
	stack        []scheduler.ScopeId
	frameVersion uint64
	pauseDepth   int

	executor Executor
}

// New returns an observer that calls executor for every scope whose read
// set overlaps a snapshot apply's modified set.
func New(executor Executor) *Observer {
	return &Observer{
		entries:  make(map[scheduler.ScopeId]*scopeEntry),
		executor: executor,
	}
}

// BeginFrame bumps the frame version. ObserveReads calls made before the
// next BeginFrame are considered part of the same frame; a scope visited
// more than once in a frame only retraces its reads on the first visit.
func (o *Observer) BeginFrame() {
	o.mu.Lock()
	o.frameVersion++
	o.mu.Unlock()
}

func (o *Observer) entryFor(scope scheduler.ScopeId) *scopeEntry {
	entry, ok := o.entries[scope]
	if !ok {
		entry = &scopeEntry{lastSeenVersion: ^uint64(0), stateless: true}
		o.entries[scope] = entry
	}
	return entry
}

// ObserveReads runs body with a read observer installed that records
// every state object it reads as a member of scope's read set, then
// notifies the scope's entry of the reads once body returns. If scope
// was already observed this frame, the reads recorded by its first visit
// this frame are trusted and body's reads are not retraced (matching the observer
// being dropped entirely for the skip case upstream).
func (o *Observer) ObserveReads(scope scheduler.ScopeId, body func()) {
	o.mu.Lock()
	entry := o.entryFor(scope)
	hasFrame := o.frameVersion != 0
	alreadyObserved := hasFrame && entry.lastSeenVersion == o.frameVersion
	if alreadyObserved {
		o.mu.Unlock()
		body()
		return
	}

	entry.observed = idset.Set{}
	entry.lastSeenVersion = o.frameVersion
	o.stack = append(o.stack, scope)
	o.mu.Unlock()

	body()

	o.mu.Lock()
	o.stack = o.stack[:len(o.stack)-1]
	entry.stateless = entry.observed.Len() == 0
	if entry.stateless {
		entry.bloom = nil
	} else {
		entry.bloom = newScopeBloom()
		entry.observed.Each(func(id uint64) { entry.bloom.add(id) })
	}
	o.mu.Unlock()
}

// WithNoObservations suppresses read recording for the duration of fn,
// even inside a nested ObserveReads call. Used when a composable needs
// to read state incidentally (e.g. for a debug dump) without becoming
// dependent on it.
func (o *Observer) WithNoObservations(fn func()) {
	o.mu.Lock()
	o.pauseDepth++
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.pauseDepth--
		o.mu.Unlock()
	}()
	fn()
}

// ReadObserver returns the snapshot.ObserverFunc to install on whichever
// snapshot composition reads through. It attributes every read to the
// innermost scope currently inside ObserveReads, or drops it if no scope
// is active or observation is paused.
func (o *Observer) ReadObserver() snapshot.ObserverFunc {
	return o.recordRead
}

func (o *Observer) recordRead(obj snapshot.ObjectID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pauseDepth > 0 || len(o.stack) == 0 {
		return
	}
	scope := o.stack[len(o.stack)-1]
	entry, ok := o.entries[scope]
	if !ok {
		return
	}
	entry.observed.Add(uint64(obj))
}

// HandleApply matches snapshot.ApplyObserver's signature; attach it with
// store.OnApply so every successful apply dispatches invalidations for
// the scopes it touched.
func (o *Observer) HandleApply(modified []snapshot.ObjectID, _ snapshot.SnapshotID) {
	if len(modified) == 0 {
		return
	}
	var modSet idset.Set
	for _, id := range modified {
		modSet.Add(uint64(id))
	}

	o.mu.Lock()
	var hit []scheduler.ScopeId
	for scope, entry := range o.entries {
		if entry.stateless {
			continue
		}
		if !entry.mayIntersect(modified) {
			continue
		}
		if entry.observed.Intersects(&modSet) {
			hit = append(hit, scope)
		}
	}
	o.mu.Unlock()

	for _, scope := range hit {
		o.executor(scope)
	}
}

// Clear drops scope's read-tracking entry entirely. Wired to
// scheduler.Scheduler.OnScopeRemoved by runtime.Handle so a cancelled
// scope stops costing anything on future applies.
func (o *Observer) Clear(scope scheduler.ScopeId) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.entries, scope)
}

// ClearIf drops every scope entry for which keep returns false.
func (o *Observer) ClearIf(keep func(scheduler.ScopeId) bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for scope := range o.entries {
		if !keep(scope) {
			delete(o.entries, scope)
		}
	}
}

// ClearAll drops every tracked scope.
func (o *Observer) ClearAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = make(map[scheduler.ScopeId]*scopeEntry)
}
