// Package compose implements the composer: it
// threads a slot table, a scope table, and the current mutable snapshot
// through a composition pass, giving composable functions with_group,
// with_key, remember, register_side_effect, runtime_handle and
// skip_to_end.
//
// The pass is a cursor-carrying traversal: each recursive call into
// WithGroup corresponds to entering and leaving one nested region of the
// slot table, mirroring the table's own group descent.
package compose

import (
	"github.com/loomkit/compose/scheduler"
	"github.com/loomkit/compose/slot"
	"github.com/loomkit/compose/snapshot"
)

// TaskDispatcher runs background work on behalf of launched effects.
type TaskDispatcher interface {
	Go(fn func())
}

// FrameClock lets an effect suspend until the next frame is produced.
type FrameClock interface {
	AwaitFrame() int64
}

// RuntimeHandle is what runtime_handle() exposes to composable bodies:
// the task dispatcher, the frame clock, and the scheduler that doubles as
// the scope observer.
type RuntimeHandle interface {
	Tasks() TaskDispatcher
	Clock() FrameClock
	Scheduler() *scheduler.Scheduler
}

// Effect is a closure registered via RegisterSideEffect, carrying the
// composite key of its call site.
type Effect struct {
	Key slot.Key
	Run func()
}

// Remembered is a small, copyable handle to a value living in the slot
// table, returned by Remember. It resolves to the stored value through
// the table by anchor, so it stays valid across recompositions as long as
// the remembering group itself survives.
type Remembered struct {
	anchor slot.AnchorId
	table  slot.Table
	scope  scheduler.ScopeId
}

// Value returns the remembered payload, or false if the table no longer
// holds it. The chunked backend drops a value slot's payload when the slot
// is demoted to a gap; the split backend keeps it.
func (r Remembered) Value() (interface{}, bool) {
	return r.table.ReadValue(slot.ValueSlot{Anchor: r.anchor})
}

// Set overwrites the remembered payload in place.
func (r Remembered) Set(v interface{}) {
	r.table.WriteValue(slot.ValueSlot{Anchor: r.anchor}, v)
}

// Scope returns the scope id of the wrapper group this value was
// remembered under, so a caller (package effect) can register a disposer
// that fires exactly when this call site stops being visited.
func (r Remembered) Scope() scheduler.ScopeId { return r.scope }

// Composer drives one composition pass: the tree of with_group calls a
// composable function makes to rebuild (or reuse) its slots.
//
// slot.Table's BeginGroup always mints a fresh anchor and a scope-less
// group unless it is restoring a demoted gap; a plain group can only keep
// its identity across separate top-down passes by going through
// BeginRecomposeAtScope. Composer therefore tracks, per parent scope, the
// key -> child-scope map from the parent's last body run: a nested
// with_group/remember call whose key was already a child reuses
// BeginRecomposeAtScope instead of BeginGroup, which is what actually
// keeps a nested composable's remembered state alive across an ancestor's
// recomposition. Keys that drop out of a parent's body between runs have
// their child scope cancelled.
type Composer struct {
	table  slot.Table
	sched  *scheduler.Scheduler
	snap   *snapshot.Snapshot
	handle RuntimeHandle

	keyStack   []uint64
	scopeStack []scheduler.ScopeId

	children    map[scheduler.ScopeId]map[slot.Key]scheduler.ScopeId
	currentPass map[scheduler.ScopeId]map[slot.Key]scheduler.ScopeId

	disposers map[scheduler.ScopeId][]func()

	// recomposeBody remembers each scope's body closure from its most
	// recent run, so the scheduler's invalidation drain can re-run just
	// that scope via Recompose instead of walking down from the root.
	// Reusing the stored closure is sound because a scope only becomes
	// invalid through a state read it made changing; its arguments
	// (whatever the closure captured at WithGroup/WithKey time) are
	// unchanged, since a change there would have invalidated the parent
	// scope that calls WithGroup, not this one directly.
	recomposeBody map[scheduler.ScopeId]func()

	// readHook wraps every scope body run (WithGroup, WithKey,
	// RecomposeScope) so a state-read observer can attribute the state
	// reads a body makes to that scope. Defaults to running body
	// unwrapped; a runtime.Handle installs readtrack.Observer.ObserveReads
	// here so snapshot reads during composition drive invalidation.
	readHook func(scheduler.ScopeId, func())

	pendingEffects []Effect
}

// New returns a composer driving table and sched, against snap as the
// current mutable snapshot, with handle exposed to composable bodies via
// RuntimeHandleOf.
func New(table slot.Table, sched *scheduler.Scheduler, snap *snapshot.Snapshot, handle RuntimeHandle) *Composer {
	return &Composer{
		table:         table,
		sched:         sched,
		snap:          snap,
		handle:        handle,
		children:      make(map[scheduler.ScopeId]map[slot.Key]scheduler.ScopeId),
		currentPass:   make(map[scheduler.ScopeId]map[slot.Key]scheduler.ScopeId),
		disposers:     make(map[scheduler.ScopeId][]func()),
		recomposeBody: make(map[scheduler.ScopeId]func()),
		readHook:      func(_ scheduler.ScopeId, body func()) { body() },
	}
}

// SetReadHook installs fn to wrap every scope body run from this point
// on, so a state-read observer can see which scope is executing. A
// runtime.Handle calls this once, right after constructing both the
// composer and its readtrack.Observer, passing observer.ObserveReads.
func (c *Composer) SetReadHook(fn func(scheduler.ScopeId, func())) {
	c.readHook = fn
}

// RuntimeHandleOf returns the runtime handle a composable should use for
// background work and frame-callback registration.
func (c *Composer) RuntimeHandleOf() RuntimeHandle { return c.handle }

// Snapshot returns the mutable snapshot user-state reads and writes
// during this pass should go through.
func (c *Composer) Snapshot() *snapshot.Snapshot { return c.snap }

// SetSnapshot installs snap as the mutable snapshot subsequent
// WithGroup/RecomposeScope bodies read and write through, replacing
// whichever snapshot was installed before. A runtime.Handle opens a
// fresh snapshot for every recompose round (matching one round's worth
// of invalidated scopes to one apply) and calls this right before
// driving that round, so a body re-run because of a write actually
// observes the write that invalidated it.
func (c *Composer) SetSnapshot(snap *snapshot.Snapshot) { c.snap = snap }

// CurrentScope returns the scope whose body is currently running, if any.
func (c *Composer) CurrentScope() (scheduler.ScopeId, bool) {
	return c.topScope()
}

func (c *Composer) topKey() (uint64, bool) {
	if len(c.keyStack) == 0 {
		return 0, false
	}
	return c.keyStack[len(c.keyStack)-1], true
}

func (c *Composer) topScope() (scheduler.ScopeId, bool) {
	if len(c.scopeStack) == 0 {
		return 0, false
	}
	return c.scopeStack[len(c.scopeStack)-1], true
}

func (c *Composer) markChildSeen(parent scheduler.ScopeId, key slot.Key, scope scheduler.ScopeId) {
	set := c.currentPass[parent]
	if set == nil {
		set = make(map[slot.Key]scheduler.ScopeId)
		c.currentPass[parent] = set
	}
	set[key] = scope
}

// enterGroup begins or re-enters the group at key. If the current parent
// scope already had a live child registered under key on its last body
// run, that child is re-entered via BeginRecomposeAtScope (preserving its
// anchor and everything nested under it); otherwise a fresh group and
// scope are allocated.
func (c *Composer) enterGroup(key slot.Key) (scope scheduler.ScopeId, reentrant bool) {
	parent, hasParent := c.topScope()
	if hasParent {
		if prevScope, ok := c.children[parent][key]; ok {
			if _, ok := c.table.BeginRecomposeAtScope(prevScope); ok {
				c.markChildSeen(parent, key, prevScope)
				return prevScope, true
			}
		}
	}

	group, _ := c.table.BeginGroup(key)
	scope = c.sched.NewScope(group.Anchor)
	c.table.SetGroupScope(group, scope)
	if hasParent {
		c.markChildSeen(parent, key, scope)
	}
	return scope, false
}

func (c *Composer) exitGroup(scope scheduler.ScopeId, reentrant bool) {
	c.table.FinalizeCurrentGroup()
	if reentrant {
		c.table.EndRecompose()
	} else {
		c.table.EndGroup()
	}
	c.reconcileChildren(scope)
}

// reconcileChildren compares the keys scope's body visited this run
// against the keys it visited last run. A key that is missing, or whose
// scope id changed (meaning the reentry attempt failed and a fresh one
// was minted), had its old scope cancelled and its disposers run.
func (c *Composer) reconcileChildren(scope scheduler.ScopeId) {
	seen := c.currentPass[scope]
	delete(c.currentPass, scope)
	for key, oldScope := range c.children[scope] {
		if newScope, ok := seen[key]; ok && newScope == oldScope {
			continue
		}
		c.disposeScope(oldScope)
	}
	c.children[scope] = seen
}

// disposeScope tears down scope and, recursively, every descendant it
// still has a child-scope record for. A scope's own disposers only ever
// cover what was registered directly against it (e.g. RegisterDisposer
// inside its own with_group body); without this recursion, cancelling an
// ancestor would strand disposers registered deeper in its subtree.
func (c *Composer) disposeScope(scope scheduler.ScopeId) {
	for _, child := range c.children[scope] {
		c.disposeScope(child)
	}
	delete(c.children, scope)
	delete(c.currentPass, scope)
	delete(c.recomposeBody, scope)

	c.sched.RemoveScope(scope)
	fns := c.disposers[scope]
	delete(c.disposers, scope)
	for _, fn := range fns {
		fn()
	}
}

// RegisterDisposer queues fn to run once, the moment scope is cancelled
// (its call site drops out of its parent's body, or it is recomposed away
// entirely). Used by package effect to tear down launched tasks and
// disposable-effect cleanups.
func (c *Composer) RegisterDisposer(scope scheduler.ScopeId, fn func()) {
	c.disposers[scope] = append(c.disposers[scope], fn)
}

// WithGroup begins (or re-enters) a group at key, runs body, then
// finalizes trailing gaps and ends the group. Returns the scope
// registered for this call site, stable across recompositions driven
// through the enclosing scope.
func (c *Composer) WithGroup(key slot.Key, body func()) scheduler.ScopeId {
	scope, reentrant := c.enterGroup(key)
	c.recomposeBody[scope] = body
	c.scopeStack = append(c.scopeStack, scope)
	c.readHook(scope, body)
	c.scopeStack = c.scopeStack[:len(c.scopeStack)-1]
	c.exitGroup(scope, reentrant)
	return scope
}

// WithKey hashes userKey (folded with the ambient parent key, so sibling
// loop iterations at the same source location never collide) into the
// next group's key and runs body under it.
func (c *Composer) WithKey(loc Location, userKey interface{}, body func()) scheduler.ScopeId {
	key := c.compositeKey(loc, userKey)
	c.keyStack = append(c.keyStack, uint64(key))
	scope := c.WithGroup(key, body)
	c.keyStack = c.keyStack[:len(c.keyStack)-1]
	return scope
}

// Remember allocates (or reuses) a value slot at loc, initializing it with
// init the first time it is visited.
func (c *Composer) Remember(loc Location, init func() interface{}) Remembered {
	return c.rememberAt(loc, nil, init, nil)
}

// RememberKeyed is Remember scoped under an explicit user key, for use
// inside loop bodies where loc alone would collide across iterations.
func (c *Composer) RememberKeyed(loc Location, userKey interface{}, init func() interface{}) Remembered {
	return c.rememberAt(loc, userKey, init, nil)
}

// RememberShaped is Remember, but re-initializes the stored value instead
// of reusing it when sameShape reports the existing value no longer
// matches what this call expects.
func (c *Composer) RememberShaped(loc Location, init func() interface{}, sameShape func(interface{}) bool) Remembered {
	return c.rememberAt(loc, nil, init, sameShape)
}

func (c *Composer) rememberAt(loc Location, userKey interface{}, init func() interface{}, sameShape func(interface{}) bool) Remembered {
	key := c.compositeKey(loc, userKey)
	scope, reentrant := c.enterGroup(key)
	vs := c.table.AllocValueSlot(init, sameShape)
	c.exitGroup(scope, reentrant)
	return Remembered{anchor: vs.Anchor, table: c.table, scope: scope}
}

// RegisterSideEffect queues run, keyed by loc/userKey, to be launched
// after this composition commits. Every call queues run again; nothing
// here or in the queue's drain de-duplicates by key across
// recompositions (package effect registers only when its inputs change).
func (c *Composer) RegisterSideEffect(loc Location, userKey interface{}, run func()) {
	key := c.compositeKey(loc, userKey)
	c.pendingEffects = append(c.pendingEffects, Effect{Key: key, Run: run})
}

// DrainPendingEffects returns and clears the effects registered during
// this pass, for the caller (runtime.Handle) to hand to package effect.
func (c *Composer) DrainPendingEffects() []Effect {
	out := c.pendingEffects
	c.pendingEffects = nil
	return out
}

// SkipToEnd cooperatively skips remaining sibling slots in the innermost
// open group without visiting them, for a scope that has determined its
// inputs are unchanged. It advances past nested groups and recorded
// nodes it can skip outright; any bare value slots left unvisited are
// swept into gaps by FinalizeCurrentGroup once the caller's body returns
// (the same outcome as if the caller had simply returned early, since
// a Go closure body has no further statements to suspend).
func (c *Composer) SkipToEnd() {
	for {
		if _, ok := c.table.PeekNode(); ok {
			c.table.AdvanceAfterNodeRead()
			continue
		}
		before := c.table.Cursor()
		c.table.SkipCurrentGroup()
		if c.table.Cursor() == before {
			return
		}
	}
}

// RecomposeScope re-enters scope's group directly, without any enclosing
// parent context, and reruns body. This is the entry point the scheduler
// uses to recompose a single invalidated scope without walking its
// ancestors; ordinary composable bodies never call it themselves.
func (c *Composer) RecomposeScope(scope scheduler.ScopeId, body func()) bool {
	if _, ok := c.table.BeginRecomposeAtScope(scope); !ok {
		return false
	}
	c.recomposeBody[scope] = body
	c.scopeStack = append(c.scopeStack, scope)
	c.readHook(scope, body)
	c.scopeStack = c.scopeStack[:len(c.scopeStack)-1]
	c.exitGroup(scope, true)
	return true
}

// Recompose re-runs scope using the body closure it ran last, the one
// recorded by its most recent WithGroup/WithKey/RecomposeScope call.
// Reports false if scope has no remembered body (already disposed) or
// its group could not be re-entered. This is the function a runtime
// hands to scheduler.ProcessInvalidScopes so each frame's invalidation
// drain recomposes exactly the scopes that need it.
func (c *Composer) Recompose(scope scheduler.ScopeId) bool {
	body, ok := c.recomposeBody[scope]
	if !ok {
		return false
	}
	return c.RecomposeScope(scope, body)
}
