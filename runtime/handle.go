// Package runtime wires the composer, snapshot store, scheduler, effects
// runtime, state-read observer and node applier into the object a host
// actually drives: open a mutable snapshot, run a composable function
// against it, and let one frame's worth of invalidations, effects and
// tree edits settle before asking for another.
//
// One struct wires every subsystem together in its constructor and
// exposes a handful of lifecycle methods; it invents no subsystem of its
// own.
package runtime

import (
	"sync"

	"github.com/loomkit/compose/applier"
	"github.com/loomkit/compose/compose"
	"github.com/loomkit/compose/effect"
	"github.com/loomkit/compose/internal/cmetrics"
	"github.com/loomkit/compose/readtrack"
	"github.com/loomkit/compose/scheduler"
	"github.com/loomkit/compose/slot"
	"github.com/loomkit/compose/snapshot"
)

var (
	frameMeter      = cmetrics.NewMeter("runtime/frame")
	recomposeMeter  = cmetrics.NewMeter("runtime/recompose/scopes")
	applyBatchMeter = cmetrics.NewMeter("runtime/applier/events")
)

// goDispatcher runs each submitted function on its own goroutine: a
// launched effect's body, and anything it hands to Scope.Launch
// afterward, runs concurrently with whatever called Update, touching
// state only through a snapshot it opens itself.
type goDispatcher struct{}

func (goDispatcher) Go(fn func()) { go fn() }

// frameClock broadcasts each Update call's timestamp to every goroutine
// currently blocked in AwaitFrame, then resets for the next frame.
//
// AwaitFrame is only ever expected to be called from a launched effect's
// body, which runs on its own goroutine via goDispatcher; Update itself
// never calls AwaitFrame, so advance never blocks waiting for a waiter
// that is itself waiting on the same frame.
type frameClock struct {
	mu      sync.Mutex
	waiters []chan int64
}

func (f *frameClock) AwaitFrame() int64 {
	ch := make(chan int64, 1)
	f.mu.Lock()
	f.waiters = append(f.waiters, ch)
	f.mu.Unlock()
	return <-ch
}

func (f *frameClock) advance(timeNanos int64) {
	f.mu.Lock()
	waiters := f.waiters
	f.waiters = nil
	f.mu.Unlock()
	for _, ch := range waiters {
		ch <- timeNanos
	}
}

// Handle is the concrete compose.RuntimeHandle a host constructs once
// and drives through Update. It owns the slot table, the scope
// scheduler, the snapshot store, the composer built over them, the read
// observer wired to invalidate scopes on apply, the effects runtime's
// background pool, and the node applier composable bodies record tree
// edits against.
type Handle struct {
	mu sync.Mutex

	store    *snapshot.Store
	sched    *scheduler.Scheduler
	table    slot.Table
	observer *readtrack.Observer
	app      applier.Applier
	bg       *effect.BackgroundPool
	clock    *frameClock
	tasks    goDispatcher

	composer *compose.Composer

	events     []applier.Event
	frameWaker func()
}

// New returns a handle driving table and app, with backgroundConcurrency
// bounding how many LaunchedEffect background workers may run at once.
// The host builds the initial tree by passing its top-level composable
// function to Compose once, then calls Update per frame.
func New(table slot.Table, app applier.Applier, backgroundConcurrency int64) *Handle {
	h := &Handle{
		store: snapshot.NewStore(),
		sched: scheduler.New(),
		table: table,
		app:   app,
		bg:    effect.NewBackgroundPool(backgroundConcurrency),
		clock: &frameClock{},
	}
	h.observer = readtrack.New(h.sched.ScheduleInvalidation)
	h.store.OnApply(h.observer.HandleApply)
	h.sched.OnScopeRemoved(h.observer.Clear)

	// No snapshot is open yet; Compose installs the first one. Nothing
	// reads or writes through the composer before a caller runs Compose.
	h.composer = compose.New(h.table, h.sched, nil, h)
	h.composer.SetReadHook(h.observer.ObserveReads)
	app.SetRuntimeHandle(h)
	return h
}

func (h *Handle) Tasks() compose.TaskDispatcher          { return h.tasks }
func (h *Handle) Clock() compose.FrameClock              { return h.clock }
func (h *Handle) Scheduler() *scheduler.Scheduler        { return h.sched }
func (h *Handle) Applier() applier.Applier               { return h.app }
func (h *Handle) BackgroundPool() *effect.BackgroundPool { return h.bg }

// Composer returns the composer a host's top-level composable function
// should drive for its composition pass.
func (h *Handle) Composer() *compose.Composer { return h.composer }

// RecordEvent queues a tree edit to be applied to the node applier the
// next time Update runs. Composable bodies call this, indirectly,
// through whatever node-emitting helper they use, rather than reaching
// the applier directly, so the host never observes a tree mid-pass.
func (h *Handle) RecordEvent(ev applier.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

// SetFrameWaker registers fn to be invoked, outside any lock, whenever
// Update leaves a frame pending (a scope is invalid, a frame callback
// was registered, or a mutation arrived while Update was running). A
// host without its own event loop can use this to schedule its next
// Update call; one driven by a fixed tick doesn't need it.
func (h *Handle) SetFrameWaker(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frameWaker = fn
}

// ShouldRender reports whether a frame is pending.
func (h *Handle) ShouldRender() bool { return h.sched.ShouldRender() }

// Mutate opens a fresh mutable snapshot, lets fn stage writes against
// it, and applies it. A caller outside composition, such as an effect's
// background continuation marshaled back through Scope.Launch, uses
// this to commit a state change; composable bodies read and write
// through Composer().Snapshot() instead, which is whatever snapshot the
// current Compose/Update round installed.
func (h *Handle) Mutate(fn func(*snapshot.Snapshot)) snapshot.ApplyResult {
	snap := h.store.TakeMutableSnapshot(h.observer.ReadObserver(), nil)
	fn(snap)
	return snap.Apply()
}

// Compose runs body, the host's top-level composable call, under a
// fresh mutable snapshot and applies it, then drains any recomposition
// that snapshot's writes themselves triggered. Use this once to build
// (or to re-enter, e.g. after a key change) the root of the tree, before
// ever calling Update; Update only reacts to invalidations an apply
// reports, it does not know how to perform a first build.
func (h *Handle) Compose(body func()) error {
	snap := h.store.TakeMutableSnapshot(h.observer.ReadObserver(), nil)
	h.composer.SetSnapshot(snap)
	body()
	if err := snap.ApplyErr(); err != nil {
		return err
	}
	_, err := h.settle()
	return err
}

// settle recomposes every currently invalid scope, round by round: each
// round opens one fresh mutable snapshot, recomposes that round's whole
// invalid batch under it, and applies it immediately, so the next
// round's PendingCount check sees whatever that apply just invalidated.
// A round's own mutable snapshot is what lets a recompose observe a
// write made by the same frame's earlier round.
func (h *Handle) settle() (recomposed int, err error) {
	countRecompose := func(scope scheduler.ScopeId) {
		recomposed++
		h.recomposeOne(scope)
	}
	for h.sched.PendingCount() > 0 {
		snap := h.store.TakeMutableSnapshot(h.observer.ReadObserver(), nil)
		h.composer.SetSnapshot(snap)
		if _, err := h.sched.ProcessInvalidScopes(countRecompose); err != nil {
			return recomposed, err
		}
		if err := snap.ApplyErr(); err != nil {
			return recomposed, err
		}
	}
	return recomposed, nil
}

// Update advances one frame: it drains frame callbacks with timeNanos,
// recomposes every scope the last apply invalidated (and whatever those
// recompositions invalidate in turn, fuel permitting), applies any tree
// edits recorded since the last Update, and runs the effects registered
// during this frame's recompositions. It returns whether anything
// actually changed, so a host can skip a redundant layout or render
// pass, and any error the scheduler or applier reported.
func (h *Handle) Update(timeNanos int64) (bool, error) {
	frameMeter.Mark(1)

	h.sched.RenderStarted()
	h.sched.DrainFrameCallbacks(timeNanos)
	h.clock.advance(timeNanos)

	h.observer.BeginFrame()

	recomposed, err := h.settle()
	if err != nil {
		return recomposed > 0, err
	}
	changed := recomposed > 0

	h.mu.Lock()
	events := h.events
	h.events = nil
	h.mu.Unlock()

	if len(events) > 0 {
		applyBatchMeter.Mark(int64(len(events)))
		if err := applier.ApplyBatch(h.app, events); err != nil {
			return changed, err
		}
		changed = true
	}

	for _, eff := range h.composer.DrainPendingEffects() {
		eff.Run()
	}

	if h.sched.FrameRequested() {
		h.mu.Lock()
		waker := h.frameWaker
		h.mu.Unlock()
		if waker != nil {
			waker()
		}
	}

	return changed, nil
}

func (h *Handle) recomposeOne(scope scheduler.ScopeId) {
	recomposeMeter.Mark(1)
	h.composer.Recompose(scope)
}
