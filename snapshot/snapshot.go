package snapshot

import (
	"errors"
	"sync"

	"github.com/loomkit/compose/internal/idset"
)

// ApplyResult is the outcome of Snapshot.Apply.
type ApplyResult int

const (
	Success ApplyResult = iota
	Failure
)

func (r ApplyResult) String() string {
	if r == Success {
		return "success"
	}
	return "failure"
}

// ErrWriteOnReadonly is the fatal error raised by Write on a readonly
// snapshot.
var ErrWriteOnReadonly = errors.New("snapshot: write on readonly snapshot")

// ErrApplyConflict reports that Apply returned Failure: a concurrent
// commit touched the same object with a value the equivalence policy
// would not accept and no merge resolved it.
var ErrApplyConflict = errors.New("snapshot: apply conflict")

// Snapshot is one MVCC view over the store, opened by TakeMutableSnapshot
// or TakeReadonlySnapshot.
type Snapshot struct {
	id       SnapshotID
	parent   SnapshotID
	readonly bool
	store    *Store
	invalid  *idset.Set

	mu     sync.Mutex
	writes map[ObjectID]interface{}

	readObs  ObserverFunc
	writeObs ObserverFunc

	disposed  bool
	onDispose []func()
}

// ID returns the snapshot's id.
func (s *Snapshot) ID() SnapshotID { return s.id }

// Readonly reports whether Write is fatal on this snapshot.
func (s *Snapshot) Readonly() bool { return s.readonly }

// OnDispose registers fn to run when the snapshot is disposed, either by
// Dispose or by a successful Apply.
func (s *Snapshot) OnDispose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDispose = append(s.onDispose, fn)
}

// Read returns the value visible to this snapshot for obj: the snapshot's
// own uncommitted write if any, else the newest committed record with
// snapshotID <= s.id that isn't in s.invalid.
func (s *Snapshot) Read(obj ObjectID) (interface{}, bool) {
	s.mu.Lock()
	if v, ok := s.writes[obj]; ok {
		s.mu.Unlock()
		if s.readObs != nil {
			s.readObs(obj)
		}
		return v, true
	}
	s.mu.Unlock()

	s.store.mu.Lock()
	head := s.store.objects[obj]
	s.store.mu.Unlock()

	r := recordVisibleTo(head, s.id, s.invalid)
	if s.readObs != nil {
		s.readObs(obj)
	}
	if r == nil {
		return nil, false
	}
	return r.value, true
}

// Write stages value for obj; it is only visible to this snapshot until
// Apply commits it.
func (s *Snapshot) Write(obj ObjectID, value interface{}) {
	if s.readonly {
		panic(ErrWriteOnReadonly)
	}
	s.mu.Lock()
	s.writes[obj] = value
	s.mu.Unlock()
	if s.writeObs != nil {
		s.writeObs(obj)
	}
}

// Enter pushes s as the current snapshot for the duration of fn. Composition
// is single-threaded by design, so this is a simple save/restore, not a
// true per-goroutine thread-local; callers must not
// run concurrent compositions against the same process without
// confining each to its own goroutine and never calling Enter from two
// goroutines at once.
func (s *Snapshot) Enter(fn func()) {
	currentMu.Lock()
	prev := current
	current = s
	currentMu.Unlock()

	defer func() {
		currentMu.Lock()
		current = prev
		currentMu.Unlock()
	}()

	fn()
}

var (
	currentMu sync.Mutex
	current   *Snapshot
)

// Current returns the innermost snapshot established by Enter, or nil.
func Current() *Snapshot {
	currentMu.Lock()
	defer currentMu.Unlock()
	return current
}

// Apply attempts to commit every staged write. On Failure the snapshot is
// left open so the caller can retry with a fresh snapshot; on Success it
// is implicitly disposed.
func (s *Snapshot) Apply() ApplyResult {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return Failure
	}
	if s.readonly {
		s.mu.Unlock()
		return Failure
	}
	writes := s.writes
	s.mu.Unlock()

	store := s.store
	store.mu.Lock()

	g := store.globalID
	p := s.parent

	resolved := make(map[ObjectID]interface{}, len(writes))
	for obj, applied := range writes {
		head := store.objects[obj]
		conflict := findConflict(head, p, g)
		if conflict == nil {
			resolved[obj] = applied
			continue
		}
		if equivalent(conflict.value, applied) {
			resolved[obj] = applied
			continue
		}
		base := recordVisibleTo(head, p, nil)
		var baseValue interface{}
		if base != nil {
			baseValue = base.value
		}
		merged, ok := resolveConflict(baseValue, conflict.value, applied)
		if !ok {
			store.mu.Unlock()
			conflictMeter.Mark(1)
			return Failure
		}
		mergeMeter.Mark(1)
		resolved[obj] = merged
	}

	modified := make([]ObjectID, 0, len(resolved))
	for obj, val := range resolved {
		store.objects[obj] = &record{snapshotID: s.id, value: val, older: store.objects[obj]}
		modified = append(modified, obj)
	}
	if s.id > store.globalID {
		store.globalID = s.id
	}
	delete(store.open, s.id)
	observers := append([]ApplyObserver(nil), store.observers...)
	store.mu.Unlock()

	applyMeter.Mark(1)

	s.mu.Lock()
	s.disposed = true
	hooks := s.onDispose
	s.mu.Unlock()

	if len(modified) > 0 {
		for _, obs := range observers {
			obs(modified, s.id)
		}
	}
	for _, h := range hooks {
		h()
	}
	return Success
}

// ApplyErr is Apply, reporting a Failure outcome as ErrApplyConflict
// instead of a bare ApplyResult, for callers that drive a retry loop
// through Go's usual error idiom rather than switching on the enum.
func (s *Snapshot) ApplyErr() error {
	if s.Apply() == Failure {
		return ErrApplyConflict
	}
	return nil
}

// Dispose releases the snapshot without applying it.
func (s *Snapshot) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	hooks := s.onDispose
	s.mu.Unlock()

	s.store.dispose(s.id)
	for _, h := range hooks {
		h()
	}
}
