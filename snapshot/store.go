// Package snapshot implements multi-version concurrency control over user
// state: versioned per-object record
// chains, conflict detection at apply time with optional three-way merge,
// apply-observer dispatch, and pinning via an indexed min-heap so records
// older than the oldest observable snapshot can be reclaimed.
//
// The store is a sync.Mutex-guarded layer store keyed by a monotonic
// snapshot id, holding one version chain per object rather than a single
// flat map, since conflict and merge semantics here need more than an
// unconditional overwrite of the newest layer.
package snapshot

import (
	"sync"
	"sync/atomic"

	"github.com/loomkit/compose/internal/cmetrics"
	"github.com/loomkit/compose/internal/idset"
)

// ObjectID identifies a piece of user state tracked by the store. Owned by
// package readtrack/compose; stored here opaquely.
type ObjectID uint64

// SnapshotID identifies a snapshot. Zero is never issued.
type SnapshotID uint64

// ObserverFunc is notified each time a snapshot reads or writes an object.
type ObserverFunc func(obj ObjectID)

// ApplyObserver is notified after a snapshot's writes have been
// committed, with the set of objects that changed.
type ApplyObserver func(modified []ObjectID, id SnapshotID)

var (
	applyMeter    = cmetrics.NewMeter("snapshot/apply/success")
	conflictMeter = cmetrics.NewMeter("snapshot/apply/conflict")
	mergeMeter    = cmetrics.NewMeter("snapshot/apply/merge")
)

// Store owns every object's version chain plus the set of open snapshots.
type Store struct {
	mu sync.Mutex

	nextID   uint64 // atomic; next id to dispense
	globalID SnapshotID

	open    map[SnapshotID]*Snapshot
	objects map[ObjectID]*record

	pins       *pinHeap
	pinHandles map[SnapshotID][]int

	observers []ApplyObserver
}

// NewStore returns an empty snapshot store.
func NewStore() *Store {
	return &Store{
		open:       make(map[SnapshotID]*Snapshot),
		objects:    make(map[ObjectID]*record),
		pins:       newPinHeap(),
		pinHandles: make(map[SnapshotID][]int),
	}
}

// OnApply registers fn to be called after every successful Apply.
func (s *Store) OnApply(fn ApplyObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Store) allocID() SnapshotID {
	return SnapshotID(atomic.AddUint64(&s.nextID, 1))
}

// TakeMutableSnapshot allocates a fresh snapshot whose writes may later be
// applied. It captures the current global id as parent and inherits the
// ids of every snapshot presently open as its invalid set, so concurrent
// in-flight work never leaks into it before being committed.
func (s *Store) TakeMutableSnapshot(readObs, writeObs ObserverFunc) *Snapshot {
	return s.take(false, readObs, writeObs)
}

// TakeReadonlySnapshot allocates a snapshot on which Write is fatal.
func (s *Store) TakeReadonlySnapshot(readObs ObserverFunc) *Snapshot {
	return s.take(true, readObs, nil)
}

func (s *Store) take(readonly bool, readObs, writeObs ObserverFunc) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.allocID()
	invalid := idset.Set{}
	for openID := range s.open {
		invalid.Add(uint64(openID))
	}
	snap := &Snapshot{
		id:       id,
		parent:   s.globalID,
		readonly: readonly,
		store:    s,
		invalid:  &invalid,
		writes:   make(map[ObjectID]interface{}),
		readObs:  readObs,
		writeObs: writeObs,
	}
	s.open[id] = snap
	return snap
}

// Pin keeps every record with snapshotID >= id from being reclaimed by
// Compact. Returns a handle to pass to Unpin.
func (s *Store) Pin(id SnapshotID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.pins.Pin(id)
	s.pinHandles[id] = append(s.pinHandles[id], h)
	return h
}

// Unpin releases a handle returned by Pin.
func (s *Store) Unpin(id SnapshotID, handle int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pins.Unpin(handle)
	handles := s.pinHandles[id]
	for i, h := range handles {
		if h == handle {
			s.pinHandles[id] = append(handles[:i], handles[i+1:]...)
			break
		}
	}
	if len(s.pinHandles[id]) == 0 {
		delete(s.pinHandles, id)
	}
}

// OldestPinned reports the oldest still-observable snapshot id, or false
// if nothing is pinned.
func (s *Store) OldestPinned() (SnapshotID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pins.Min()
}

// Compact drops records that can no longer be observed by any pinned
// snapshot, keeping for each object the newest record at or below the
// oldest pinned id (or just the newest record of all, if nothing is
// pinned) plus everything newer.
func (s *Store) Compact() {
	s.mu.Lock()
	defer s.mu.Unlock()

	boundary, pinned := s.pins.Min()
	for obj, head := range s.objects {
		s.objects[obj] = compactChain(head, boundary, pinned)
	}
}

func compactChain(head *record, boundary SnapshotID, pinned bool) *record {
	if head == nil {
		return nil
	}
	if !pinned {
		return &record{snapshotID: head.snapshotID, value: head.value}
	}
	var keep []*record
	for r := head; r != nil; r = r.older {
		keep = append(keep, r)
		if r.snapshotID <= boundary {
			break
		}
	}
	for i := len(keep) - 2; i >= 0; i-- {
		keep[i].older = keep[i+1]
	}
	keep[len(keep)-1].older = nil
	return keep[0]
}

func (s *Store) dispose(id SnapshotID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, id)
}
