package readtrack

import (
	"testing"

	"github.com/loomkit/compose/scheduler"
	"github.com/loomkit/compose/snapshot"
)

func newTestObserver() (*Observer, *[]scheduler.ScopeId) {
	var hits []scheduler.ScopeId
	obs := New(func(scope scheduler.ScopeId) { hits = append(hits, scope) })
	return obs, &hits
}

func TestObserveReadsRecordsReadsAgainstTheActiveScope(t *testing.T) {
	obs, hits := newTestObserver()
	scope := scheduler.ScopeId(1)
	read := obs.ReadObserver()

	obs.ObserveReads(scope, func() {
		read(snapshot.ObjectID(42))
	})

	obs.HandleApply([]snapshot.ObjectID{42}, 1)
	if len(*hits) != 1 || (*hits)[0] != scope {
		t.Fatalf("expected scope %v to be hit, got %v", scope, *hits)
	}
}

func TestStatelessScopeNeverHits(t *testing.T) {
	obs, hits := newTestObserver()
	scope := scheduler.ScopeId(1)

	obs.ObserveReads(scope, func() {})

	obs.HandleApply([]snapshot.ObjectID{1, 2, 3}, 1)
	if len(*hits) != 0 {
		t.Fatalf("expected no hits for a scope that read nothing, got %v", *hits)
	}
}

func TestObserveReadsSkipsRetraceWithinSameFrame(t *testing.T) {
	obs, hits := newTestObserver()
	scope := scheduler.ScopeId(1)
	read := obs.ReadObserver()

	obs.BeginFrame()
	obs.ObserveReads(scope, func() { read(snapshot.ObjectID(1)) })
	// Same frame: a second visit's reads should not retrace.
	obs.ObserveReads(scope, func() { read(snapshot.ObjectID(2)) })

	obs.HandleApply([]snapshot.ObjectID{1}, 1)
	if len(*hits) != 1 {
		t.Fatalf("expected the first frame's read of object 1 to still be tracked, got %v", *hits)
	}
	*hits = nil
	obs.HandleApply([]snapshot.ObjectID{2}, 2)
	if len(*hits) != 0 {
		t.Fatalf("expected object 2 not to have been recorded this frame, got %v", *hits)
	}
}

func TestObserveReadsRetracesAfterBeginFrame(t *testing.T) {
	obs, hits := newTestObserver()
	scope := scheduler.ScopeId(1)
	read := obs.ReadObserver()

	obs.BeginFrame()
	obs.ObserveReads(scope, func() { read(snapshot.ObjectID(1)) })

	obs.BeginFrame()
	obs.ObserveReads(scope, func() { read(snapshot.ObjectID(2)) })

	obs.HandleApply([]snapshot.ObjectID{1}, 1)
	if len(*hits) != 0 {
		t.Fatalf("expected object 1 to have been dropped from the read set after a new frame, got %v", *hits)
	}
	obs.HandleApply([]snapshot.ObjectID{2}, 2)
	if len(*hits) != 1 {
		t.Fatalf("expected object 2 to be tracked after the retrace, got %v", *hits)
	}
}

func TestWithNoObservationsSuppressesReads(t *testing.T) {
	obs, hits := newTestObserver()
	scope := scheduler.ScopeId(1)
	read := obs.ReadObserver()

	obs.ObserveReads(scope, func() {
		obs.WithNoObservations(func() {
			read(snapshot.ObjectID(9))
		})
	})

	obs.HandleApply([]snapshot.ObjectID{9}, 1)
	if len(*hits) != 0 {
		t.Fatalf("expected a read inside WithNoObservations not to be tracked, got %v", *hits)
	}
}

func TestNestedObserveReadsAttributesToInnermostScope(t *testing.T) {
	obs, hits := newTestObserver()
	outer := scheduler.ScopeId(1)
	inner := scheduler.ScopeId(2)
	read := obs.ReadObserver()

	obs.ObserveReads(outer, func() {
		read(snapshot.ObjectID(10))
		obs.ObserveReads(inner, func() {
			read(snapshot.ObjectID(20))
		})
		read(snapshot.ObjectID(30))
	})

	obs.HandleApply([]snapshot.ObjectID{10}, 1)
	if len(*hits) != 1 || (*hits)[0] != outer {
		t.Fatalf("expected only the outer scope hit for object 10, got %v", *hits)
	}

	*hits = nil
	obs.HandleApply([]snapshot.ObjectID{20}, 2)
	if len(*hits) != 1 || (*hits)[0] != inner {
		t.Fatalf("expected only the inner scope hit for object 20, got %v", *hits)
	}

	*hits = nil
	obs.HandleApply([]snapshot.ObjectID{30}, 3)
	if len(*hits) != 1 || (*hits)[0] != outer {
		t.Fatalf("expected only the outer scope hit for object 30 read after the nested call, got %v", *hits)
	}
}

func TestClearRemovesScopeEntry(t *testing.T) {
	obs, hits := newTestObserver()
	scope := scheduler.ScopeId(1)
	read := obs.ReadObserver()

	obs.ObserveReads(scope, func() { read(snapshot.ObjectID(5)) })
	obs.Clear(scope)

	obs.HandleApply([]snapshot.ObjectID{5}, 1)
	if len(*hits) != 0 {
		t.Fatalf("expected a cleared scope not to be hit, got %v", *hits)
	}
}

func TestClearAllRemovesEveryEntry(t *testing.T) {
	obs, hits := newTestObserver()
	read := obs.ReadObserver()

	obs.ObserveReads(scheduler.ScopeId(1), func() { read(snapshot.ObjectID(1)) })
	obs.ObserveReads(scheduler.ScopeId(2), func() { read(snapshot.ObjectID(2)) })
	obs.ClearAll()

	obs.HandleApply([]snapshot.ObjectID{1, 2}, 1)
	if len(*hits) != 0 {
		t.Fatalf("expected no hits after ClearAll, got %v", *hits)
	}
}

func TestHandleApplyIgnoresEmptyModifiedSet(t *testing.T) {
	obs, hits := newTestObserver()
	scope := scheduler.ScopeId(1)
	read := obs.ReadObserver()

	obs.ObserveReads(scope, func() { read(snapshot.ObjectID(1)) })
	obs.HandleApply(nil, 1)
	if len(*hits) != 0 {
		t.Fatalf("expected no hits for an empty modified set, got %v", *hits)
	}
}
