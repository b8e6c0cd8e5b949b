package applier

import (
	"errors"
	"strings"
	"testing"
)

func TestInsertBuildsOrderedChildren(t *testing.T) {
	a := NewMemApplier()
	if err := a.Insert(0, 0, 1); err != nil {
		t.Fatalf("insert 1: %v", err)
	}
	if err := a.Insert(0, 1, 2); err != nil {
		t.Fatalf("insert 2: %v", err)
	}
	if err := a.Insert(0, 1, 3); err != nil {
		t.Fatalf("insert 3: %v", err)
	}
	got := a.DumpTree(nil)
	want := "  node 1\n  node 3\n  node 2\n"
	if got != want {
		t.Fatalf("dump mismatch:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestInsertUnderMissingParentFails(t *testing.T) {
	a := NewMemApplier()
	err := a.Insert(99, 0, 1)
	if !errors.Is(err, ErrNodeMissing) {
		t.Fatalf("expected ErrNodeMissing, got %v", err)
	}
}

func TestRemoveDropsSubtree(t *testing.T) {
	a := NewMemApplier()
	a.Insert(0, 0, 1)
	a.Insert(1, 0, 2)

	if err := a.Remove(0, 0); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := a.Access(1, func(n *Node) {}); !errors.Is(err, ErrNodeMissing) {
		t.Fatalf("expected node 1 to be gone, got %v", err)
	}
	if err := a.Access(2, func(n *Node) {}); !errors.Is(err, ErrNodeMissing) {
		t.Fatalf("expected node 2's subtree to be dropped along with its parent, got %v", err)
	}
}

func TestRemoveOutOfRangeFails(t *testing.T) {
	a := NewMemApplier()
	if err := a.Remove(0, 0); !errors.Is(err, ErrNodeMissing) {
		t.Fatalf("expected ErrNodeMissing for an empty parent, got %v", err)
	}
}

func TestMoveReordersWithoutLosingSiblings(t *testing.T) {
	a := NewMemApplier()
	a.Insert(0, 0, 1)
	a.Insert(0, 1, 2)
	a.Insert(0, 2, 3)

	if err := a.Move(0, 0, 2); err != nil {
		t.Fatalf("move: %v", err)
	}
	got := a.DumpTree(nil)
	want := "  node 2\n  node 3\n  node 1\n"
	if got != want {
		t.Fatalf("dump mismatch after move:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestMoveOutOfRangeFails(t *testing.T) {
	a := NewMemApplier()
	a.Insert(0, 0, 1)
	if err := a.Move(0, 0, 1); !errors.Is(err, ErrNodeMissing) {
		t.Fatalf("expected ErrNodeMissing for an out-of-range target, got %v", err)
	}
}

func TestAccessMutatesNodeInPlace(t *testing.T) {
	a := NewMemApplier()
	a.Insert(0, 0, 1)

	if err := a.Access(1, func(n *Node) { n.Capabilities = CapDraw | CapLayout }); err != nil {
		t.Fatalf("access: %v", err)
	}
	val, err := WithNode(a, 1, func(n *Node) bool { return n.Capabilities.Has(CapDraw) })
	if err != nil {
		t.Fatalf("WithNode: %v", err)
	}
	if !val {
		t.Fatalf("expected CapDraw to have been set")
	}
	if val2, _ := WithNode(a, 1, func(n *Node) bool { return n.Capabilities.Has(CapFocus) }); val2 {
		t.Fatalf("expected CapFocus to remain unset")
	}
}

func TestAccessMissingNodeFails(t *testing.T) {
	a := NewMemApplier()
	err := a.Access(1, func(n *Node) {})
	if !errors.Is(err, ErrNodeMissing) {
		t.Fatalf("expected ErrNodeMissing, got %v", err)
	}
}

func TestSetAndClearRuntimeHandle(t *testing.T) {
	a := NewMemApplier()
	if _, ok := a.RuntimeHandle(); ok {
		t.Fatalf("expected no handle set initially")
	}
	a.SetRuntimeHandle(nil)
	a.ClearRuntimeHandle()
	if _, ok := a.RuntimeHandle(); ok {
		t.Fatalf("expected no handle set after clear")
	}
}

func TestApplyBatchStopsAtFirstError(t *testing.T) {
	a := NewMemApplier()
	events := []Event{
		{Kind: EventInsert, ParentID: 0, Index: 0, NodeID: 1},
		{Kind: EventRemove, ParentID: 0, Index: 5}, // out of range
		{Kind: EventInsert, ParentID: 0, Index: 1, NodeID: 2},
	}
	err := ApplyBatch(a, events)
	if !errors.Is(err, ErrNodeMissing) {
		t.Fatalf("expected ErrNodeMissing, got %v", err)
	}
	if err := a.Access(2, func(n *Node) {}); !errors.Is(err, ErrNodeMissing) {
		t.Fatalf("expected the batch to stop before inserting node 2, got %v", err)
	}
}

func TestApplyBatchMoveEvent(t *testing.T) {
	a := NewMemApplier()
	events := []Event{
		{Kind: EventInsert, ParentID: 0, Index: 0, NodeID: 1},
		{Kind: EventInsert, ParentID: 0, Index: 1, NodeID: 2},
		{Kind: EventMove, ParentID: 0, Index: 0, ToIndex: 1},
	}
	if err := ApplyBatch(a, events); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	got := a.DumpTree(nil)
	if !strings.Contains(got, "node 2\n  node 1") {
		t.Fatalf("expected node 2 before node 1 after the move, got %q", got)
	}
}

func TestDumpTreeFromSubRoot(t *testing.T) {
	a := NewMemApplier()
	a.Insert(0, 0, 1)
	a.Insert(1, 0, 2)
	a.Insert(1, 1, 3)

	var root NodeId = 1
	got := a.DumpTree(&root)
	want := "node 1\n  node 2\n  node 3\n"
	if got != want {
		t.Fatalf("dump from sub-root mismatch:\ngot:  %q\nwant: %q", got, want)
	}
}
