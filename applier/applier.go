// Package applier implements the node applier: it takes the tree-edit
// events a composition pass produces (insert, remove, move) and applies
// them to an external node tree, the one place in this module that
// actually owns mutable, host-visible state.
//
// ApplyBatch resolves each Event's Kind through a fixed,
// array-indexed-by-kind dispatch table rather than a type switch, and
// Node carries a capability bitmask rather than being distinguished by
// Go type.
package applier

import (
	"errors"

	"github.com/loomkit/compose/compose"
	"github.com/loomkit/compose/slot"
)

// NodeId identifies a node in the external tree. It is the same type
// slot.NodeId uses for Node slots recorded during composition, so a
// composer's RecordNode/PeekNode bookkeeping and an applier's tree agree
// on identity without translation.
type NodeId = slot.NodeId

// ErrNodeMissing reports that an applier operation targeted a node or
// parent that is not present in the tree. Expected during tab switches
// and conditional unmounts, where a recompose can race a node's removal;
// callers recover by invalidating the parent's render.
var ErrNodeMissing = errors.New("applier: node missing")

// Capability is a bitmask of what a node participates in. The runtime
// iterates nodes by capability rather than by dynamic type, so adding a
// new capability never requires touching every existing node
// implementation.
type Capability uint32

const (
	CapLayout Capability = 1 << iota
	CapDraw
	CapPointerInput
	CapFocus
	CapSemantics
	CapModifierLocals
)

// Has reports whether c includes cap.
func (c Capability) Has(cap Capability) bool { return c&cap != 0 }

// Node is what an applier hands back through Access/WithNode: the host's
// own representation of one tree node, addressable by NodeId, along with
// the capability bitmask the runtime uses to decide whether this node
// participates in layout, draw, pointer input, focus, semantics, or
// modifier-local storage.
type Node struct {
	ID           NodeId
	ParentID     NodeId
	HasParent    bool
	Capabilities Capability
	Payload      interface{}
}

// EventKind identifies which tree edit an Event describes.
type EventKind int

const (
	EventInsert EventKind = iota
	EventRemove
	EventMove
)

// Event is one tree edit, as recorded during a composition pass. A
// composer accumulates a slice of these and applies them as one batch
// once its pass commits, so the host never observes a tree mid-pass.
type Event struct {
	Kind     EventKind
	ParentID NodeId
	Index    int
	NodeID   NodeId
	ToIndex  int // only meaningful for EventMove
}

// Applier is the contract a node-tree backend implements: insert, remove
// and move children under a parent, read or mutate a node in place, and
// expose/withdraw the runtime handle nodes use during layout and draw.
//
// Invariant: an Applier is only ever called by a composer's own apply
// step; it is never reached from two compositions concurrently, and
// never observes a partially-applied pass.
type Applier interface {
	Insert(parentID NodeId, index int, nodeID NodeId) error
	Remove(parentID NodeId, index int) error
	Move(parentID NodeId, from, to int) error

	// Access runs fn with exclusive access to the node identified by id,
	// returning ErrNodeMissing if no such node exists.
	Access(id NodeId, fn func(*Node)) error

	SetRuntimeHandle(h compose.RuntimeHandle)
	ClearRuntimeHandle()

	// DumpTree renders the subtree rooted at root (the whole tree if nil)
	// as an indented, human-readable string. Debug helper; tests rely on
	// this to assert on tree shape without reaching into applier
	// internals.
	DumpTree(root *NodeId) string
}

var eventTable = [...]func(Applier, Event) error{
	EventInsert: func(a Applier, ev Event) error { return a.Insert(ev.ParentID, ev.Index, ev.NodeID) },
	EventRemove: func(a Applier, ev Event) error { return a.Remove(ev.ParentID, ev.Index) },
	EventMove:   func(a Applier, ev Event) error { return a.Move(ev.ParentID, ev.Index, ev.ToIndex) },
}

// ApplyBatch applies events in order against a, stopping at the first
// error. It is the only path through which a composer's recorded edits
// reach the tree, keeping the invariant that the host only ever sees a
// tree that reflects a complete composition pass.
func ApplyBatch(a Applier, events []Event) error {
	for _, ev := range events {
		if err := eventTable[ev.Kind](a, ev); err != nil {
			return err
		}
	}
	return nil
}

// WithNode runs fn against the node identified by id and returns its
// result alongside whatever error Access reported. Package-level rather
// than a method on Applier since Go methods cannot carry their own type
// parameter.
func WithNode[R any](a Applier, id NodeId, fn func(*Node) R) (R, error) {
	var result R
	err := a.Access(id, func(n *Node) { result = fn(n) })
	return result, err
}
