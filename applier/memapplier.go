package applier

import (
	"fmt"
	"strings"
	"sync"

	"github.com/loomkit/compose/compose"
	"github.com/loomkit/compose/internal/clog"
)

// rootID is the virtual parent of every top-level node. It is never a
// real node in m.nodes; it exists only as a key into m.children so root
// insertion/removal/move need no special-casing against nil.
const rootID NodeId = 0

// MemApplier is an in-memory reference Applier: a plain map-backed tree
// with ordered child slices, guarded by one mutex. It backs tests and
// cmd/composebench; a real host would implement Applier itself against
// its native widget/view tree instead.
type MemApplier struct {
	mu       sync.Mutex
	nodes    map[NodeId]*Node
	children map[NodeId][]NodeId
	handle   compose.RuntimeHandle

	log *clog.Logger
}

// NewMemApplier returns an empty tree.
func NewMemApplier() *MemApplier {
	return &MemApplier{
		nodes:    make(map[NodeId]*Node),
		children: make(map[NodeId][]NodeId),
		log:      clog.New("applier"),
	}
}

func (m *MemApplier) ensure(id NodeId) *Node {
	n, ok := m.nodes[id]
	if !ok {
		n = &Node{ID: id}
		m.nodes[id] = n
	}
	return n
}

// Insert attaches nodeID as parentID's index'th child, creating nodeID's
// own Node record if this is its first appearance. index is clamped to
// [0, len(siblings)] rather than rejected, matching an append-at-end
// fallback a host's own list widgets typically use for an out-of-range
// insertion point.
func (m *MemApplier) Insert(parentID NodeId, index int, nodeID NodeId) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if parentID != rootID {
		if _, ok := m.nodes[parentID]; !ok {
			return fmt.Errorf("applier: insert under node %d: %w", parentID, ErrNodeMissing)
		}
	}
	child := m.ensure(nodeID)
	child.ParentID = parentID
	child.HasParent = parentID != rootID

	siblings := m.children[parentID]
	if index < 0 || index > len(siblings) {
		index = len(siblings)
	}
	siblings = append(siblings, rootID)
	copy(siblings[index+1:], siblings[index:])
	siblings[index] = nodeID
	m.children[parentID] = siblings

	m.log.Trace("insert", "parent", parentID, "index", index, "node", nodeID)
	return nil
}

// Remove detaches parentID's index'th child and drops it along with its
// whole subtree; a later Insert of the same NodeId starts fresh.
func (m *MemApplier) Remove(parentID NodeId, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	siblings, ok := m.children[parentID]
	if !ok || index < 0 || index >= len(siblings) {
		return fmt.Errorf("applier: remove index %d under node %d: %w", index, parentID, ErrNodeMissing)
	}
	removed := siblings[index]
	m.children[parentID] = append(siblings[:index:index], siblings[index+1:]...)
	m.detachSubtree(removed)

	m.log.Trace("remove", "parent", parentID, "index", index, "node", removed)
	return nil
}

func (m *MemApplier) detachSubtree(id NodeId) {
	for _, child := range m.children[id] {
		m.detachSubtree(child)
	}
	delete(m.children, id)
	delete(m.nodes, id)
}

// Move relocates parentID's from'th child to position to among its
// siblings, preserving every other sibling's relative order.
func (m *MemApplier) Move(parentID NodeId, from, to int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	siblings, ok := m.children[parentID]
	if !ok || from < 0 || from >= len(siblings) || to < 0 || to >= len(siblings) {
		return fmt.Errorf("applier: move %d->%d under node %d: %w", from, to, parentID, ErrNodeMissing)
	}
	moved := siblings[from]

	rest := make([]NodeId, 0, len(siblings)-1)
	rest = append(rest, siblings[:from]...)
	rest = append(rest, siblings[from+1:]...)

	newSiblings := make([]NodeId, 0, len(siblings))
	newSiblings = append(newSiblings, rest[:to]...)
	newSiblings = append(newSiblings, moved)
	newSiblings = append(newSiblings, rest[to:]...)
	m.children[parentID] = newSiblings

	m.log.Trace("move", "parent", parentID, "from", from, "to", to, "node", moved)
	return nil
}

// Access runs fn with the node identified by id, under the applier's
// lock, so fn sees a consistent Node even if called from a background
// goroutine that the runtime handle dispatched.
func (m *MemApplier) Access(id NodeId, fn func(*Node)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[id]
	if !ok {
		return fmt.Errorf("applier: access node %d: %w", id, ErrNodeMissing)
	}
	fn(n)
	return nil
}

// SetRuntimeHandle records h so nodes accessed afterward can reach the
// task dispatcher and frame clock during layout/draw.
func (m *MemApplier) SetRuntimeHandle(h compose.RuntimeHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handle = h
}

// ClearRuntimeHandle withdraws the handle set by SetRuntimeHandle, e.g.
// when the host tears the runtime down.
func (m *MemApplier) ClearRuntimeHandle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handle = nil
}

// RuntimeHandle returns the handle currently exposed to nodes, if any.
func (m *MemApplier) RuntimeHandle() (compose.RuntimeHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle, m.handle != nil
}

// DumpTree renders the subtree rooted at root (the whole tree if root is
// nil) as one indented line per node, children after parents, in sibling
// order.
func (m *MemApplier) DumpTree(root *NodeId) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := rootID
	if root != nil {
		start = *root
	}
	var b strings.Builder
	m.dumpNode(&b, start, 0)
	return b.String()
}

func (m *MemApplier) dumpNode(b *strings.Builder, id NodeId, depth int) {
	if id != rootID {
		fmt.Fprintf(b, "%snode %d\n", strings.Repeat("  ", depth), id)
	}
	for _, child := range m.children[id] {
		m.dumpNode(b, child, depth+1)
	}
}
