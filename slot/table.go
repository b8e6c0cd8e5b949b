// Package slot implements the positional, cursor-driven slot table: a
// store of groups, remembered values, and node references that survives
// across recompositions with stable identity.
//
// Two backends satisfy the Table interface: Chunked stores
// slots in fixed-size chunks to avoid large rotate operations; Split keeps
// layout and payload in separate stores so demoting a slot to a Gap does
// not drop its payload.
package slot

// Key is the 64-bit positional identity of a slot table entry. Produced
// by internal/keyhash from a source location plus an optional user key.
type Key uint64

// AnchorId is a position-independent handle to a slot. Anchor zero is
// never issued; it means "invalid".
type AnchorId uint64

// ScopeId identifies a recompose scope whose group start a Group slot may
// reference. Owned by package scheduler;
// stored here opaquely.
type ScopeId uint64

// NodeId identifies an external node-tree node recorded via RecordNode.
// Owned by package applier; stored here opaquely.
type NodeId uint64

// Group describes a begun region; returned by BeginGroup/BeginRecomposeAtScope.
type Group struct {
	Anchor AnchorId
	pos    int
}

// ValueSlot is an opaque handle to a remembered value's storage cell,
// returned by AllocValueSlot and required by ReadValue/WriteValue.
type ValueSlot struct {
	Anchor AnchorId
	pos    int
}

// Table is the slot table contract composable-execution drives through.
type Table interface {
	// BeginGroup begins (or restores) a group keyed by key at the cursor.
	// restoredFromGap is true iff a Gap with a matching group key occupied
	// the cursor and was restored in place.
	BeginGroup(key Key) (group Group, restoredFromGap bool)

	// SetGroupScope attaches a recompose scope id to the most recently
	// begun (still open) group.
	SetGroupScope(group Group, scope ScopeId)

	// EndGroup pops the current group frame and writes back its length.
	EndGroup()

	// SkipCurrentGroup advances the cursor past the group at the cursor
	// and its contents without visiting them. Scopes inside remain alive.
	SkipCurrentGroup()

	// FinalizeCurrentGroup converts any slots between the cursor and the
	// recorded running-end of the current group into Gaps. Returns
	// whether anything was demoted.
	FinalizeCurrentGroup() bool

	// AllocValueSlot reuses the slot at the cursor if it already holds a
	// value of the same shape, or allocates a new Value slot from init().
	// sameShape inspects the previously stored value to decide reuse; pass
	// nil to always treat the existing value as reusable.
	AllocValueSlot(init func() interface{}, sameShape func(existing interface{}) bool) ValueSlot

	// ReadValue returns the payload last written at slot.
	ReadValue(slot ValueSlot) (interface{}, bool)

	// WriteValue overwrites the payload at slot.
	WriteValue(slot ValueSlot, value interface{})

	// RecordNode inserts a Node slot at the cursor.
	RecordNode(id NodeId)

	// PeekNode returns the NodeId at the cursor without advancing, if the
	// slot at the cursor is a Node.
	PeekNode() (NodeId, bool)

	// AdvanceAfterNodeRead advances the cursor by one slot.
	AdvanceAfterNodeRead()

	// BeginRecomposeAtScope moves the cursor to scope's group start,
	// leaving outer state (the group stack) unchanged, and pushes a group
	// frame for it. Pair with EndRecompose.
	BeginRecomposeAtScope(scope ScopeId) (Group, bool)

	// EndRecompose pops the frame pushed by BeginRecomposeAtScope.
	EndRecompose()

	// Reset rewinds the cursor to the start of the table for a new pass.
	Reset()

	// Flush rebuilds the anchor-position index if it is dirty.
	Flush()

	// PositionOf resolves an anchor to its current slot position. Used by
	// tests and by ChunkedTable's ReadValue/WriteValue.
	PositionOf(anchor AnchorId) (int, bool)

	// Cursor returns the current cursor position (for tests/diagnostics).
	Cursor() int

	// Len returns the total number of slots currently stored.
	Len() int
}
