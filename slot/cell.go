package slot

type kind uint8

const (
	kindGap kind = iota
	kindGroup
	kindValue
	kindNode
)

// layout is the position-addressable metadata shared by both backends.
// Chunked stores payload inline on the cell; Split stores it out-of-line,
// indexed by anchor, so demoting to a gap doesn't discard it: the payload
// persists until SplitTable.DisposeValue removes it.
type layout struct {
	kind   kind
	anchor AnchorId

	// Group fields.
	groupKey       Key
	groupLen       int
	groupScope     ScopeId
	hasScope       bool
	hasGapChildren bool

	// Node field.
	nodeID NodeId

	// Gap fields: remembers the identity of the group that last occupied
	// this position, for gap restoration.
	gapHasGroup   bool
	gapGroupKey   Key
	gapGroupScope ScopeId
	gapHasScope   bool
	gapGroupLen   int
}

func gapLayout(anchor AnchorId) layout {
	return layout{kind: kindGap, anchor: anchor}
}

// demoteToGap converts a Group layout into a Gap remembering its identity,
// preserving the anchor so PositionOf keeps resolving it until the parent
// group itself is dropped.
func (l layout) demoteToGap() layout {
	if l.kind != kindGroup {
		return layout{kind: kindGap, anchor: l.anchor}
	}
	return layout{
		kind:          kindGap,
		anchor:        l.anchor,
		gapHasGroup:   true,
		gapGroupKey:   l.groupKey,
		gapGroupScope: l.groupScope,
		gapHasScope:   l.hasScope,
		gapGroupLen:   l.groupLen,
	}
}

type groupFrame struct {
	key         Key
	start       int
	runningEnd  int
	restoredGap bool
}
