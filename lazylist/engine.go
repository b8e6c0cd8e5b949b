// Package lazylist implements the lazy-list measurement engine: given a
// total item count, a scroll position, and a viewport extent, it decides
// which items need to be composed and measured, places them along the
// main axis, and reports the resulting layout plus scroll-bound flags.
// The engine is pure with respect to scrolling: a caller converts raw
// pointer/fling input into a pending scroll delta and feeds it in; this
// package never reads input devices itself.
//
// Measurement proceeds in stages: empty/zero-viewport short circuits,
// pending-delta application with a measured (not estimated) backward
// walk to avoid sticky boundaries, forward-fill up to the viewport plus
// a beyond-bounds buffer, and boundary clamp. The first visible item's
// key is recorded in State, but the next pass resumes from the stored
// index and offset and does not re-resolve the position by that key.
// Arrangement and reverse-layout handling fold into
// applyArrangement/applyReverse below rather than living in separate
// collaborator types, since neither needs independent state here.
package lazylist

import "github.com/holiman/uint256"

// DefaultItemSizeEstimate seeds the running average before anything has
// been measured.
const DefaultItemSizeEstimate = 48.0

// Axis is the list's scroll direction.
type Axis int

const (
	Vertical Axis = iota
	Horizontal
)

// Arrangement distributes slack space when the whole list fits within
// the viewport. It has no effect once the list overflows the viewport,
// since there is no slack to distribute.
type Arrangement int

const (
	ArrangeStart Arrangement = iota
	ArrangeCenter
	ArrangeEnd
	ArrangeSpacedBy
	ArrangeSpaceBetween
	ArrangeSpaceAround
	ArrangeSpaceEvenly
)

// Config is the list's static measurement configuration.
type Config struct {
	Axis              Axis
	Reverse           bool
	BeforePadding     float64
	AfterPadding      float64
	Spacing           float64
	BeyondBoundsCount int
	Arrangement       Arrangement
}

// DefaultConfig returns the configuration new lists should start from.
func DefaultConfig() Config {
	return Config{BeyondBoundsCount: 2}
}

// MeasuredItem is one item's composed size and, once placed, its
// main-axis offset.
type MeasuredItem struct {
	Index         uint64
	Key           uint64
	ContentType   int
	MainAxisSize  float64
	CrossAxisSize float64
	Offset        float64
}

// LayoutInfo is what a list writes back to its state after each
// measurement pass, for the host to render and for scrollbar/indicator
// composables to read.
type LayoutInfo struct {
	VisibleItems         []MeasuredItem
	TotalItemsCount      uint64
	ViewportSize         float64
	ViewportStartOffset  float64
	ViewportEndOffset    float64
	BeforeContentPadding float64
	AfterContentPadding  float64
}

// MeasureResult is the direct return value of Measure; State.Layout()
// holds the same information across calls for composables that don't
// have the result in hand.
type MeasureResult struct {
	VisibleItems                 []MeasuredItem
	FirstVisibleItemIndex        uint64
	FirstVisibleItemScrollOffset float64
	ViewportSize                 float64
	TotalContentSize             float64
	CanScrollForward             bool
	CanScrollBackward            bool
}

// State carries scroll position, the running item-size average, and the
// last layout across measurement passes.
type State struct {
	firstVisibleIndex uint64
	scrollOffset      float64
	pendingDelta      float64

	averageSize   float64
	measuredCount uint64

	firstVisibleKey    uint64
	hasFirstVisibleKey bool

	layout LayoutInfo
}

// NewState returns a state positioned at the top with no measurement
// history.
func NewState() *State {
	return &State{averageSize: DefaultItemSizeEstimate}
}

// DispatchScrollDelta accumulates delta (positive scrolls forward) to be
// consumed by the next Measure call.
func (s *State) DispatchScrollDelta(delta float64) { s.pendingDelta += delta }

// ScrollToItem jumps directly to index with the given leading offset,
// discarding any pending delta and key-stability tracking.
func (s *State) ScrollToItem(index uint64, offset float64) {
	s.firstVisibleIndex = index
	s.scrollOffset = offset
	s.pendingDelta = 0
	s.hasFirstVisibleKey = false
}

// AverageItemSize returns the running average of measured item sizes,
// or the default estimate if nothing has been measured yet.
func (s *State) AverageItemSize() float64 {
	if s.measuredCount == 0 {
		return DefaultItemSizeEstimate
	}
	return s.averageSize
}

func (s *State) recordMeasurement(size float64) {
	if size < 0 {
		size = 0
	}
	total := s.averageSize*float64(s.measuredCount) + size
	s.measuredCount++
	s.averageSize = total / float64(s.measuredCount)
}

// Layout returns the layout info written by the most recent Measure
// call.
func (s *State) Layout() LayoutInfo { return s.layout }

// MeasureItemFunc composes and measures the item at index, returning its
// size and stable key. Called at most once per index per Measure pass.
type MeasureItemFunc func(index uint64) MeasuredItem

// saturatingSub1 returns n-1, or 0 if n is 0. Routed through uint256
// rather than a bare conditional so the one subtraction in this package
// that an adversarial total-item count (up to MaxUint64) could otherwise
// wrap uses the same non-wrapping arithmetic discipline as the rest of
// this codebase's unsigned range math.
func saturatingSub1(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	x := uint256.NewInt(n)
	x.SubUint64(x, 1)
	return x.Uint64()
}

// Measure runs one measurement pass: it consumes State's pending scroll
// delta, composes/measures only the items needed to cover the viewport
// plus the beyond-bounds buffer, places them, and writes the resulting
// layout back into state. totalItems may be arbitrarily large (up to
// MaxUint64); cost is always proportional to the number of items
// actually placed, never to totalItems itself.
func Measure(totalItems uint64, state *State, viewportSize, crossAxisSize float64, cfg Config, measureItem MeasureItemFunc) MeasureResult {
	if totalItems == 0 {
		state.firstVisibleIndex = 0
		state.scrollOffset = 0
		state.pendingDelta = 0
		state.hasFirstVisibleKey = false
		state.layout = LayoutInfo{
			TotalItemsCount:      0,
			ViewportSize:         viewportSize,
			ViewportStartOffset:  cfg.BeforePadding,
			ViewportEndOffset:    cfg.AfterPadding,
			BeforeContentPadding: cfg.BeforePadding,
			AfterContentPadding:  cfg.AfterPadding,
		}
		return MeasureResult{ViewportSize: viewportSize}
	}

	if viewportSize <= 0 {
		state.layout = LayoutInfo{
			TotalItemsCount:      totalItems,
			ViewportSize:         viewportSize,
			ViewportStartOffset:  cfg.BeforePadding,
			ViewportEndOffset:    cfg.AfterPadding,
			BeforeContentPadding: cfg.BeforePadding,
			AfterContentPadding:  cfg.AfterPadding,
		}
		return MeasureResult{ViewportSize: viewportSize}
	}

	avg := state.AverageItemSize()
	if avg <= 0 {
		avg = DefaultItemSizeEstimate
	}

	// An effectively infinite viewport (a list inside an unconstrained
	// scroll container) is bounded to a large-but-finite substitute so
	// the forward-fill loop below still terminates in bounded work.
	const infiniteViewportThreshold = 1e7
	effectiveViewport := viewportSize
	if viewportSize > infiniteViewportThreshold {
		effectiveViewport = avg * 1000
	}

	firstIndex := state.firstVisibleIndex
	firstOffset := state.scrollOffset - state.pendingDelta
	state.pendingDelta = 0

	// Walk forward using the size estimate while the delta has carried
	// the anchor past its own item's extent.
	for firstOffset >= avg+cfg.Spacing && firstIndex+1 < totalItems {
		firstOffset -= avg + cfg.Spacing
		firstIndex++
	}

	var preMeasured []MeasuredItem
	if firstOffset < 0 && firstIndex > 0 {
		for firstOffset < 0 && firstIndex > 0 {
			firstIndex--
			item := measureItem(firstIndex)
			firstOffset += item.MainAxisSize + cfg.Spacing
			preMeasured = append(preMeasured, item)
		}
		for i, j := 0, len(preMeasured)-1; i < j; i, j = i+1, j-1 {
			preMeasured[i], preMeasured[j] = preMeasured[j], preMeasured[i]
		}
	}

	if firstIndex > saturatingSub1(totalItems) {
		firstIndex = saturatingSub1(totalItems)
	}
	if firstOffset < 0 {
		firstOffset = 0
	}

	visible := append([]MeasuredItem{}, preMeasured...)
	pos := -firstOffset
	for i := range visible {
		visible[i].Offset = pos
		pos += visible[i].MainAxisSize + cfg.Spacing
	}

	nextIndex := firstIndex + uint64(len(visible))
	limit := effectiveViewport + float64(cfg.BeyondBoundsCount)*avg
	for nextIndex < totalItems && pos < limit {
		item := measureItem(nextIndex)
		item.Offset = pos
		visible = append(visible, item)
		pos += item.MainAxisSize + cfg.Spacing
		nextIndex++
	}

	clampBoundaries(visible, cfg, effectiveViewport, totalItems)
	applyArrangement(visible, cfg, effectiveViewport, totalItems)
	if cfg.Reverse {
		applyReverse(visible, effectiveViewport)
	}

	for _, item := range visible {
		state.recordMeasurement(item.MainAxisSize)
	}

	viewportEnd := effectiveViewport - cfg.AfterPadding
	itemEndWithSpacing := func(item MeasuredItem) float64 {
		spacingAfter := cfg.Spacing
		if item.Index+1 >= totalItems {
			spacingAfter = 0
		}
		return item.Offset + item.MainAxisSize + spacingAfter
	}

	var actualFirst *MeasuredItem
	for i := range visible {
		if itemEndWithSpacing(visible[i]) > cfg.BeforePadding {
			actualFirst = &visible[i]
			break
		}
	}

	var finalFirstIndex uint64
	var finalScrollOffset float64
	switch {
	case actualFirst != nil:
		finalFirstIndex = actualFirst.Index
		finalScrollOffset = cfg.BeforePadding - actualFirst.Offset
		if finalScrollOffset < 0 {
			finalScrollOffset = 0
		}
		state.firstVisibleKey = actualFirst.Key
		state.hasFirstVisibleKey = true
	case len(visible) > 0:
		finalFirstIndex = visible[0].Index
		state.firstVisibleKey = visible[0].Key
		state.hasFirstVisibleKey = true
	default:
		state.hasFirstVisibleKey = false
	}
	state.firstVisibleIndex = finalFirstIndex
	state.scrollOffset = finalScrollOffset

	visibleInfo := make([]MeasuredItem, 0, len(visible))
	for _, item := range visible {
		end := itemEndWithSpacing(item)
		if end > cfg.BeforePadding && item.Offset < viewportEnd {
			visibleInfo = append(visibleInfo, item)
		}
	}

	state.layout = LayoutInfo{
		VisibleItems:         visibleInfo,
		TotalItemsCount:      totalItems,
		ViewportSize:         effectiveViewport,
		ViewportStartOffset:  cfg.BeforePadding,
		ViewportEndOffset:    cfg.AfterPadding,
		BeforeContentPadding: cfg.BeforePadding,
		AfterContentPadding:  cfg.AfterPadding,
	}

	canScrollBackward := finalFirstIndex > 0 || finalScrollOffset > 0
	var canScrollForward bool
	if len(visible) > 0 {
		last := visible[len(visible)-1]
		canScrollForward = last.Index < totalItems-1 || last.Offset+last.MainAxisSize > viewportEnd
	}

	return MeasureResult{
		VisibleItems:                 visibleInfo,
		FirstVisibleItemIndex:        finalFirstIndex,
		FirstVisibleItemScrollOffset: finalScrollOffset,
		ViewportSize:                 effectiveViewport,
		TotalContentSize:             estimateTotalContentSize(totalItems, visible, cfg, state.AverageItemSize()),
		CanScrollForward:             canScrollForward,
		CanScrollBackward:            canScrollBackward,
	}
}

// clampBoundaries shifts the whole placed run so that, if it reaches the
// first or last item, that item abuts its padding edge exactly instead
// of leaving (or eating into) a gap caused by estimate error.
func clampBoundaries(visible []MeasuredItem, cfg Config, effectiveViewport float64, totalItems uint64) {
	if len(visible) == 0 {
		return
	}
	first := &visible[0]
	if first.Index == 0 && first.Offset > cfg.BeforePadding {
		shift := first.Offset - cfg.BeforePadding
		for i := range visible {
			visible[i].Offset -= shift
		}
	}
	last := &visible[len(visible)-1]
	// Only clamp the trailing edge when the run starts mid-list: if item
	// 0 is already in view there's no earlier content being scrolled
	// away from, so any gap before the viewport's trailing edge is slack
	// for applyArrangement to distribute, not overshoot to correct.
	if last.Index == totalItems-1 && first.Index != 0 {
		viewportEnd := effectiveViewport - cfg.AfterPadding
		lastEnd := last.Offset + last.MainAxisSize
		if lastEnd < viewportEnd {
			shift := viewportEnd - lastEnd
			for i := range visible {
				visible[i].Offset += shift
			}
		}
	}
}

// applyArrangement distributes leftover viewport space when the entire
// list (not just the visible window) fits within it; it is a no-op once
// the list overflows the viewport, since ArrangeSpacedBy's spacing is
// already baked into the forward-fill above.
func applyArrangement(visible []MeasuredItem, cfg Config, effectiveViewport float64, totalItems uint64) {
	if len(visible) == 0 || cfg.Arrangement == ArrangeStart || cfg.Arrangement == ArrangeSpacedBy {
		return
	}
	if visible[0].Index != 0 || visible[len(visible)-1].Index != totalItems-1 {
		return
	}
	last := visible[len(visible)-1]
	slack := effectiveViewport - cfg.AfterPadding - (last.Offset + last.MainAxisSize)
	if slack <= 0 {
		return
	}
	n := len(visible)
	switch cfg.Arrangement {
	case ArrangeEnd:
		for i := range visible {
			visible[i].Offset += slack
		}
	case ArrangeCenter:
		for i := range visible {
			visible[i].Offset += slack / 2
		}
	case ArrangeSpaceBetween:
		if n > 1 {
			gap := slack / float64(n-1)
			for i := range visible {
				visible[i].Offset += gap * float64(i)
			}
		}
	case ArrangeSpaceAround:
		gap := slack / float64(n)
		for i := range visible {
			visible[i].Offset += gap*float64(i) + gap/2
		}
	case ArrangeSpaceEvenly:
		gap := slack / float64(n+1)
		for i := range visible {
			visible[i].Offset += gap * float64(i+1)
		}
	}
}

// applyReverse mirrors placed offsets around the viewport's midline so
// the item nearest the trailing edge is laid out first visually, without
// changing index order.
func applyReverse(visible []MeasuredItem, effectiveViewport float64) {
	for i := range visible {
		visible[i].Offset = effectiveViewport - visible[i].Offset - visible[i].MainAxisSize
	}
}

func estimateTotalContentSize(totalItems uint64, measured []MeasuredItem, cfg Config, stateAverage float64) float64 {
	if totalItems == 0 {
		return 0
	}
	avg := stateAverage
	if len(measured) > 0 {
		var sum float64
		for _, m := range measured {
			sum += m.MainAxisSize
		}
		avg = sum / float64(len(measured))
	}
	return cfg.BeforePadding + (avg+cfg.Spacing)*float64(totalItems) - cfg.Spacing + cfg.AfterPadding
}
