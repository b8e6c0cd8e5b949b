package snapshot

// pinHeap is a handle-based min-heap of pinned snapshot ids, giving O(1)
// access to the oldest pinned id and O(log n) handle-based removal (a
// caller unpins by handle, not by searching the heap for a value).
type pinHeap struct {
	size    int
	values  []SnapshotID
	index   []int // heap position -> handle
	handles []int // handle -> heap position; free handles chain to the next free handle

	firstFreeHandle int
}

func newPinHeap() *pinHeap {
	return &pinHeap{}
}

func (h *pinHeap) Len() int { return h.size }

// Min returns the oldest pinned id and true, or false if nothing is pinned.
func (h *pinHeap) Min() (SnapshotID, bool) {
	if h.size == 0 {
		return 0, false
	}
	return h.values[0], true
}

// Pin adds id to the heap and returns a handle for later Unpin.
func (h *pinHeap) Pin(id SnapshotID) int {
	i := h.size
	h.size++

	handle := h.allocateHandle()

	if i >= len(h.values) {
		h.values = append(h.values, id)
		h.index = append(h.index, handle)
	} else {
		h.values[i] = id
		h.index[i] = handle
	}
	h.growHandles(handle + 1)
	h.handles[handle] = i

	h.shiftUp(i)
	return handle
}

// Unpin removes the element associated with handle.
func (h *pinHeap) Unpin(handle int) {
	i := h.handles[handle]
	h.swap(i, h.size-1)
	h.size--
	h.shiftUp(i)
	h.shiftDown(i)
	h.freeHandle(handle)
}

func (h *pinHeap) allocateHandle() int {
	handle := h.firstFreeHandle
	h.growHandles(handle + 1)
	h.firstFreeHandle = h.handles[handle]
	return handle
}

func (h *pinHeap) freeHandle(handle int) {
	h.handles[handle] = h.firstFreeHandle
	h.firstFreeHandle = handle
}

// growHandles extends the handles free-list so index n is addressable.
func (h *pinHeap) growHandles(n int) {
	for len(h.handles) < n {
		h.handles = append(h.handles, len(h.handles)+1)
	}
}

func (h *pinHeap) swap(i, j int) {
	if i >= h.size || j >= h.size {
		return
	}
	h.values[i], h.values[j] = h.values[j], h.values[i]
	h.index[i], h.index[j] = h.index[j], h.index[i]
	h.handles[h.index[i]] = i
	h.handles[h.index[j]] = j
}

func (h *pinHeap) shiftUp(i int) {
	if i >= h.size {
		return
	}
	value := h.values[i]
	for i > 0 {
		parent := (i - 1) / 2
		if h.values[parent] <= value {
			break
		}
		h.swap(i, parent)
		i = parent
	}
}

func (h *pinHeap) shiftDown(i int) {
	if i >= h.size {
		return
	}
	value := h.values[i]
	half := h.size / 2
	for i < half {
		child := 2*i + 1
		right := child + 1
		if right < h.size && h.values[right] < h.values[child] {
			child = right
		}
		if value <= h.values[child] {
			break
		}
		h.swap(i, child)
		i = child
	}
}
