// Package idset implements a compact id set: small sets (≤8 entries) use
// inline array storage, larger ones fall back to a hash set. Used by
// snapshot's invalid-set masking and by readtrack's per-scope read sets.
package idset

const inlineCap = 8

// Set is a compact, insertion-order-preserving set of uint64 ids.
type Set struct {
	inline    [inlineCap]uint64
	inlineLen int
	overflow  map[uint64]struct{}
	order     []uint64 // only populated once overflow is in use
}

// Add inserts id, returning true if it was newly added.
func (s *Set) Add(id uint64) bool {
	if s.overflow == nil {
		for i := 0; i < s.inlineLen; i++ {
			if s.inline[i] == id {
				return false
			}
		}
		if s.inlineLen < inlineCap {
			s.inline[s.inlineLen] = id
			s.inlineLen++
			return true
		}
		// Promote to overflow storage.
		s.overflow = make(map[uint64]struct{}, inlineCap*2)
		s.order = make([]uint64, 0, inlineCap*2)
		for i := 0; i < s.inlineLen; i++ {
			s.overflow[s.inline[i]] = struct{}{}
			s.order = append(s.order, s.inline[i])
		}
	}
	if _, ok := s.overflow[id]; ok {
		return false
	}
	s.overflow[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

// Contains reports whether id is a member.
func (s *Set) Contains(id uint64) bool {
	if s.overflow != nil {
		_, ok := s.overflow[id]
		return ok
	}
	for i := 0; i < s.inlineLen; i++ {
		if s.inline[i] == id {
			return true
		}
	}
	return false
}

// Remove deletes id from the set if present.
func (s *Set) Remove(id uint64) {
	if s.overflow != nil {
		if _, ok := s.overflow[id]; !ok {
			return
		}
		delete(s.overflow, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		return
	}
	for i := 0; i < s.inlineLen; i++ {
		if s.inline[i] == id {
			copy(s.inline[i:], s.inline[i+1:s.inlineLen])
			s.inlineLen--
			return
		}
	}
}

// Len returns the number of members.
func (s *Set) Len() int {
	if s.overflow != nil {
		return len(s.overflow)
	}
	return s.inlineLen
}

// Each calls fn for every member, in insertion order.
func (s *Set) Each(fn func(id uint64)) {
	if s.overflow != nil {
		for _, id := range s.order {
			fn(id)
		}
		return
	}
	for i := 0; i < s.inlineLen; i++ {
		fn(s.inline[i])
	}
}

// Intersects reports whether s and other share any member. Used by
// readtrack to decide whether a scope's read set overlaps a snapshot
// apply's modified-object set.
func (s *Set) Intersects(other *Set) bool {
	small, big := s, other
	if small.Len() > big.Len() {
		small, big = big, small
	}
	found := false
	small.Each(func(id uint64) {
		if found {
			return
		}
		if big.Contains(id) {
			found = true
		}
	})
	return found
}
