package snapshot

import "reflect"

// Mergeable lets a state object supply its own equivalence and three-way
// merge policy. Objects that don't
// implement it fall back to reflect.DeepEqual with no merge, which is
// always a safe (conservative) choice: it never reports a false conflict
// as resolved, it only ever reports Failure more readily.
type Mergeable interface {
	// Equivalent reports whether other is interchangeable with the
	// receiver for conflict-detection purposes.
	Equivalent(other interface{}) bool

	// Merge attempts a three-way merge of base (the value visible to the
	// snapshot's parent), current (the value another snapshot already
	// committed), and the receiver (the value this snapshot wants to
	// write). Returns the merged value and true on success.
	Merge(base, current interface{}) (interface{}, bool)
}

func equivalent(committed, applied interface{}) bool {
	if m, ok := applied.(Mergeable); ok {
		return m.Equivalent(committed)
	}
	if m, ok := committed.(Mergeable); ok {
		return m.Equivalent(applied)
	}
	return reflect.DeepEqual(committed, applied)
}

// resolveConflict tries applied's own Merge method, falling back to
// committed's, since either side of the conflict may be the one carrying
// the interesting policy.
func resolveConflict(base, committed, applied interface{}) (interface{}, bool) {
	if m, ok := applied.(Mergeable); ok {
		if v, ok := m.Merge(base, committed); ok {
			return v, true
		}
	}
	if m, ok := committed.(Mergeable); ok {
		if v, ok := m.Merge(base, applied); ok {
			return v, true
		}
	}
	return nil, false
}
