package snapshot

import "github.com/loomkit/compose/internal/idset"

// record is one committed version of a state object: an explicit linked
// chain per object, walked newest-first to find the version visible to a
// given snapshot.
type record struct {
	snapshotID SnapshotID
	value      interface{}
	older      *record
}

// recordVisibleTo returns the newest record in the chain headed by head
// whose snapshotID is <= sid and, if invalid is non-nil, not a member of
// it. The chain is not assumed sorted (commit order and snapshotID order
// can diverge when snapshots apply out of the order they were taken), so
// every record is inspected.
func recordVisibleTo(head *record, sid SnapshotID, invalid *idset.Set) *record {
	var best *record
	for r := head; r != nil; r = r.older {
		if r.snapshotID > sid {
			continue
		}
		if invalid != nil && invalid.Contains(uint64(r.snapshotID)) {
			continue
		}
		if best == nil || r.snapshotID > best.snapshotID {
			best = r
		}
	}
	return best
}

// findConflict returns the newest record with p < snapshotID <= g, or nil
// if none exists.
func findConflict(head *record, p, g SnapshotID) *record {
	var best *record
	for r := head; r != nil; r = r.older {
		if r.snapshotID > p && r.snapshotID <= g {
			if best == nil || r.snapshotID > best.snapshotID {
				best = r
			}
		}
	}
	return best
}
