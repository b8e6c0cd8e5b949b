package readtrack

import bloomfilter "github.com/holiman/bloomfilter/v2"

// bloomBits/bloomHashes size a scope-level pre-check filter for a
// handful to a few dozen observed ids at a low false-positive rate;
// false positives only cost a skipped fast path, never a missed
// invalidation, so this errs small.
const (
	bloomBits   = 2048
	bloomHashes = 4
)

// scopeBloom is a cheap pre-check over a scope's observed-id set: a
// negative is definitive, a positive still needs the exact idset.Set
// check HandleApply falls back to.
type scopeBloom struct {
	filter *bloomfilter.Filter
}

func newScopeBloom() *scopeBloom {
	f, err := bloomfilter.New(bloomBits, bloomHashes)
	if err != nil {
		panic("readtrack: invalid fixed bloom filter parameters: " + err.Error())
	}
	return &scopeBloom{filter: f}
}

func (b *scopeBloom) add(id uint64) {
	b.filter.AddHash(id)
}

func (b *scopeBloom) mayContain(id uint64) bool {
	return b.filter.ContainsHash(id)
}
