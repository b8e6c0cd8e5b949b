package lazylist

import "testing"

func TestReattachReturnsMostRecentlyDetachedItem(t *testing.T) {
	p := NewReusePool(0, 0)
	p.Detach(1, "a")
	p.Detach(1, "b")

	v, ok := p.Reattach(1)
	if !ok || v.(string) != "b" {
		t.Fatalf("expected to reattach the most recently detached item \"b\", got %v, ok=%v", v, ok)
	}
	v, ok = p.Reattach(1)
	if !ok || v.(string) != "a" {
		t.Fatalf("expected to reattach \"a\" next, got %v, ok=%v", v, ok)
	}
	if _, ok := p.Reattach(1); ok {
		t.Fatalf("expected the bucket to be empty")
	}
}

func TestReattachMissOnUnknownBucket(t *testing.T) {
	p := NewReusePool(0, 0)
	if _, ok := p.Reattach(99); ok {
		t.Fatalf("expected a miss for a bucket that was never detached into")
	}
}

func TestPerBucketCapacityEvictsOldestWithinBucket(t *testing.T) {
	p := NewReusePool(2, 100)
	p.Detach(1, "a")
	p.Detach(1, "b")
	p.Detach(1, "c")

	if got := p.BucketLen(1); got != 2 {
		t.Fatalf("expected the bucket capped at 2, got %d", got)
	}
	// "a" should have been evicted first.
	first, _ := p.Reattach(1)
	second, _ := p.Reattach(1)
	if first.(string) != "c" || second.(string) != "b" {
		t.Fatalf("expected reattach order c, b after evicting a; got %v, %v", first, second)
	}
}

func TestOverallCapacityEvictsOldestAcrossBuckets(t *testing.T) {
	p := NewReusePool(10, 2)
	p.Detach(1, "a")
	p.Detach(2, "b")
	p.Detach(3, "c")

	if got := p.Len(); got != 2 {
		t.Fatalf("expected the pool capped at 2 overall, got %d", got)
	}
	if _, ok := p.Reattach(1); ok {
		t.Fatalf("expected bucket 1's item to have been evicted first")
	}
	if _, ok := p.Reattach(2); !ok {
		t.Fatalf("expected bucket 2's item to still be retained")
	}
	if _, ok := p.Reattach(3); !ok {
		t.Fatalf("expected bucket 3's item to still be retained")
	}
}

func TestReattachRemovesItemFromFIFO(t *testing.T) {
	p := NewReusePool(10, 2)
	p.Detach(1, "a")
	if _, ok := p.Reattach(1); !ok {
		t.Fatalf("expected to reattach \"a\"")
	}
	// Refill past the original capacity; if the fifo entry for "a" was
	// not removed on reattach, this eviction would target a slot that's
	// already gone.
	p.Detach(2, "b")
	p.Detach(3, "c")
	if got := p.Len(); got != 2 {
		t.Fatalf("expected the pool capped at 2 after refill, got %d", got)
	}
}

func TestDefaultsApplyForNonPositiveCapacities(t *testing.T) {
	p := NewReusePool(0, -1)
	if p.perBucket != DefaultPerBucketCapacity || p.totalCap != DefaultTotalCapacity {
		t.Fatalf("expected defaults to apply, got perBucket=%d totalCap=%d", p.perBucket, p.totalCap)
	}
}
