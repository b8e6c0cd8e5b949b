package lazylist

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultPerBucketCapacity and DefaultTotalCapacity bound a ReusePool the
// way a list's reuse pool is bounded by default: a handful of detached
// subtrees per content-type, and a smaller overall ceiling so one
// content-type churning through many item shapes can't starve the rest.
const (
	DefaultPerBucketCapacity = 7
	DefaultTotalCapacity     = 35
)

type poolKey struct {
	bucket int
	id     int64
}

// ReusePool retains item subtrees detached from the visible window,
// bucketed by content-type, so a newly composed item of a previously
// seen content-type can reuse one instead of initializing fresh state.
//
// The pool has a fixed overall capacity with oldest-first eviction once
// full. Per-bucket bounding uses golang-lru's own LRU eviction directly;
// the overall bound is enforced by this type's own FIFO, since no single
// off-the-shelf cache bounds capacity across a dynamic set of
// independently-LRU'd buckets.
type ReusePool struct {
	mu sync.Mutex

	perBucket int
	totalCap  int
	nextID    int64

	buckets map[int]*lru.Cache
	fifo    []poolKey

	hits   int64
	misses int64
}

// NewReusePool returns a pool bounded to perBucket items per content-type
// and total items overall. Non-positive values fall back to the package
// defaults.
func NewReusePool(perBucket, total int) *ReusePool {
	if perBucket <= 0 {
		perBucket = DefaultPerBucketCapacity
	}
	if total <= 0 {
		total = DefaultTotalCapacity
	}
	return &ReusePool{
		perBucket: perBucket,
		totalCap:  total,
		buckets:   make(map[int]*lru.Cache),
	}
}

func (p *ReusePool) bucketFor(contentType int) *lru.Cache {
	c, ok := p.buckets[contentType]
	if !ok {
		c, _ = lru.New(p.perBucket)
		p.buckets[contentType] = c
	}
	return c
}

func (p *ReusePool) totalLocked() int {
	n := 0
	for _, c := range p.buckets {
		n += c.Len()
	}
	return n
}

// Detach retains item under contentType for later reuse. If the pool's
// overall bound is exceeded (by this insertion, or because golang-lru
// silently evicted a different bucket's entry on its own schedule), the
// oldest retained item across all buckets is dropped. A bucket whose own
// capacity is exceeded evicts its own least-recently-touched entry
// before this ever runs; such eviction bypasses the fifo entirely, which
// just means the stale fifo entry it leaves behind is a harmless no-op
// on its eventual turn.
func (p *ReusePool) Detach(contentType int, item interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.bucketFor(contentType).Add(id, item)
	p.fifo = append(p.fifo, poolKey{bucket: contentType, id: id})

	for p.totalLocked() > p.totalCap && len(p.fifo) > 0 {
		oldest := p.fifo[0]
		p.fifo = p.fifo[1:]
		if c, ok := p.buckets[oldest.bucket]; ok {
			c.Remove(oldest.id)
		}
	}
}

// Reattach removes and returns the most recently detached item of
// contentType, if the pool is holding one.
func (p *ReusePool) Reattach(contentType int) (interface{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.buckets[contentType]
	if !ok || c.Len() == 0 {
		p.misses++
		return nil, false
	}
	keys := c.Keys() // oldest to newest
	key := keys[len(keys)-1]
	v, ok := c.Peek(key)
	if !ok {
		p.misses++
		return nil, false
	}
	c.Remove(key)
	p.removeFIFOLocked(contentType, key.(int64))
	p.hits++
	return v, true
}

// Stats returns the cumulative reattach hit and miss counts since the
// pool was created, for a bench tool to report a reuse-pool hit rate.
func (p *ReusePool) Stats() (hits, misses int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits, p.misses
}

func (p *ReusePool) removeFIFOLocked(bucket int, id int64) {
	for i, k := range p.fifo {
		if k.bucket == bucket && k.id == id {
			p.fifo = append(p.fifo[:i], p.fifo[i+1:]...)
			return
		}
	}
}

// Len reports the total number of retained items across all buckets.
func (p *ReusePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalLocked()
}

// BucketLen reports the number of retained items for contentType.
func (p *ReusePool) BucketLen(contentType int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.buckets[contentType]
	if !ok {
		return 0
	}
	return c.Len()
}
