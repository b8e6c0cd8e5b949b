package effect

import (
	"sync"

	"github.com/loomkit/compose/compose"
)

type disposableState struct {
	mu          sync.Mutex
	hasKey      bool
	key         uint64
	cleanup     func()
	disposerSet bool
}

func (s *disposableState) shouldRun(key uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.hasKey || s.key != key
}

func (s *disposableState) markDisposerRegistered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposerSet {
		return false
	}
	s.disposerSet = true
	return true
}

func (s *disposableState) run(key uint64, factory func() func()) {
	s.mu.Lock()
	prev := s.cleanup
	s.hasKey = true
	s.key = key
	s.mu.Unlock()

	if prev != nil {
		prev()
	}
	next := factory()

	s.mu.Lock()
	s.cleanup = next
	s.mu.Unlock()
}

func (s *disposableState) dispose() {
	s.mu.Lock()
	cleanup := s.cleanup
	s.cleanup = nil
	s.mu.Unlock()
	if cleanup != nil {
		cleanup()
	}
}

// Disposable runs factory the first time its call site is composed, and
// again whenever key hashes to something different than the last run,
// calling the previous run's cleanup closure first. The final cleanup
// runs exactly once, when the call site stops being visited.
func Disposable(c *compose.Composer, loc compose.Location, key interface{}, factory func() func()) {
	c.WithKey(loc, "effect.disposable", func() {
		h := inputHash(key)
		rem := c.Remember(loc, func() interface{} { return &disposableState{} })
		v, _ := rem.Value()
		state := v.(*disposableState)

		if state.markDisposerRegistered() {
			c.RegisterDisposer(rem.Scope(), state.dispose)
		}
		if state.shouldRun(h) {
			c.RegisterSideEffect(loc, "effect.disposable", func() {
				state.run(h, factory)
			})
		}
	})
}
