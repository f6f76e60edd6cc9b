package client

import "sync"

// Subscription is returned by callback registration. Cancel clears the
// callback only while it is still the current one.
type Subscription struct {
	cancel func()
}

// Cancel removes the callback if no later registration replaced it.
func (s Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// slot holds one callback. Every set bumps the generation so a stale
// Subscription cannot clear a newer callback.
type slot[T any] struct {
	mu  sync.Mutex
	fn  func(T)
	gen uint64
}

func (s *slot[T]) set(fn func(T)) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.fn = fn
	if fn == nil {
		return Subscription{}
	}
	gen := s.gen
	return Subscription{cancel: func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen == gen {
			s.fn = nil
			s.gen++
		}
	}}
}

func (s *slot[T]) call(v T) bool {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(v)
	return true
}
