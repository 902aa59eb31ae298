package collector

import (
	"errors"
	"fmt"
	"sync"
)

// ErrSubscriptionsClosed is returned when adding to a released set.
var ErrSubscriptionsClosed = errors.New("subscriptions closed")

// Subscriptions is the set of active listeners owned by one session. Every
// entry is released exactly once: individually, or all together on Close.
type Subscriptions struct {
	mu      sync.Mutex
	entries map[string]func()
	order   []string
	closed  bool
}

// NewSubscriptions returns an empty set.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{entries: make(map[string]func())}
}

// Add registers release under name. If the set is already closed, release
// runs immediately and ErrSubscriptionsClosed is returned.
func (s *Subscriptions) Add(name string, release func()) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		release()
		return ErrSubscriptionsClosed
	}
	if _, dup := s.entries[name]; dup {
		s.mu.Unlock()
		return fmt.Errorf("subscription %q already active", name)
	}
	s.entries[name] = release
	s.order = append(s.order, name)
	s.mu.Unlock()
	return nil
}

// Release runs and removes the named entry. It reports whether it was active.
func (s *Subscriptions) Release(name string) bool {
	s.mu.Lock()
	release, ok := s.entries[name]
	if ok {
		delete(s.entries, name)
		for i, n := range s.order {
			if n == name {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if ok {
		release()
	}
	return ok
}

// Active reports whether name is registered.
func (s *Subscriptions) Active(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[name]
	return ok
}

// Len returns the number of active entries.
func (s *Subscriptions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close releases every entry in reverse registration order. Later calls are
// no-ops.
func (s *Subscriptions) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	releases := make([]func(), 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		releases = append(releases, s.entries[s.order[i]])
	}
	s.entries = nil
	s.order = nil
	s.mu.Unlock()

	for _, release := range releases {
		release()
	}
}
