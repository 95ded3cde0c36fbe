// Package store provides small observable containers: a fan-out
// Broadcaster and a Store that publishes every committed state.
package store

import "sync"

// Broadcaster is a fan-out pub/sub for values of type T.
type Broadcaster[T any] struct {
	mu   sync.RWMutex
	subs map[chan T]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[chan T]struct{})}
}

// Publish sends v to all subscribers (non-blocking).
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- v:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel that receives published values.
func (b *Broadcaster[T]) Subscribe() chan T {
	ch := make(chan T, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster[T]) Unsubscribe(ch chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Store holds a value of type T. Updates are serialized and each committed
// state is published to subscribers in commit order.
//
// T should be treated as immutable: update functions return a new value
// rather than mutating slices or maps reachable from the old one.
type Store[T any] struct {
	*Broadcaster[T]
	mu    sync.RWMutex
	state T
}

// New creates a store holding initial.
func New[T any](initial T) *Store[T] {
	return &Store[T]{Broadcaster: NewBroadcaster[T](), state: initial}
}

// State returns the current state.
func (s *Store[T]) State() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Update replaces the state with fn(prev) and publishes the result.
func (s *Store[T]) Update(fn func(prev T) T) T {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(s.state)
	s.state = next
	s.Publish(next)
	return next
}

// UpdateIf is Update for transitions that may be no-ops: when fn reports
// false the state is kept and nothing is published.
func (s *Store[T]) UpdateIf(fn func(prev T) (T, bool)) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := fn(s.state)
	if !ok {
		return s.state, false
	}
	s.state = next
	s.Publish(next)
	return next, true
}

// Set replaces the state unconditionally.
func (s *Store[T]) Set(v T) {
	s.Update(func(T) T { return v })
}
