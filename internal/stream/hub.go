// Package stream fans Result values out to the observers of a cart scope.
//
// Publish never blocks: every subscription owns an unbounded FIFO drained by
// its own goroutine, so values reach each observer in publish order no matter
// how slow the others are. Cancelling the subscription context detaches the
// observer and drops whatever it had not received yet.
package stream

import (
	"context"
	"sync"

	"github.com/fjod/cartflow/internal/domain"
	"github.com/fjod/cartflow/internal/result"
)

type Hub[T any] struct {
	mu   sync.Mutex
	subs map[domain.Scope]map[*Subscription[T]]struct{}
	last map[domain.Scope]T
}

func NewHub[T any]() *Hub[T] {
	return &Hub[T]{
		subs: make(map[domain.Scope]map[*Subscription[T]]struct{}),
		last: make(map[domain.Scope]T),
	}
}

type Subscription[T any] struct {
	scope  domain.Scope
	mu     sync.Mutex
	queue  []result.Result[T]
	signal chan struct{}
	out    chan result.Result[T]
}

// C is closed once the subscription context is done.
func (s *Subscription[T]) C() <-chan result.Result[T] {
	return s.out
}

// Deliver queues r for this subscriber only.
func (s *Subscription[T]) Deliver(r result.Result[T]) {
	s.mu.Lock()
	s.queue = append(s.queue, r)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) next() (result.Result[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return result.Result[T]{}, false
	}
	r := s.queue[0]
	s.queue[0] = result.Result[T]{}
	s.queue = s.queue[1:]
	return r, true
}

// Subscribe registers an observer for scope until ctx is done.
func (h *Hub[T]) Subscribe(ctx context.Context, scope domain.Scope) *Subscription[T] {
	sub := &Subscription[T]{
		scope:  scope,
		signal: make(chan struct{}, 1),
		out:    make(chan result.Result[T]),
	}

	h.mu.Lock()
	set, ok := h.subs[scope]
	if !ok {
		set = make(map[*Subscription[T]]struct{})
		h.subs[scope] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	go h.pump(ctx, sub)
	return sub
}

func (h *Hub[T]) pump(ctx context.Context, sub *Subscription[T]) {
	defer func() {
		h.remove(sub)
		close(sub.out)
	}()

	for {
		r, ok := sub.next()
		if !ok {
			select {
			case <-sub.signal:
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case sub.out <- r:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub[T]) remove(sub *Subscription[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[sub.scope]
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.scope)
	}
}

// Publish queues r for every current subscriber of scope. Success and Empty
// payloads become the scope's last known value.
func (h *Hub[T]) Publish(scope domain.Scope, r result.Result[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r.IsSuccess() || r.IsEmpty() {
		if p, ok := r.Payload(); ok {
			h.last[scope] = p
		}
	}
	// Deliver only appends, so holding mu keeps concurrent publishers ordered.
	for sub := range h.subs[scope] {
		sub.Deliver(r)
	}
}

// Remember stores p as the last known value without emitting anything.
func (h *Hub[T]) Remember(scope domain.Scope, p T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last[scope] = p
}

// Last returns the last Success or Empty payload published for scope.
func (h *Hub[T]) Last(scope domain.Scope) (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.last[scope]
	return p, ok
}

// subscribers reports how many observers are attached to scope.
func (h *Hub[T]) subscribers(scope domain.Scope) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[scope])
}
