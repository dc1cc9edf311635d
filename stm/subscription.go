package stm

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rickb777/date/v2/timespan"
)

// Change is what a subscriber receives after a commit or swap mutates
// the cell it watches: the final committed value, the version stamp it
// was committed under, and the wall-clock window of the commit.
type Change[T any] struct {
	Value   T
	Version uint64
	Span    timespan.TimeSpan
}

// Subscription identifies one registered callback. Unsubscribing is
// idempotent.
type Subscription struct {
	id     string
	cancel func(string)
}

func (s Subscription) Unsubscribe() {
	if s.cancel != nil {
		s.cancel(s.id)
	}
}

// subscribers is an ordered set of change callbacks keyed by
// subscription id. Publication happens on the committing goroutine,
// after all commit locks are released, so callbacks may freely start
// new transactions.
type subscribers[T any] struct {
	mu    sync.RWMutex
	order []string
	subs  map[string]func(Change[T])
}

func newSubscribers[T any]() *subscribers[T] {
	return &subscribers[T]{subs: make(map[string]func(Change[T]))}
}

func (s *subscribers[T]) add(cb func(Change[T])) Subscription {
	id := uuid.New().String()
	s.mu.Lock()
	s.subs[id] = cb
	s.order = append(s.order, id)
	s.mu.Unlock()
	return Subscription{id: id, cancel: s.remove}
}

func (s *subscribers[T]) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return
	}
	delete(s.subs, id)
	for i, sid := range s.order {
		if sid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// publish invokes every callback exactly once, in subscription order.
func (s *subscribers[T]) publish(chg Change[T]) {
	s.mu.RLock()
	cbs := make([]func(Change[T]), 0, len(s.order))
	for _, id := range s.order {
		cbs = append(cbs, s.subs[id])
	}
	s.mu.RUnlock()

	for _, cb := range cbs {
		cb(chg)
	}
}

const spanEpsilon = time.Millisecond

// spanAround bounds a single instant the way a commit window bounds a
// commit: swaps are point events, subscribers still get a TimeSpan.
func spanAround(t time.Time) timespan.TimeSpan {
	return timespan.BetweenTimes(t.Add(-spanEpsilon), t.Add(spanEpsilon))
}
