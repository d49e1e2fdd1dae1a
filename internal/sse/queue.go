package sse

import (
	"sync"

	hub "github.com/beaconhub/beacon/internal"
)

// EventQueue is the producer-facing input queue of a stream: a bounded FIFO
// of events plus an idempotent close signal. Both the producer (on
// completion) and the stream handle's End funnel into the same Close, which
// the pump observes to drive teardown.
type EventQueue struct {
	ch   chan hub.Event
	done chan struct{}
	once sync.Once
}

func newEventQueue(capacity int) *EventQueue {
	return &EventQueue{
		ch:   make(chan hub.Event, capacity),
		done: make(chan struct{}),
	}
}

// Push enqueues an event for the pump. It blocks while the queue is full --
// that suspension is the producer-side backpressure -- and returns
// hub.ErrStreamClosed once the queue has been closed.
func (q *EventQueue) Push(ev hub.Event) error {
	select {
	case <-q.done:
		return hub.ErrStreamClosed
	default:
	}
	select {
	case q.ch <- ev:
		return nil
	case <-q.done:
		return hub.ErrStreamClosed
	}
}

// Close signals end of production. It is idempotent and safe to call from
// any goroutine; events already buffered are still delivered by the pump.
func (q *EventQueue) Close() {
	q.once.Do(func() { close(q.done) })
}

// Done returns a channel closed when the queue is closed. Producers that
// loop on an external source select on it to stop promptly after End.
func (q *EventQueue) Done() <-chan struct{} {
	return q.done
}
