package session

import (
	"sync"

	"go.viam.com/navtester/services/route"
)

// FeedbackQueue is an unbounded FIFO of feedback events with one producer (the transport's
// callback) and one consumer (the tracking test). The zero value is ready to use.
type FeedbackQueue struct {
	mu     sync.Mutex
	events []route.FeedbackEvent
}

// Push appends an event.
func (q *FeedbackQueue) Push(event route.FeedbackEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, event)
}

// Drain removes and returns every queued event in arrival order.
func (q *FeedbackQueue) Drain() []route.FeedbackEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	events := q.events
	q.events = nil
	return events
}

// Len returns the number of queued events.
func (q *FeedbackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
