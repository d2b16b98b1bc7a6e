// Package queue serializes logical requests that share a connection.
//
// A Queue is owned by the caller and shared by every request issued on that
// connection. The head entry is the one in flight; entries behind it wait
// until the head reaches a terminal outcome and calls Advance. A head whose
// request keeps retrying occupies the slot for its whole retry sequence.
package queue

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gaborage/requeue/internal/tracking"
)

// Entry is a pending request. Dispatch starts it and must not block; the
// entry reports completion by calling Advance on the queue it belongs to.
type Entry interface {
	Dispatch()
}

// Queue is a FIFO of entries with at most one entry in flight.
// The zero value is ready to use and reports its depth under the name
// "default".
type Queue struct {
	name string

	mu      sync.Mutex
	entries []Entry
}

// Option configures a Queue
type Option func(*Queue)

// WithName sets the name the queue depth metric is reported under.
func WithName(name string) Option {
	return func(q *Queue) {
		q.name = name
	}
}

var sequence atomic.Int64

// New returns an empty queue. Without WithName it is named "queue-<n>",
// unique within the process, so the depth of each connection stays apart.
func New(opts ...Option) *Queue {
	q := &Queue{}
	for _, opt := range opts {
		opt(q)
	}
	if q.name == "" {
		q.name = "queue-" + strconv.FormatInt(sequence.Add(1), 10)
	}
	return q
}

// Name returns the name the queue reports its depth under.
func (q *Queue) Name() string {
	if q.name == "" {
		return "default"
	}
	return q.name
}

// Enqueue appends e and dispatches it immediately when it is the only entry.
func (q *Queue) Enqueue(e Entry) {
	q.mu.Lock()
	q.entries = append(q.entries, e)
	first := len(q.entries) == 1
	q.mu.Unlock()

	tracking.QueueDepthChanged(q.Name(), 1)
	if first {
		e.Dispatch()
	}
}

// Advance removes the head entry and dispatches the new head, if any. It is
// called exactly once per entry, on terminal delivery. Advancing an empty
// queue is a no-op.
func (q *Queue) Advance() {
	q.mu.Lock()
	if len(q.entries) == 0 {
		q.mu.Unlock()
		return
	}
	q.entries[0] = nil
	q.entries = q.entries[1:]
	var next Entry
	if len(q.entries) > 0 {
		next = q.entries[0]
	}
	q.mu.Unlock()

	tracking.QueueDepthChanged(q.Name(), -1)
	if next != nil {
		next.Dispatch()
	}
}

// Len returns the number of entries, including the one in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
