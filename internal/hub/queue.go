package hub

import "sync"

// Queue is an unbounded FIFO of outbound payloads shared by every connection.
// Each item is handed to exactly one consumer.
type Queue struct {
	mu    sync.Mutex
	items [][]byte
	ready chan struct{}
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
	}
}

// Push appends a payload
func (q *Queue) Push(payload []byte) {
	q.mu.Lock()
	q.items = append(q.items, payload)
	q.mu.Unlock()
	q.signal()
}

// PushFront puts back a payload that could not be written so that it is the
// next one delivered
func (q *Queue) PushFront(payload []byte) {
	q.mu.Lock()
	q.items = append([][]byte{payload}, q.items...)
	q.mu.Unlock()
	q.signal()
}

// Pop removes the oldest payload without blocking
func (q *Queue) Pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	payload := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// another consumer may be parked on Ready
		q.signal()
	}
	return payload, true
}

// Ready fires while items are waiting
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of queued payloads
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// signal wakes one waiting consumer (non-blocking)
func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
