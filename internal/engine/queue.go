package engine

import (
	"sync"
	"sync/atomic"

	"vibroscope/internal/model"
)

// FrameQueue is a bounded hand-off between one producer and the engine
// worker. When full, Submit discards the oldest queued frame so capture
// never blocks on compute.
type FrameQueue struct {
	mu      sync.Mutex
	ch      chan model.Frame
	dropped atomic.Uint64
}

func NewFrameQueue(capacity int) *FrameQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &FrameQueue{ch: make(chan model.Frame, capacity)}
}

// Submit enqueues frame and returns the oldest frame it had to discard.
func (q *FrameQueue) Submit(frame model.Frame) (model.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var (
		evicted model.Frame
		dropped bool
	)
	for {
		select {
		case q.ch <- frame:
			return evicted, dropped
		default:
		}
		select {
		case old := <-q.ch:
			q.dropped.Add(1)
			evicted, dropped = old, true
		default:
		}
	}
}

func (q *FrameQueue) C() <-chan model.Frame {
	return q.ch
}

func (q *FrameQueue) Len() int {
	return len(q.ch)
}

func (q *FrameQueue) Cap() int {
	return cap(q.ch)
}

func (q *FrameQueue) Dropped() uint64 {
	return q.dropped.Load()
}

// Drain discards every queued frame without counting them as dropped.
func (q *FrameQueue) Drain() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}
