package engine

import (
	"fmt"

	"vibroscope/internal/model"
)

// FrameWindow keeps the most recent frames in a fixed ring. Pushing past
// capacity overwrites the oldest slot.
type FrameWindow struct {
	slots   []model.Frame
	head    int
	size    int
	lastSeq uint64
	started bool
}

func NewFrameWindow(capacity int) *FrameWindow {
	if capacity < 2 {
		capacity = 2
	}
	return &FrameWindow{slots: make([]model.Frame, capacity)}
}

// Push appends frame and returns the evicted oldest frame when the window
// was already full.
func (w *FrameWindow) Push(frame model.Frame) (model.Frame, bool, error) {
	if w.started && frame.Seq <= w.lastSeq {
		return model.Frame{}, false, fmt.Errorf("%w: seq %d after %d", ErrOutOfOrderFrame, frame.Seq, w.lastSeq)
	}
	w.started = true
	w.lastSeq = frame.Seq
	capacity := len(w.slots)
	if w.size < capacity {
		w.slots[(w.head+w.size)%capacity] = frame
		w.size++
		return model.Frame{}, false, nil
	}
	evicted := w.slots[w.head]
	w.slots[w.head] = frame
	w.head = (w.head + 1) % capacity
	return evicted, true, nil
}

// Snapshot appends the buffered frames, oldest first, to dst[:0].
func (w *FrameWindow) Snapshot(dst []model.Frame) []model.Frame {
	dst = dst[:0]
	capacity := len(w.slots)
	for i := 0; i < w.size; i++ {
		dst = append(dst, w.slots[(w.head+i)%capacity])
	}
	return dst
}

func (w *FrameWindow) Newest() (model.Frame, bool) {
	if w.size == 0 {
		return model.Frame{}, false
	}
	return w.slots[(w.head+w.size-1)%len(w.slots)], true
}

func (w *FrameWindow) Len() int {
	return w.size
}

func (w *FrameWindow) Cap() int {
	return len(w.slots)
}

func (w *FrameWindow) LastSeq() uint64 {
	return w.lastSeq
}

// Reset drops every frame and forgets the last sequence number.
func (w *FrameWindow) Reset() {
	for i := range w.slots {
		w.slots[i] = model.Frame{}
	}
	w.head = 0
	w.size = 0
	w.lastSeq = 0
	w.started = false
}
