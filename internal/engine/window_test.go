package engine

import (
	"errors"
	"testing"

	"vibroscope/internal/model"
)

func TestWindowBound(t *testing.T) {
	w := NewFrameWindow(3)
	for i := 1; i <= 10; i++ {
		evicted, ok, err := w.Push(grayFrame(uint64(i), 4, 4, 0))
		if err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
		want := i
		if want > 3 {
			want = 3
		}
		if w.Len() != want {
			t.Fatalf("after %d pushes len=%d want %d", i, w.Len(), want)
		}
		if i <= 3 && ok {
			t.Fatalf("unexpected eviction at push %d", i)
		}
		if i > 3 && (!ok || evicted.Seq != uint64(i-3)) {
			t.Fatalf("push %d evicted seq %d ok=%v, want %d", i, evicted.Seq, ok, i-3)
		}
	}
	snap := w.Snapshot(nil)
	if len(snap) != 3 || snap[0].Seq != 8 || snap[2].Seq != 10 {
		t.Fatalf("snapshot order: %+v", seqs(snap))
	}
}

func TestWindowRejectsOutOfOrder(t *testing.T) {
	w := NewFrameWindow(3)
	if _, _, err := w.Push(grayFrame(5, 4, 4, 0)); err != nil {
		t.Fatalf("push: %v", err)
	}
	for _, seq := range []uint64{5, 4} {
		if _, _, err := w.Push(grayFrame(seq, 4, 4, 0)); !errors.Is(err, ErrOutOfOrderFrame) {
			t.Fatalf("seq %d: expected ErrOutOfOrderFrame, got %v", seq, err)
		}
	}
	if w.Len() != 1 || w.LastSeq() != 5 {
		t.Fatalf("rejected frames changed the window: len=%d last=%d", w.Len(), w.LastSeq())
	}
	w.Reset()
	if _, _, err := w.Push(grayFrame(1, 4, 4, 0)); err != nil {
		t.Fatalf("push after reset: %v", err)
	}
}

func TestWindowSnapshotDoesNotAllocate(t *testing.T) {
	w := NewFrameWindow(4)
	for i := 1; i <= 6; i++ {
		_, _, _ = w.Push(grayFrame(uint64(i), 2, 2, 0))
	}
	dst := make([]model.Frame, 0, 4)
	allocs := testing.AllocsPerRun(100, func() {
		dst = w.Snapshot(dst)
	})
	if allocs != 0 {
		t.Fatalf("snapshot allocated %.1f times per run", allocs)
	}
}

func seqs(frames []model.Frame) []uint64 {
	out := make([]uint64, len(frames))
	for i, f := range frames {
		out[i] = f.Seq
	}
	return out
}
