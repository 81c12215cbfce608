package alerts

import (
	"testing"
	"time"

	"vibroscope/internal/model"
)

func event(seq uint64, x int, kind model.AlertKind, ts time.Time) model.AlertEvent {
	return model.AlertEvent{ID: "id", Kind: kind, Region: model.RegionID{X: x}, Seq: seq, Timestamp: ts}
}

func TestStoreBounded(t *testing.T) {
	s := NewStore(3)
	now := time.Now()
	for i := 1; i <= 5; i++ {
		s.Add(event(uint64(i), i, model.AlertRaised, now))
	}
	got := s.List(0)
	if len(got) != 3 || got[0].Seq != 3 || got[2].Seq != 5 {
		t.Fatalf("unexpected contents %+v", got)
	}
	if last := s.List(1); len(last) != 1 || last[0].Seq != 5 {
		t.Fatalf("List(1) = %+v", last)
	}
}

func TestStoreSinceAndOpen(t *testing.T) {
	s := NewStore(10)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Add(
		event(1, 0, model.AlertRaised, base),
		event(2, 1, model.AlertRaised, base.Add(time.Second)),
		event(3, 0, model.AlertCleared, base.Add(2*time.Second)),
	)
	if got := s.Since(base.Add(time.Second)); len(got) != 2 {
		t.Fatalf("since returned %d events", len(got))
	}
	open := s.Open()
	if len(open) != 1 || open[0].Region.X != 1 {
		t.Fatalf("open alerts %+v", open)
	}
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("clear kept %d events", s.Len())
	}
}
