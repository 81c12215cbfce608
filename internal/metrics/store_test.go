package metrics

import (
	"testing"

	"vibroscope/internal/model"
)

func TestStoreLatestAndHistory(t *testing.T) {
	s := NewStore(2)
	if _, ok := s.Latest(); ok {
		t.Fatalf("empty store reported a summary")
	}
	for seq := uint64(1); seq <= 3; seq++ {
		s.Update(model.Summary{Seq: seq})
	}
	latest, ok := s.Latest()
	if !ok || latest.Seq != 3 {
		t.Fatalf("latest %+v", latest)
	}
	h := s.History(0)
	if len(h) != 2 || h[0].Seq != 2 || h[1].Seq != 3 {
		t.Fatalf("history %+v", h)
	}
	s.Clear()
	if _, ok := s.Latest(); ok || len(s.History(0)) != 0 {
		t.Fatalf("clear kept state")
	}
}
