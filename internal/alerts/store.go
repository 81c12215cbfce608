package alerts

import (
	"sync"
	"time"

	"vibroscope/internal/model"
)

// Store keeps the most recent alert events in arrival order.
type Store struct {
	mu    sync.RWMutex
	buf   []model.AlertEvent
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit}
}

func (s *Store) Add(events ...model.AlertEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		if len(s.buf) < s.limit {
			s.buf = append(s.buf, ev)
			continue
		}
		copy(s.buf, s.buf[1:])
		s.buf[len(s.buf)-1] = ev
	}
}

// List returns the newest limit events, oldest first. limit <= 0 means all.
func (s *Store) List(limit int) []model.AlertEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]model.AlertEvent, limit)
	copy(out, s.buf[len(s.buf)-limit:])
	return out
}

func (s *Store) Since(ts time.Time) []model.AlertEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AlertEvent, 0)
	for _, ev := range s.buf {
		if !ev.Timestamp.Before(ts) {
			out = append(out, ev)
		}
	}
	return out
}

// Open returns the regions whose latest event is a raise.
func (s *Store) Open() []model.AlertEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := make(map[model.RegionID]int)
	for i, ev := range s.buf {
		latest[ev.Region] = i
	}
	out := make([]model.AlertEvent, 0)
	for i, ev := range s.buf {
		if latest[ev.Region] == i && ev.Kind == model.AlertRaised {
			out = append(out, ev)
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buf)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
}
