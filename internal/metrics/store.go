package metrics

import (
	"sync"

	"vibroscope/internal/model"
)

// Store keeps the latest statistics summary and a bounded history of
// previous ones.
type Store struct {
	mu      sync.RWMutex
	latest  model.Summary
	set     bool
	history []model.Summary
	limit   int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 100
	}
	return &Store{limit: limit}
}

func (s *Store) Update(summary model.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest, s.set = summary, true
	if len(s.history) >= s.limit {
		copy(s.history, s.history[1:])
		s.history = s.history[:len(s.history)-1]
	}
	s.history = append(s.history, summary)
}

func (s *Store) Latest() (model.Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.set
}

// History returns up to limit summaries, oldest first.
func (s *Store) History(limit int) []model.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]model.Summary, limit)
	copy(out, s.history[len(s.history)-limit:])
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest, s.set = model.Summary{}, false
	s.history = nil
}
