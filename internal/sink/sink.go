// Package sink delivers alert events produced by the engine to logs,
// in-memory history, storage and Kafka.
package sink

import (
	"context"
	"errors"
	"log/slog"

	"vibroscope/internal/alerts"
	"vibroscope/internal/model"
	"vibroscope/internal/storage"
)

// Sink matches engine.Sink.
type Sink interface {
	Deliver(ctx context.Context, events []model.AlertEvent) error
}

// Multi fans events out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Deliver(ctx context.Context, events []model.AlertEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Deliver(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Deliver(_ context.Context, events []model.AlertEvent) error {
	if l.logger == nil {
		return nil
	}
	for _, ev := range events {
		l.logger.Info("alert event",
			"id", ev.ID,
			"kind", string(ev.Kind),
			"stream_id", ev.StreamID,
			"region_x", ev.Region.X,
			"region_y", ev.Region.Y,
			"value", ev.Value,
			"frame_seq", ev.Seq,
		)
	}
	return nil
}

// Memory records events into the recent-alerts store served by the API.
type Memory struct {
	store *alerts.Store
}

func NewMemory(store *alerts.Store) *Memory {
	return &Memory{store: store}
}

func (m *Memory) Deliver(_ context.Context, events []model.AlertEvent) error {
	m.store.Add(events...)
	return nil
}

// Storage persists every event; it stops at the first failure.
type Storage struct {
	store storage.Store
}

func NewStorage(store storage.Store) *Storage {
	return &Storage{store: store}
}

func (s *Storage) Deliver(ctx context.Context, events []model.AlertEvent) error {
	for _, ev := range events {
		if err := s.store.SaveAlert(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
