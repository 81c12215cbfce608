package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"vibroscope/internal/config"
	"vibroscope/internal/model"
)

type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveAlert(ctx context.Context, event model.AlertEvent) error
	SaveReport(ctx context.Context, summary model.Summary) error
	RecentAlerts(ctx context.Context, limit int) ([]model.AlertEvent, error)
}

// NewStore opens the configured driver. A disabled storage section yields
// a nil Store and no error.
func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) recentAlerts(ctx context.Context, query string, limit int) ([]model.AlertEvent, error) {
	if b.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := b.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AlertEvent
	for rows.Next() {
		var (
			ev   model.AlertEvent
			kind string
			seq  int64
			ts   any
		)
		if err := rows.Scan(&ev.ID, &kind, &ev.StreamID, &ev.Region.X, &ev.Region.Y,
			&ev.Metric, &ev.Value, &ev.Threshold, &seq, &ts); err != nil {
			return nil, err
		}
		ev.Kind = model.AlertKind(kind)
		ev.Seq = uint64(seq)
		if ev.Timestamp, err = scanTime(ts); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// scanTime accepts the native time values of pgx and the text form sqlite
// falls back to.
func scanTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case []byte:
		return parseTimeText(string(t))
	case string:
		return parseTimeText(t)
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
}

func parseTimeText(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func reportTime(summary model.Summary) time.Time {
	if summary.Timestamp.IsZero() {
		return nowUTC()
	}
	return summary.Timestamp.UTC()
}
