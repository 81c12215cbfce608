package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"vibroscope/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:vibroscope.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			stream_id TEXT NOT NULL,
			region_x INTEGER NOT NULL,
			region_y INTEGER NOT NULL,
			metric TEXT NOT NULL,
			value REAL NOT NULL,
			threshold REAL NOT NULL,
			frame_seq INTEGER NOT NULL,
			ts DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_region ON alerts(stream_id, region_x, region_y)`,
		`CREATE TABLE IF NOT EXISTS reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts DATETIME NOT NULL,
			stream_id TEXT NOT NULL,
			frame_seq INTEGER NOT NULL,
			regions INTEGER NOT NULL,
			mean_of_means REAL NOT NULL,
			stddev REAL NOT NULL,
			p95 REAL NOT NULL,
			dispersion REAL NOT NULL,
			alerting INTEGER NOT NULL,
			top_json TEXT NOT NULL,
			counters_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_stream_ts ON reports(stream_id, ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveAlert(ctx context.Context, ev model.AlertEvent) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (event_id, kind, stream_id, region_x, region_y, metric, value, threshold, frame_seq, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		string(ev.Kind),
		ev.StreamID,
		ev.Region.X,
		ev.Region.Y,
		ev.Metric,
		ev.Value,
		ev.Threshold,
		int64(ev.Seq),
		ev.Timestamp.UTC(),
	)
	return err
}

func (s *sqliteStore) SaveReport(ctx context.Context, summary model.Summary) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (ts, stream_id, frame_seq, regions, mean_of_means, stddev, p95, dispersion, alerting, top_json, counters_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reportTime(summary),
		summary.StreamID,
		int64(summary.Seq),
		summary.Regions,
		summary.MeanOfMeans,
		summary.StdDev,
		summary.P95,
		summary.Dispersion,
		summary.Alerting,
		encodeJSON(summary.Top),
		encodeJSON(summary.Counters),
	)
	return err
}

func (s *sqliteStore) RecentAlerts(ctx context.Context, limit int) ([]model.AlertEvent, error) {
	return s.recentAlerts(ctx,
		`SELECT event_id, kind, stream_id, region_x, region_y, metric, value, threshold, frame_seq, ts
		FROM alerts ORDER BY id DESC LIMIT ?`, limit)
}
