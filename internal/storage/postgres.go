package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"vibroscope/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/vibroscope?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			event_id UUID NOT NULL,
			kind TEXT NOT NULL,
			stream_id TEXT NOT NULL,
			region_x INTEGER NOT NULL,
			region_y INTEGER NOT NULL,
			metric TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			threshold DOUBLE PRECISION NOT NULL,
			frame_seq BIGINT NOT NULL,
			ts TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_region ON alerts(stream_id, region_x, region_y)`,
		`CREATE TABLE IF NOT EXISTS reports (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			stream_id TEXT NOT NULL,
			frame_seq BIGINT NOT NULL,
			regions INTEGER NOT NULL,
			mean_of_means DOUBLE PRECISION NOT NULL,
			stddev DOUBLE PRECISION NOT NULL,
			p95 DOUBLE PRECISION NOT NULL,
			dispersion DOUBLE PRECISION NOT NULL,
			alerting INTEGER NOT NULL,
			top_json JSONB NOT NULL,
			counters_json JSONB NOT NULL
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

func (s *postgresStore) SaveAlert(ctx context.Context, ev model.AlertEvent) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (event_id, kind, stream_id, region_x, region_y, metric, value, threshold, frame_seq, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
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

func (s *postgresStore) SaveReport(ctx context.Context, summary model.Summary) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (ts, stream_id, frame_seq, regions, mean_of_means, stddev, p95, dispersion, alerting, top_json, counters_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
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

func (s *postgresStore) RecentAlerts(ctx context.Context, limit int) ([]model.AlertEvent, error) {
	return s.recentAlerts(ctx,
		`SELECT event_id::text, kind, stream_id, region_x, region_y, metric, value, threshold, frame_seq, ts
		FROM alerts ORDER BY id DESC LIMIT $1`, limit)
}
