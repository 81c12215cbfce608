// Package report periodically digests the statistics grid into a Summary
// for the API and storage.
package report

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"vibroscope/internal/config"
	"vibroscope/internal/engine"
	"vibroscope/internal/metrics"
	"vibroscope/internal/model"
	"vibroscope/internal/storage"
)

// Source is the engine surface the reporter reads. All methods must be
// safe to call while the engine worker is running.
type Source interface {
	Statistics() *engine.StatisticsEngine
	Activity() []int
	Stats() model.Counters
	Alerting() int
	StreamID() string
	LastSeq() uint64
}

type Reporter struct {
	src     Source
	cfg     *config.Manager
	metrics *metrics.Store
	store   storage.Store
	logger  *slog.Logger
	now     func() time.Time
}

func NewReporter(src Source, cfg *config.Manager, m *metrics.Store, store storage.Store, logger *slog.Logger) *Reporter {
	return &Reporter{src: src, cfg: cfg, metrics: m, store: store, logger: logger, now: time.Now}
}

// Summarize builds a summary from the current statistics without blocking
// accumulation for longer than one read-locked pass.
func (r *Reporter) Summarize() model.Summary {
	rc := r.cfg.Get().Report
	summary := model.Summary{
		Timestamp: r.now().UTC(),
		StreamID:  r.src.StreamID(),
		Seq:       r.src.LastSeq(),
		Alerting:  r.src.Alerting(),
		Counters:  r.src.Stats(),
	}
	var (
		stats []model.PixelStatistic
		means []float64
	)
	if s := r.src.Statistics(); s != nil {
		s.Range(func(_ int, st model.PixelStatistic) {
			stats = append(stats, st)
			means = append(means, st.Mean)
		})
	}
	summary.Regions = len(stats)
	if len(means) > 0 {
		summary.MeanOfMeans = stat.Mean(means, nil)
		if len(means) > 1 {
			summary.StdDev = stat.StdDev(means, nil)
		}
		sort.Float64s(means)
		summary.P95 = stat.Quantile(0.95, stat.Empirical, means, nil)
	}
	summary.Dispersion = Dispersion(r.src.Activity(), rc.Normalization)
	summary.Top = topRegions(stats, rc.TopN)
	return summary
}

// Dispersion is the standard deviation of per-tick active pixel counts
// divided by normalization.
func Dispersion(activity []int, normalization float64) float64 {
	if len(activity) < 2 {
		return 0
	}
	if normalization <= 0 {
		normalization = 1
	}
	xs := make([]float64, len(activity))
	for i, a := range activity {
		xs[i] = float64(a)
	}
	return stat.StdDev(xs, nil) / normalization
}

func topRegions(stats []model.PixelStatistic, n int) []model.PixelStatistic {
	if n <= 0 || len(stats) == 0 {
		return nil
	}
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Mean > stats[j].Mean })
	if len(stats) > n {
		stats = stats[:n]
	}
	out := make([]model.PixelStatistic, len(stats))
	copy(out, stats)
	return out
}

// Report computes one summary, publishes it and persists it when enabled.
func (r *Reporter) Report(ctx context.Context) model.Summary {
	summary := r.Summarize()
	if r.metrics != nil {
		r.metrics.Update(summary)
	}
	if r.store != nil && r.cfg.Get().Report.Persist {
		if err := r.store.SaveReport(ctx, summary); err != nil && r.logger != nil {
			r.logger.Warn("report persist failed", "stream_id", summary.StreamID, "err", err)
		}
	}
	if r.logger != nil {
		r.logger.Debug("statistics report",
			"stream_id", summary.StreamID,
			"seq", summary.Seq,
			"regions", summary.Regions,
			"mean_of_means", summary.MeanOfMeans,
			"p95", summary.P95,
			"alerting", summary.Alerting,
		)
	}
	return summary
}

// Run reports on every interval tick until ctx is cancelled. The interval
// is re-read after each report so config reloads take effect.
func (r *Reporter) Run(ctx context.Context) error {
	for {
		interval := r.cfg.Get().Report.Interval
		if interval <= 0 {
			interval = 5 * time.Second
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		r.Report(ctx)
	}
}
