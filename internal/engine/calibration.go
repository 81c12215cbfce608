package engine

import (
	"fmt"
	"math"
	"strings"
	"time"

	"vibroscope/internal/config"
)

type StatMode string

const (
	StatModeAuto  StatMode = "auto"
	StatModeExact StatMode = "exact"
	StatModeDecay StatMode = "decay"
)

type Pooling string

const (
	PoolingMean Pooling = "mean"
	PoolingMax  Pooling = "max"
)

type Metric string

const (
	MetricCount    Metric = "count"
	MetricMean     Metric = "mean"
	MetricVariance Metric = "variance"
)

// Profile is a validated calibration. It is never mutated after NewProfile
// returns; recalibration builds a new Profile.
type Profile struct {
	WindowSize         int
	Stride             int
	NeighborThreshold  float64
	MinNeighbors       int
	AlertThreshold     float64
	RegionSize         int
	StatWindow         int
	StatWindowDuration time.Duration
	StatMode           StatMode
	Pooling            Pooling
	Metric             Metric
	DwellTicks         int
	ReleaseTicks       int
	Hysteresis         float64
	CooldownTicks      int
	Mask               *RegionMask
}

func NewProfile(cfg config.CalibrationConfig) (*Profile, error) {
	p := &Profile{
		WindowSize:         cfg.WindowSize,
		Stride:             cfg.Stride,
		NeighborThreshold:  cfg.NeighborThreshold,
		MinNeighbors:       cfg.MinNeighbors,
		AlertThreshold:     cfg.AlertThreshold,
		RegionSize:         cfg.RegionSize,
		StatWindow:         cfg.StatWindow,
		StatWindowDuration: cfg.StatWindowDuration,
		StatMode:           StatMode(strings.ToLower(strings.TrimSpace(cfg.StatMode))),
		Pooling:            Pooling(strings.ToLower(strings.TrimSpace(cfg.Pooling))),
		Metric:             Metric(strings.ToLower(strings.TrimSpace(cfg.Metric))),
		DwellTicks:         cfg.DwellTicks,
		ReleaseTicks:       cfg.ReleaseTicks,
		Hysteresis:         cfg.Hysteresis,
		CooldownTicks:      cfg.CooldownTicks,
	}
	if p.StatMode == "" {
		p.StatMode = StatModeAuto
	}
	if p.Pooling == "" {
		p.Pooling = PoolingMean
	}
	if p.Metric == "" {
		p.Metric = MetricMean
	}

	var violations []string
	if p.WindowSize < 2 {
		violations = append(violations, fmt.Sprintf("window_size < 2 (got %d)", p.WindowSize))
	}
	if p.Stride < 0 || (p.WindowSize >= 2 && p.Stride >= p.WindowSize) {
		violations = append(violations, fmt.Sprintf("stride must be in [0, window_size) (got %d)", p.Stride))
	}
	if !nonNegativeFinite(p.NeighborThreshold) {
		violations = append(violations, fmt.Sprintf("neighbor_threshold must be a finite value >= 0 (got %g)", p.NeighborThreshold))
	}
	if p.MinNeighbors < 1 || p.MinNeighbors > 8 {
		violations = append(violations, fmt.Sprintf("min_neighbors must be in [1, 8] (got %d)", p.MinNeighbors))
	}
	if !nonNegativeFinite(p.AlertThreshold) {
		violations = append(violations, fmt.Sprintf("alert_threshold must be a finite value >= 0 (got %g)", p.AlertThreshold))
	}
	if p.RegionSize < 1 {
		violations = append(violations, fmt.Sprintf("region_size < 1 (got %d)", p.RegionSize))
	}
	if p.StatWindow < 1 {
		violations = append(violations, fmt.Sprintf("stat_window < 1 (got %d)", p.StatWindow))
	}
	if p.StatWindowDuration < 0 {
		violations = append(violations, fmt.Sprintf("stat_window_duration is negative (got %s)", p.StatWindowDuration))
	}
	switch p.StatMode {
	case StatModeAuto, StatModeExact, StatModeDecay:
	default:
		violations = append(violations, fmt.Sprintf("stat_mode %q is not one of auto, exact, decay", p.StatMode))
	}
	switch p.Pooling {
	case PoolingMean, PoolingMax:
	default:
		violations = append(violations, fmt.Sprintf("pooling %q is not one of mean, max", p.Pooling))
	}
	switch p.Metric {
	case MetricCount, MetricMean, MetricVariance:
	default:
		violations = append(violations, fmt.Sprintf("metric %q is not one of count, mean, variance", p.Metric))
	}
	if p.DwellTicks < 1 {
		violations = append(violations, fmt.Sprintf("dwell_ticks < 1 (got %d)", p.DwellTicks))
	}
	if p.ReleaseTicks < 1 {
		violations = append(violations, fmt.Sprintf("release_ticks < 1 (got %d)", p.ReleaseTicks))
	}
	if !(p.Hysteresis >= 0 && p.Hysteresis < 1) {
		violations = append(violations, fmt.Sprintf("hysteresis must be in [0, 1) (got %g)", p.Hysteresis))
	}
	if p.CooldownTicks < 0 {
		violations = append(violations, fmt.Sprintf("cooldown_ticks is negative (got %d)", p.CooldownTicks))
	}
	mask, maskViolations := buildRegionMask(cfg.Masks)
	violations = append(violations, maskViolations...)
	if len(violations) > 0 {
		return nil, &CalibrationError{Violations: violations}
	}
	p.Mask = mask
	return p, nil
}

// Mode resolves auto to exact for aggregated regions and to decay at full
// per-pixel resolution.
func (p *Profile) Mode() StatMode {
	if p.StatMode != StatModeAuto {
		return p.StatMode
	}
	if p.RegionSize > 1 {
		return StatModeExact
	}
	return StatModeDecay
}

// ReleaseLevel is the metric level at or below which an alerting region
// counts toward release.
func (p *Profile) ReleaseLevel() float64 {
	return p.AlertThreshold * (1 - p.Hysteresis)
}

// nonNegativeFinite is false for NaN, infinities and negatives.
func nonNegativeFinite(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}

// sameStatistics reports whether statistics and evaluator state built for
// o remain valid under p.
func (p *Profile) sameStatistics(o *Profile) bool {
	if p == nil || o == nil {
		return false
	}
	return p.RegionSize == o.RegionSize &&
		p.Mode() == o.Mode() &&
		p.StatWindow == o.StatWindow &&
		p.StatWindowDuration == o.StatWindowDuration &&
		p.AlertThreshold == o.AlertThreshold &&
		p.Pooling == o.Pooling
}
