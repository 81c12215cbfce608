package engine

import (
	"time"

	"github.com/google/uuid"

	"vibroscope/internal/model"
)

type AlertState uint8

const (
	StateQuiet AlertState = iota
	StateElevated
	StateAlerting
)

func (s AlertState) String() string {
	switch s {
	case StateElevated:
		return "elevated"
	case StateAlerting:
		return "alerting"
	default:
		return "quiet"
	}
}

// StatsView is the read side of the statistics engine the evaluator needs.
type StatsView interface {
	Len() int
	Range(fn func(idx int, st model.PixelStatistic))
}

type regionState struct {
	state  AlertState
	streak int
	calm   int
	silent bool // raise was suppressed by the cooldown
}

// AlertEvaluator runs one Quiet/Elevated/Alerting machine per region.
// Entering Alerting needs DwellTicks consecutive ticks above the
// threshold; leaving it needs ReleaseTicks consecutive ticks at or below the
// release level. Masking an alerting region clears it.
type AlertEvaluator struct {
	streamID string
	states   []regionState
	cooldown *Cooldown
	tick     uint64
	newID    func() string
}

func NewAlertEvaluator(streamID string) *AlertEvaluator {
	return &AlertEvaluator{streamID: streamID, newID: uuid.NewString}
}

func (a *AlertEvaluator) Evaluate(stats StatsView, p *Profile, seq uint64, ts time.Time) []model.AlertEvent {
	if n := stats.Len(); len(a.states) != n {
		a.states = make([]regionState, n)
		a.cooldown = NewCooldown(n)
	}
	a.tick++
	var events []model.AlertEvent
	release := p.ReleaseLevel()
	stats.Range(func(i int, st model.PixelStatistic) {
		if i >= len(a.states) {
			return
		}
		rs := &a.states[i]
		value := metricValue(st, p.Metric)
		if p.Mask.Masked(st.Region, p.RegionSize) {
			if rs.state == StateAlerting && !rs.silent {
				events = append(events, a.event(model.AlertCleared, st, value, p, seq, ts))
			}
			*rs = regionState{}
			return
		}
		above := value > p.AlertThreshold
		switch rs.state {
		case StateQuiet:
			if !above {
				return
			}
			rs.state, rs.streak = StateElevated, 1
			if rs.streak >= p.DwellTicks {
				a.raise(&events, rs, i, st, value, p, seq, ts)
			}
		case StateElevated:
			if !above {
				*rs = regionState{}
				return
			}
			rs.streak++
			if rs.streak >= p.DwellTicks {
				a.raise(&events, rs, i, st, value, p, seq, ts)
			}
		case StateAlerting:
			if value <= release {
				rs.calm++
				if rs.calm >= p.ReleaseTicks {
					silent := rs.silent
					*rs = regionState{}
					if !silent {
						events = append(events, a.event(model.AlertCleared, st, value, p, seq, ts))
					}
				}
				return
			}
			rs.calm = 0
		}
	})
	return events
}

func (a *AlertEvaluator) raise(events *[]model.AlertEvent, rs *regionState, idx int, st model.PixelStatistic, value float64, p *Profile, seq uint64, ts time.Time) {
	rs.state, rs.calm = StateAlerting, 0
	if !a.cooldown.Allow(idx, a.tick, p.CooldownTicks) {
		rs.silent = true
		return
	}
	*events = append(*events, a.event(model.AlertRaised, st, value, p, seq, ts))
}

func (a *AlertEvaluator) event(kind model.AlertKind, st model.PixelStatistic, value float64, p *Profile, seq uint64, ts time.Time) model.AlertEvent {
	return model.AlertEvent{
		ID:        a.newID(),
		Kind:      kind,
		StreamID:  a.streamID,
		Region:    st.Region,
		Metric:    string(p.Metric),
		Value:     value,
		Threshold: p.AlertThreshold,
		Seq:       seq,
		Timestamp: ts,
	}
}

// State returns the machine state of region idx.
func (a *AlertEvaluator) State(idx int) AlertState {
	if idx < 0 || idx >= len(a.states) {
		return StateQuiet
	}
	return a.states[idx].state
}

func (a *AlertEvaluator) Alerting() int {
	n := 0
	for _, rs := range a.states {
		if rs.state == StateAlerting {
			n++
		}
	}
	return n
}

func (a *AlertEvaluator) Reset() {
	a.states = nil
	a.cooldown = nil
	a.tick = 0
}

func metricValue(st model.PixelStatistic, metric Metric) float64 {
	switch metric {
	case MetricCount:
		return st.Count
	case MetricVariance:
		return st.Variance
	default:
		return st.Mean
	}
}
