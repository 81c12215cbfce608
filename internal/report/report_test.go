package report

import (
	"context"
	"math"
	"testing"
	"time"

	"vibroscope/internal/config"
	"vibroscope/internal/engine"
	"vibroscope/internal/metrics"
	"vibroscope/internal/model"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cal := config.DefaultCalibration()
	cal.RegionSize = 10
	cal.NeighborThreshold = 10
	p, err := engine.NewProfile(cal)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	e, err := engine.NewEngine(p, engine.Options{StreamID: "cam"})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func frame(seq uint64, blockValue uint8) model.Frame {
	pix := make([]uint8, 20*20)
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			pix[y*20+x] = blockValue
		}
	}
	return model.Frame{Seq: seq, Timestamp: time.Unix(int64(seq), 0), Width: 20, Height: 20, Channels: 1, Pix: pix}
}

func TestSummarize(t *testing.T) {
	e := newTestEngine(t)
	for seq, v := range []uint8{0, 40, 0} {
		if _, err := e.Ingest(frame(uint64(seq+1), v)); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}
	cfg := config.DefaultConfig()
	cfg.Report.TopN = 1
	cfg.Report.Normalization = 10
	store := metrics.NewStore(5)
	r := NewReporter(e, config.NewStaticManager(cfg), store, nil, nil)
	s := r.Report(context.Background())

	if s.StreamID != "cam" || s.Seq != 3 || s.Regions != 4 || s.Counters.Ticks != 2 {
		t.Fatalf("summary header %+v", s)
	}
	if len(s.Top) != 1 || s.Top[0].Region != (model.RegionID{}) {
		t.Fatalf("top regions %+v", s.Top)
	}
	if s.MeanOfMeans <= 0 || s.P95 < s.MeanOfMeans {
		t.Fatalf("distribution mean=%v p95=%v", s.MeanOfMeans, s.P95)
	}
	// activity is 100 pixels on tick 1 and 0 on tick 2 (window 3 compares against frame 1).
	if want := math.Sqrt(5000) / 10; math.Abs(s.Dispersion-want) > 1e-9 {
		t.Fatalf("dispersion %v want %v", s.Dispersion, want)
	}
	if latest, ok := store.Latest(); !ok || latest.Seq != 3 {
		t.Fatalf("metrics store not updated")
	}
}

func TestDispersionEdgeCases(t *testing.T) {
	if Dispersion(nil, 10) != 0 || Dispersion([]int{5}, 10) != 0 {
		t.Fatalf("dispersion of fewer than two samples should be zero")
	}
	if got := Dispersion([]int{0, 2}, 0); math.Abs(got-math.Sqrt2) > 1e-12 {
		t.Fatalf("zero normalization should fall back to 1, got %v", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	e := newTestEngine(t)
	cfg := config.DefaultConfig()
	cfg.Report.Interval = time.Millisecond
	store := metrics.NewStore(5)
	r := NewReporter(e, config.NewStaticManager(cfg), store, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := store.Latest(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no report produced")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}
