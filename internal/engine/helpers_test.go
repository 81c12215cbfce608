package engine

import (
	"testing"
	"time"

	"vibroscope/internal/config"
	"vibroscope/internal/model"
)

var testEpoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func testCalibration() config.CalibrationConfig {
	cal := config.DefaultCalibration()
	cal.WindowSize = 3
	cal.NeighborThreshold = 10
	cal.MinNeighbors = 1
	cal.AlertThreshold = 5
	cal.RegionSize = 10
	cal.StatWindow = 10
	cal.StatMode = "auto"
	cal.Metric = "mean"
	cal.DwellTicks = 3
	cal.ReleaseTicks = 2
	cal.Hysteresis = 0
	cal.CooldownTicks = 0
	return cal
}

func testProfile(t *testing.T, mutate func(*config.CalibrationConfig)) *Profile {
	t.Helper()
	cal := testCalibration()
	if mutate != nil {
		mutate(&cal)
	}
	p, err := NewProfile(cal)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	return p
}

func newEngineForTest(t *testing.T, p *Profile) *Engine {
	t.Helper()
	e, err := NewEngine(p, Options{StreamID: "test", QueueCapacity: 64})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func grayFrame(seq uint64, w, h int, value uint8) model.Frame {
	pix := make([]uint8, w*h)
	for i := range pix {
		pix[i] = value
	}
	return model.Frame{
		Seq:       seq,
		Timestamp: testEpoch.Add(time.Duration(seq) * 40 * time.Millisecond),
		Width:     w,
		Height:    h,
		Channels:  1,
		Pix:       pix,
	}
}

// withBlock returns a copy of f with a size×size block at (x0, y0) raised
// by delta.
func withBlock(f model.Frame, x0, y0, size, delta int) model.Frame {
	pix := make([]uint8, len(f.Pix))
	copy(pix, f.Pix)
	for y := y0; y < y0+size && y < f.Height; y++ {
		for x := x0; x < x0+size && x < f.Width; x++ {
			for c := 0; c < f.Channels; c++ {
				i := (y*f.Width+x)*f.Channels + c
				v := int(pix[i]) + delta
				if v > 255 {
					v = 255
				}
				pix[i] = uint8(v)
			}
		}
	}
	f.Pix = pix
	return f
}

func uniformVibro(seq uint64, w, h int, value uint8, ts time.Time) model.VibroImage {
	pix := make([]uint8, w*h)
	for i := range pix {
		pix[i] = value
	}
	return model.VibroImage{Seq: seq, Timestamp: ts, Width: w, Height: h, Pix: pix}
}
