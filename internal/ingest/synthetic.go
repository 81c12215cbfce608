package ingest

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"vibroscope/internal/config"
	"vibroscope/internal/model"
)

// Synthetic renders a static gradient scene with optional sensor noise and
// a square block whose brightness follows a square wave with a period of
// four frames, so both adjacent frames and frames two apart differ. The same
// seed always yields the same sequence.
type Synthetic struct {
	cfg   config.SyntheticConfig
	rng   *rand.Rand
	seq   uint64
	start time.Time
	base  []uint8
}

func NewSynthetic(cfg config.SyntheticConfig, seed int64) *Synthetic {
	if cfg.Width <= 0 {
		cfg.Width = 160
	}
	if cfg.Height <= 0 {
		cfg.Height = 120
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 40 * time.Millisecond
	}
	base := make([]uint8, cfg.Width*cfg.Height)
	for y := 0; y < cfg.Height; y++ {
		for x := 0; x < cfg.Width; x++ {
			base[y*cfg.Width+x] = uint8(64 + (x*96)/cfg.Width + (y*32)/cfg.Height)
		}
	}
	return &Synthetic{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
		start: time.Unix(0, 0).UTC(),
		base:  base,
	}
}

// Next returns the following frame. Timestamps advance by the configured
// interval from the Unix epoch so replays are reproducible.
func (s *Synthetic) Next() model.Frame {
	s.seq++
	pix := make([]uint8, len(s.base))
	copy(pix, s.base)
	if n := s.cfg.Noise; n > 0 {
		for i := range pix {
			pix[i] = clamp8(int(pix[i]) + s.rng.Intn(2*n+1) - n)
		}
	}
	if s.cfg.BlockSize > 0 && s.cfg.Amplitude != 0 && blockRaised(s.seq) {
		for y := s.cfg.BlockY; y < s.cfg.BlockY+s.cfg.BlockSize && y < s.cfg.Height; y++ {
			for x := s.cfg.BlockX; x < s.cfg.BlockX+s.cfg.BlockSize && x < s.cfg.Width; x++ {
				i := y*s.cfg.Width + x
				pix[i] = clamp8(int(pix[i]) + s.cfg.Amplitude)
			}
		}
	}
	return model.Frame{
		Seq:       s.seq,
		Timestamp: s.start.Add(time.Duration(s.seq) * s.cfg.Interval),
		Width:     s.cfg.Width,
		Height:    s.cfg.Height,
		Channels:  1,
		Pix:       pix,
	}
}

func blockRaised(seq uint64) bool {
	phase := seq % 4
	return phase == 1 || phase == 2
}

func clamp8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// StartSynthetic paces a synthetic scene into out at the configured
// interval. A positive Frames stops the source after that many frames.
func StartSynthetic(ctx context.Context, cfg *config.Manager, out Submitter, logger *slog.Logger) {
	current := cfg.Get().Ingest.Synthetic
	if !current.Enabled {
		if logger != nil {
			logger.Info("synthetic ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("synthetic ingest enabled", "width", current.Width, "height", current.Height, "interval", current.Interval)
	}
	gen := NewSynthetic(current, time.Now().UnixNano())
	gen.start = time.Now().UTC()
	go func() {
		ticker := time.NewTicker(gen.cfg.Interval)
		defer ticker.Stop()
		for sent := 0; current.Frames <= 0 || sent < current.Frames; sent++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if !submit(out, gen.Next(), "synthetic", logger) {
				return
			}
		}
		if logger != nil {
			logger.Info("synthetic sequence finished", "frames", current.Frames)
		}
	}()
}
