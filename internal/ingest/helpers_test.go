package ingest

import (
	"sync"
	"testing"
	"time"

	"vibroscope/internal/model"
)

type collector struct {
	mu     sync.Mutex
	frames []model.Frame
	refuse bool
	notify chan struct{}
}

func newCollector() *collector {
	return &collector{notify: make(chan struct{}, 64)}
}

func (c *collector) Submit(f model.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refuse {
		return false
	}
	c.frames = append(c.frames, f)
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

func (c *collector) snapshot() []model.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Frame(nil), c.frames...)
}

func (c *collector) waitFor(t *testing.T, n int) []model.Frame {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		select {
		case <-c.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d frames, have %d", n, len(c.snapshot()))
		}
	}
}

func testFrame(seq uint64, w, h, channels int) model.Frame {
	pix := make([]uint8, w*h*channels)
	for i := range pix {
		pix[i] = uint8(int(seq) + i)
	}
	return model.Frame{
		Seq:       seq,
		Timestamp: time.Date(2026, 2, 3, 4, 5, 6, int(seq)*1000, time.UTC),
		Width:     w,
		Height:    h,
		Channels:  channels,
		Pix:       pix,
	}
}
