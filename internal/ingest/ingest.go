package ingest

import (
	"context"
	"log/slog"
	"time"

	"vibroscope/internal/model"
)

// Submitter accepts decoded frames without blocking. engine.Engine
// satisfies it.
type Submitter interface {
	Submit(frame model.Frame) bool
}

func submit(out Submitter, frame model.Frame, source string, logger *slog.Logger) bool {
	if out.Submit(frame) {
		return true
	}
	if logger != nil {
		logger.Debug("frame refused, engine closed", "source", source, "seq", frame.Seq)
	}
	return false
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
