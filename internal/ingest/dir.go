package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"vibroscope/internal/config"
	"vibroscope/internal/model"
	"vibroscope/internal/normalize"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true}

// ListImages returns the image files of dir in name order.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// StartDirectory replays an image sequence from disk at a fixed interval.
// Sequence numbers keep increasing across loops.
func StartDirectory(ctx context.Context, cfg *config.Manager, out Submitter, logger *slog.Logger) {
	current := cfg.Get().Ingest.Directory
	if !current.Enabled {
		if logger != nil {
			logger.Info("directory ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("directory ingest enabled", "path", current.Path, "loop", current.Loop, "interval", current.Interval)
	}
	go func() {
		_ = ReplayDirectory(ctx, current, out, logger)
	}()
}

// ReplayDirectory runs the directory source on the calling goroutine until
// the sequence ends, ctx is cancelled or the submitter refuses a frame.
func ReplayDirectory(ctx context.Context, dc config.DirectoryConfig, out Submitter, logger *slog.Logger) error {
	channels := 3
	if dc.Grayscale {
		channels = 1
	}
	var seq uint64
	for {
		files, err := ListImages(dc.Path)
		if err != nil {
			if logger != nil {
				logger.Warn("directory list failed", "path", dc.Path, "err", err)
			}
			if !BackoffSleep(ctx, time.Second) {
				return ctx.Err()
			}
			continue
		}
		if len(files) == 0 {
			return fmt.Errorf("no images in %s", dc.Path)
		}
		for _, path := range files {
			seq++
			frame, err := readImageFrame(path, channels, seq)
			if err != nil {
				if logger != nil {
					logger.Warn("directory frame skipped", "path", path, "err", err)
				}
				continue
			}
			if !submit(out, frame, "directory", logger) {
				return nil
			}
			if !BackoffSleep(ctx, dc.Interval) {
				return ctx.Err()
			}
		}
		if !dc.Loop {
			if logger != nil {
				logger.Info("directory sequence finished", "path", dc.Path, "frames", seq)
			}
			return nil
		}
	}
}

func readImageFrame(path string, channels int, seq uint64) (model.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Frame{}, err
	}
	defer f.Close()
	return normalize.Decode(f, channels, seq, time.Now())
}
