package ingest

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vibroscope/internal/config"
)

func writePNG(t *testing.T, path string, value uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 6, 4))
	for i := range img.Pix {
		img.Pix[i] = value
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestReplayDirectory(t *testing.T) {
	dir := t.TempDir()
	for i := 2; i >= 0; i-- {
		writePNG(t, filepath.Join(dir, fmt.Sprintf("frame_%03d.png", i)), uint8(10*i))
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	files, err := ListImages(dir)
	if err != nil || len(files) != 3 || filepath.Base(files[0]) != "frame_000.png" {
		t.Fatalf("list: %v %v", files, err)
	}

	c := newCollector()
	dc := config.DirectoryConfig{Path: dir, Interval: time.Millisecond, Grayscale: true}
	if err := ReplayDirectory(context.Background(), dc, c, nil); err != nil {
		t.Fatalf("replay: %v", err)
	}
	got := c.snapshot()
	if len(got) != 3 {
		t.Fatalf("replayed %d frames", len(got))
	}
	for i, f := range got {
		if f.Seq != uint64(i+1) || f.Channels != 1 || f.Pix[0] != uint8(10*i) {
			t.Fatalf("frame %d: seq=%d channels=%d pix0=%d", i, f.Seq, f.Channels, f.Pix[0])
		}
	}
}

func TestReplayDirectoryEmpty(t *testing.T) {
	dc := config.DirectoryConfig{Path: t.TempDir(), Interval: time.Millisecond}
	if err := ReplayDirectory(context.Background(), dc, newCollector(), nil); err == nil {
		t.Fatalf("empty directory accepted")
	}
}
