package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseYAML(t *testing.T) {
	cfg, err := Parse([]byte(`
stream_id: dock-cam
calibration:
  window_size: 5
  stride: 1
  neighbor_threshold: 20
  stat_window_duration: 2s
  masks:
    - {x: 0, y: 0, width: 10, height: 10}
engine:
  queue_capacity: 16
report:
  interval: 1m
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.StreamID != "dock-cam" || cfg.Calibration.WindowSize != 5 || cfg.Calibration.Stride != 1 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Calibration.StatWindowDuration != 2*time.Second || cfg.Report.Interval != time.Minute {
		t.Fatalf("durations not decoded: %v %v", cfg.Calibration.StatWindowDuration, cfg.Report.Interval)
	}
	if len(cfg.Calibration.Masks) != 1 || cfg.Calibration.Masks[0].Width != 10 {
		t.Fatalf("masks %+v", cfg.Calibration.Masks)
	}
	// untouched fields keep their defaults
	if cfg.Calibration.RegionSize != 16 || cfg.Engine.PersistentMismatch != 30 || cfg.Calibration.Metric != "mean" {
		t.Fatalf("defaults lost: %+v", cfg.Calibration)
	}
}

func TestParseJSON(t *testing.T) {
	cfg, err := Parse([]byte(`{"log_level":"debug","calibration":{"alert_threshold":3.5}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Calibration.AlertThreshold != 3.5 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"empty":          "   ",
		"kafka ingest":   "ingest:\n  kafka:\n    enabled: true\n",
		"storage driver": "storage:\n  enabled: true\n  driver: mysql\n",
		"directory path": "ingest:\n  directory:\n    enabled: true\n",
		"kafka sink":     "sink:\n  kafka:\n    enabled: true\n",
		"malformed":      "calibration: [",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"cfg.yaml", "cfg.json"} {
		path := filepath.Join(dir, name)
		cfg := DefaultConfig()
		cfg.Calibration.DwellTicks = 7
		cfg.Calibration.StatWindowDuration = 3 * time.Second
		if err := Save(path, cfg); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		if loaded.Calibration.DwellTicks != 7 || loaded.Calibration.StatWindowDuration != 3*time.Second {
			t.Fatalf("%s round trip lost calibration: %+v", name, loaded.Calibration)
		}
	}
}

func TestManagerReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vibroscope.yaml")
	if err := os.WriteFile(path, []byte("calibration:\n  window_size: 4\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	if m.Get().Calibration.WindowSize != 4 {
		t.Fatalf("window size %d", m.Get().Calibration.WindowSize)
	}
	if needs, _ := m.NeedsReload(); needs {
		t.Fatalf("fresh manager wants a reload")
	}

	if err := os.WriteFile(path, []byte("calibration:\n  window_size: 6\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if needs, err := m.NeedsReload(); err != nil || !needs {
		t.Fatalf("needs reload=%v err=%v", needs, err)
	}

	reloaded := make(chan *Config, 1)
	stop := make(chan struct{})
	go m.Watch(time.Millisecond, func(c *Config) { reloaded <- c }, nil, stop)
	defer close(stop)
	select {
	case c := <-reloaded:
		if c.Calibration.WindowSize != 6 || m.Get().Calibration.WindowSize != 6 {
			t.Fatalf("reloaded window size %d", c.Calibration.WindowSize)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watch did not reload")
	}
}

func TestStaticManagerUpdate(t *testing.T) {
	m := NewStaticManager(DefaultConfig())
	next := *m.Get()
	next.StreamID = "other"
	if err := m.Update(&next); err != nil {
		t.Fatalf("update: %v", err)
	}
	if m.Get().StreamID != "other" || m.Path() != "" {
		t.Fatalf("static update not applied")
	}
	if err := m.Update(nil); err == nil {
		t.Fatalf("nil config accepted")
	}
}

func TestManagerUpdateWhileWatching(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vibroscope.yaml")
	if err := Save(path, DefaultConfig()); err != nil {
		t.Fatalf("save: %v", err)
	}
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Watch(time.Millisecond, nil, nil, stop)
	}()
	for i := 1; i <= 20; i++ {
		next := *m.Get()
		next.Calibration.DwellTicks = i
		if err := m.Update(&next); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		time.Sleep(time.Millisecond)
	}
	close(stop)
	<-done
	cfg, err := m.Reload()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := cfg.Calibration.DwellTicks; got != 20 {
		t.Fatalf("dwell ticks %d after updates", got)
	}
}
