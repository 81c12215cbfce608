package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"vibroscope/internal/config"
	"vibroscope/internal/model"
)

func TestSimulateRaisesOnVibratingBlock(t *testing.T) {
	var out bytes.Buffer
	opts := simulateOptions{
		frames: 20,
		seed:   3,
		synthetic: config.SyntheticConfig{
			Width: 64, Height: 48, BlockX: 16, BlockY: 16, BlockSize: 16, Amplitude: 60,
		},
	}
	if err := simulate(&out, opts); err != nil {
		t.Fatalf("simulate: %v", err)
	}
	var (
		raised  []model.AlertEvent
		summary model.Summary
	)
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var probe map[string]any
		if err := json.Unmarshal(sc.Bytes(), &probe); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		if _, ok := probe["kind"]; ok {
			var ev model.AlertEvent
			_ = json.Unmarshal(sc.Bytes(), &ev)
			if ev.Kind == model.AlertRaised {
				raised = append(raised, ev)
			}
			continue
		}
		_ = json.Unmarshal(sc.Bytes(), &summary)
	}
	if len(raised) == 0 {
		t.Fatalf("no alerts for a vibrating block:\n%s", out.String())
	}
	if ev := raised[0]; ev.Region != (model.RegionID{X: 1, Y: 1}) {
		t.Fatalf("alert for unexpected region %+v", ev.Region)
	}
	if summary.Counters.FramesIngested != 20 || summary.Regions != 12 {
		t.Fatalf("summary %+v", summary)
	}
}

func TestSimulateStillSceneIsQuiet(t *testing.T) {
	var out bytes.Buffer
	opts := simulateOptions{
		frames:    20,
		synthetic: config.SyntheticConfig{Width: 32, Height: 32},
	}
	if err := simulate(&out, opts); err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if lines := bytes.Count(out.Bytes(), []byte("\n")); lines != 1 {
		t.Fatalf("still scene produced alert lines:\n%s", out.String())
	}
}
