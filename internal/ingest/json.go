package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"vibroscope/internal/model"
)

// jsonFrame is the JSON form accepted by the REST source. Data is base64.
type jsonFrame struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Channels  int       `json:"channels"`
	Data      []byte    `json:"data"`
}

func (j jsonFrame) frame() (model.Frame, error) {
	if j.Channels == 0 {
		j.Channels = 1
	}
	if err := checkShape(j.Width, j.Height, j.Channels); err != nil {
		return model.Frame{}, err
	}
	if len(j.Data) != j.Width*j.Height*j.Channels {
		return model.Frame{}, fmt.Errorf("%w: %d data bytes for %dx%dx%d", ErrBadShape, len(j.Data), j.Width, j.Height, j.Channels)
	}
	if j.Seq == 0 {
		return model.Frame{}, fmt.Errorf("frame seq is required")
	}
	ts := j.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return model.Frame{
		Seq:       j.Seq,
		Timestamp: ts.UTC(),
		Width:     j.Width,
		Height:    j.Height,
		Channels:  j.Channels,
		Pix:       j.Data,
	}, nil
}

// ParseJSONFrames decodes a single JSON frame object or an array of them.
// Frames that fail validation are reported per index and skipped.
func ParseJSONFrames(data []byte) ([]model.Frame, []error, error) {
	var list []jsonFrame
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, nil, err
		}
	} else {
		var one jsonFrame
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, nil, err
		}
		list = append(list, one)
	}
	frames := make([]model.Frame, 0, len(list))
	var failures []error
	for i, jf := range list {
		f, err := jf.frame()
		if err != nil {
			failures = append(failures, fmt.Errorf("frame %d: %w", i, err))
			continue
		}
		frames = append(frames, f)
	}
	return frames, failures, nil
}

// MarshalJSONFrame is the inverse of ParseJSONFrames for one frame.
func MarshalJSONFrame(f model.Frame) ([]byte, error) {
	return json.Marshal(jsonFrame{
		Seq:       f.Seq,
		Timestamp: f.Timestamp,
		Width:     f.Width,
		Height:    f.Height,
		Channels:  f.Channels,
		Data:      f.Pix,
	})
}
