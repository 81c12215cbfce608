package model

import "time"

type Shape struct {
	Width    int `json:"width"`
	Height   int `json:"height"`
	Channels int `json:"channels"`
}

func (s Shape) Pixels() int {
	return s.Width * s.Height
}

func (s Shape) Samples() int {
	return s.Width * s.Height * s.Channels
}

// Frame is one decoded picture. Pix is row-major with interleaved channels
// and must not be modified once the frame has been handed to the engine.
type Frame struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Channels  int       `json:"channels"`
	Pix       []uint8   `json:"-"`
}

func (f Frame) Shape() Shape {
	return Shape{Width: f.Width, Height: f.Height, Channels: f.Channels}
}

// Valid reports whether the pixel buffer matches the declared shape.
func (f Frame) Valid() bool {
	return f.Width > 0 && f.Height > 0 && f.Channels > 0 && len(f.Pix) == f.Width*f.Height*f.Channels
}

type VibroImage struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Pix       []uint8   `json:"-"`
	Active    int       `json:"active"`
}

func (v VibroImage) At(x, y int) uint8 {
	return v.Pix[y*v.Width+x]
}

type RegionID struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type PixelStatistic struct {
	Region   RegionID `json:"region"`
	Count    float64  `json:"count"`
	Samples  int      `json:"samples"`
	Mean     float64  `json:"mean"`
	Variance float64  `json:"variance"`
	Last     float64  `json:"last"`
	LastSeq  uint64   `json:"last_seq"`
}

type AlertKind string

const (
	AlertRaised  AlertKind = "raised"
	AlertCleared AlertKind = "cleared"
)

type AlertEvent struct {
	ID        string    `json:"id"`
	Kind      AlertKind `json:"kind"`
	StreamID  string    `json:"stream_id,omitempty"`
	Region    RegionID  `json:"region"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Seq       uint64    `json:"frame_seq"`
	Timestamp time.Time `json:"timestamp"`
}

type Counters struct {
	FramesIngested    uint64 `json:"frames_ingested"`
	FramesDropped     uint64 `json:"frames_dropped"`
	OutOfOrder        uint64 `json:"out_of_order"`
	DimensionMismatch uint64 `json:"dimension_mismatch"`
	Ticks             uint64 `json:"ticks"`
	AlertsEmitted     uint64 `json:"alerts_emitted"`
	SinkErrors        uint64 `json:"sink_errors"`
}

// Summary is a periodic digest of the statistics grid.
type Summary struct {
	Timestamp   time.Time        `json:"timestamp"`
	StreamID    string           `json:"stream_id"`
	Seq         uint64           `json:"seq"`
	Regions     int              `json:"regions"`
	MeanOfMeans float64          `json:"mean_of_means"`
	StdDev      float64          `json:"stddev"`
	P95         float64          `json:"p95"`
	Dispersion  float64          `json:"dispersion"`
	Alerting    int              `json:"alerting"`
	Top         []PixelStatistic `json:"top"`
	Counters    Counters         `json:"counters"`
}
