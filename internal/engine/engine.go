package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"vibroscope/internal/model"
)

// Sink receives the events of one tick. Delivery failures are counted and
// logged by the engine and never interrupt processing.
type Sink interface {
	Deliver(ctx context.Context, events []model.AlertEvent) error
}

type Options struct {
	StreamID           string
	QueueCapacity      int
	PersistentMismatch int
	Logger             *slog.Logger
}

type Engine struct {
	logger   *slog.Logger
	streamID string
	runID    string

	profile atomic.Pointer[Profile]
	stats   atomic.Pointer[StatisticsEngine]
	queue   *FrameQueue

	tickMu         sync.Mutex
	active         *Profile
	window         *FrameWindow
	vibro          *VibroComputer
	evaluator      *AlertEvaluator
	snapshot       []model.Frame
	image          model.VibroImage
	shape          model.Shape
	shapeSet       bool
	mismatchStreak int
	persistentWarn bool
	persistentN    int

	activityMu sync.Mutex
	activity   []int
	actHead    int
	actLen     int

	framesIngested    atomic.Uint64
	outOfOrder        atomic.Uint64
	dimensionMismatch atomic.Uint64
	ticks             atomic.Uint64
	alertsEmitted     atomic.Uint64
	sinkErrors        atomic.Uint64
	alerting          atomic.Int64
	lastSeq           atomic.Uint64

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

func NewEngine(p *Profile, opts Options) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil profile", ErrInvalidCalibration)
	}
	if opts.StreamID == "" {
		opts.StreamID = "default"
	}
	if opts.PersistentMismatch <= 0 {
		opts.PersistentMismatch = 30
	}
	e := &Engine{
		logger:      opts.Logger,
		streamID:    opts.StreamID,
		runID:       uuid.NewString(),
		queue:       NewFrameQueue(opts.QueueCapacity),
		vibro:       NewVibroComputer(),
		evaluator:   NewAlertEvaluator(opts.StreamID),
		persistentN: opts.PersistentMismatch,
		done:        make(chan struct{}),
	}
	e.profile.Store(p)
	e.applyProfile(p)
	return e, nil
}

// UpdateCalibration swaps in a new profile. The running tick keeps the
// profile it started with; the next tick uses p.
func (e *Engine) UpdateCalibration(p *Profile) error {
	if p == nil {
		return fmt.Errorf("%w: nil profile", ErrInvalidCalibration)
	}
	e.profile.Store(p)
	return nil
}

func (e *Engine) Calibration() *Profile {
	return e.profile.Load()
}

func (e *Engine) applyProfile(p *Profile) {
	prev := e.active
	switch {
	case e.window == nil:
		e.window = NewFrameWindow(p.WindowSize)
	case prev.WindowSize != p.WindowSize:
		frames := e.window.Snapshot(nil)
		e.window = NewFrameWindow(p.WindowSize)
		if len(frames) > p.WindowSize {
			frames = frames[len(frames)-p.WindowSize:]
		}
		for _, f := range frames {
			_, _, _ = e.window.Push(f)
		}
	}
	if prev == nil || !p.sameStatistics(prev) {
		e.stats.Store(NewStatisticsEngine(p))
		e.evaluator.Reset()
		e.alerting.Store(0)
		e.resetActivity(p.StatWindow)
	}
	e.active = p
	if prev != nil && e.logger != nil {
		e.logger.Info("calibration applied",
			"stream_id", e.streamID,
			"window_size", p.WindowSize,
			"region_size", p.RegionSize,
			"stat_mode", string(p.Mode()),
			"alert_threshold", p.AlertThreshold,
		)
	}
}

// Ingest runs one tick for frame: window push, vibro image, statistics and
// alert evaluation. Fewer than two buffered frames short-circuit the tick
// without error.
func (e *Engine) Ingest(frame model.Frame) ([]model.AlertEvent, error) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if p := e.profile.Load(); p != e.active {
		e.applyProfile(p)
	}
	p := e.active

	if err := e.checkShape(frame); err != nil {
		return nil, err
	}
	if _, _, err := e.window.Push(frame); err != nil {
		e.outOfOrder.Add(1)
		if e.logger != nil {
			e.logger.Warn("frame dropped", "stream_id", e.streamID, "seq", frame.Seq, "last_seq", e.window.LastSeq(), "err", err)
		}
		return nil, err
	}
	e.framesIngested.Add(1)
	e.lastSeq.Store(frame.Seq)
	if e.window.Len() < 2 {
		return nil, nil
	}

	e.snapshot = e.window.Snapshot(e.snapshot)
	if err := e.vibro.ComputeInto(&e.image, e.snapshot, p); err != nil {
		return nil, err
	}
	stats := e.stats.Load()
	if err := stats.Accumulate(e.image, frame.Seq); err != nil {
		return nil, err
	}
	e.recordActivity(e.image.Active)
	events := e.evaluator.Evaluate(stats, p, frame.Seq, frame.Timestamp)
	e.ticks.Add(1)
	e.alerting.Store(int64(e.evaluator.Alerting()))
	for _, ev := range events {
		if ev.Kind != model.AlertRaised {
			continue
		}
		e.alertsEmitted.Add(1)
		if e.logger != nil {
			e.logger.Warn("vibration alert",
				"stream_id", e.streamID,
				"region_x", ev.Region.X,
				"region_y", ev.Region.Y,
				"metric", ev.Metric,
				"value", ev.Value,
				"threshold", ev.Threshold,
				"seq", ev.Seq,
			)
		}
	}
	return events, nil
}

func (e *Engine) checkShape(frame model.Frame) error {
	if frame.Valid() && (!e.shapeSet || frame.Shape() == e.shape) {
		if !e.shapeSet {
			e.shape, e.shapeSet = frame.Shape(), true
		}
		if e.persistentWarn && e.logger != nil {
			e.logger.Info("frame shape recovered", "stream_id", e.streamID, "seq", frame.Seq, "after_mismatches", e.mismatchStreak)
		}
		e.mismatchStreak, e.persistentWarn = 0, false
		return nil
	}
	e.dimensionMismatch.Add(1)
	e.mismatchStreak++
	err := fmt.Errorf("%w: got %dx%dx%d (%d bytes), want %dx%dx%d", ErrDimensionMismatch,
		frame.Width, frame.Height, frame.Channels, len(frame.Pix), e.shape.Width, e.shape.Height, e.shape.Channels)
	if e.logger != nil {
		if e.mismatchStreak >= e.persistentN && !e.persistentWarn {
			e.persistentWarn = true
			e.logger.Warn("persistent dimension mismatch", "stream_id", e.streamID, "consecutive", e.mismatchStreak, "err", err)
		} else {
			e.logger.Debug("frame dropped", "stream_id", e.streamID, "seq", frame.Seq, "err", err)
		}
	}
	return err
}

func (e *Engine) resetActivity(n int) {
	e.activityMu.Lock()
	defer e.activityMu.Unlock()
	if n < 1 {
		n = 1
	}
	e.activity = make([]int, n)
	e.actHead, e.actLen = 0, 0
}

func (e *Engine) recordActivity(active int) {
	e.activityMu.Lock()
	defer e.activityMu.Unlock()
	n := len(e.activity)
	if n == 0 {
		return
	}
	e.activity[(e.actHead+e.actLen)%n] = active
	if e.actLen < n {
		e.actLen++
		return
	}
	e.actHead = (e.actHead + 1) % n
}

// Activity returns the active-pixel counts of the most recent ticks, oldest
// first.
func (e *Engine) Activity() []int {
	e.activityMu.Lock()
	defer e.activityMu.Unlock()
	out := make([]int, e.actLen)
	for i := 0; i < e.actLen; i++ {
		out[i] = e.activity[(e.actHead+i)%len(e.activity)]
	}
	return out
}

// Submit hands a frame to the worker without blocking. A full queue drops
// its oldest frame.
func (e *Engine) Submit(frame model.Frame) bool {
	if e.closed.Load() {
		return false
	}
	if old, dropped := e.queue.Submit(frame); dropped && e.logger != nil {
		e.logger.Debug("frame queue full, dropped oldest", "stream_id", e.streamID, "seq", old.Seq)
	}
	return true
}

// Start runs the worker loop on its own goroutine.
func (e *Engine) Start(ctx context.Context, sink Sink) {
	go func() {
		_ = e.Run(ctx, sink)
	}()
}

// Run consumes queued frames until ctx is cancelled or Close is called,
// then releases the engine's buffers.
func (e *Engine) Run(ctx context.Context, sink Sink) error {
	defer e.Close()
	if e.logger != nil {
		e.logger.Info("engine started", "stream_id", e.streamID, "run_id", e.runID, "queue_capacity", e.queue.Cap())
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.done:
			return nil
		case frame := <-e.queue.C():
			events, err := e.Ingest(frame)
			if err != nil {
				if errors.Is(err, ErrClosed) {
					return nil
				}
				continue
			}
			if len(events) == 0 || sink == nil {
				continue
			}
			if err := sink.Deliver(ctx, events); err != nil {
				e.sinkErrors.Add(1)
				if e.logger != nil {
					e.logger.Warn("alert delivery failed", "stream_id", e.streamID, "events", len(events), "err", err)
				}
			}
		}
	}
}

// Close stops the worker, discards queued frames and releases frame and
// statistics memory. It is safe to call more than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
		e.tickMu.Lock()
		defer e.tickMu.Unlock()
		discarded := e.queue.Drain()
		e.release()
		if e.logger != nil {
			e.logger.Info("engine stopped", "stream_id", e.streamID, "run_id", e.runID, "discarded", discarded)
		}
	})
}

// Reset forgets the established frame shape, buffered frames, statistics
// and alert states. Counters keep running.
func (e *Engine) Reset() {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	e.release()
	e.resetActivity(e.active.StatWindow)
}

func (e *Engine) release() {
	e.window.Reset()
	if s := e.stats.Load(); s != nil {
		s.Reset()
	}
	e.evaluator.Reset()
	e.alerting.Store(0)
	e.snapshot = nil
	e.image = model.VibroImage{}
	e.shape, e.shapeSet = model.Shape{}, false
	e.mismatchStreak, e.persistentWarn = 0, false
}

func (e *Engine) Stats() model.Counters {
	return model.Counters{
		FramesIngested:    e.framesIngested.Load(),
		FramesDropped:     e.queue.Dropped(),
		OutOfOrder:        e.outOfOrder.Load(),
		DimensionMismatch: e.dimensionMismatch.Load(),
		Ticks:             e.ticks.Load(),
		AlertsEmitted:     e.alertsEmitted.Load(),
		SinkErrors:        e.sinkErrors.Load(),
	}
}

// Statistics returns the statistics engine for concurrent inspection.
func (e *Engine) Statistics() *StatisticsEngine {
	return e.stats.Load()
}

func (e *Engine) Alerting() int {
	return int(e.alerting.Load())
}

func (e *Engine) LastSeq() uint64 {
	return e.lastSeq.Load()
}

func (e *Engine) StreamID() string {
	return e.streamID
}

func (e *Engine) RunID() string {
	return e.runID
}

func (e *Engine) QueueLen() int {
	return e.queue.Len()
}
