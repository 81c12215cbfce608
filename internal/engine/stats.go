package engine

import (
	"fmt"
	"math"
	"sync"
	"time"
	"unsafe"

	"vibroscope/internal/model"
)

type regionAccum struct {
	n       int
	mean    float64
	m2      float64 // sum of squared deviations (exact) or the variance itself (decay)
	count   float64
	last    float64
	lastSeq uint64
}

// StatisticsEngine accumulates one pooled sample per region per tick.
//
// Exact mode keeps a ring of the last StatWindow samples per region and
// maintains Welford mean/variance with add and reverse-remove updates,
// re-based from the ring once per full window turn. Decay mode keeps an
// exponentially weighted mean/variance and a decayed exceedance count, so
// its memory is one accumulator per region.
//
// Accumulate is single-writer. Snapshot, SnapshotAll and Range may be called
// from other goroutines at any time.
type StatisticsEngine struct {
	mu sync.RWMutex

	regionSize int
	mode       StatMode
	window     int
	duration   time.Duration
	threshold  float64
	pooling    Pooling

	width, height int
	cols, rows    int
	regions       []regionAccum
	area          []int
	pooled        []float64

	ring      []float64
	tickTS    []time.Time
	head      int
	size      int
	evictions int

	lastTS time.Time
}

func NewStatisticsEngine(p *Profile) *StatisticsEngine {
	return &StatisticsEngine{
		regionSize: p.RegionSize,
		mode:       p.Mode(),
		window:     p.StatWindow,
		duration:   p.StatWindowDuration,
		threshold:  p.AlertThreshold,
		pooling:    p.Pooling,
	}
}

// Accumulate folds one vibro image into the per-region statistics.
func (s *StatisticsEngine) Accumulate(v model.VibroImage, seq uint64) error {
	if v.Width <= 0 || v.Height <= 0 || len(v.Pix) != v.Width*v.Height {
		return fmt.Errorf("%w: vibro image %dx%d with %d cells", ErrDimensionMismatch, v.Width, v.Height, len(v.Pix))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.regions == nil {
		s.allocate(v.Width, v.Height)
	} else if v.Width != s.width || v.Height != s.height {
		return fmt.Errorf("%w: vibro image %dx%d, statistics laid out for %dx%d", ErrDimensionMismatch, v.Width, v.Height, s.width, s.height)
	}
	s.pool(v)
	if s.mode == StatModeExact {
		s.accumulateExact(v.Timestamp, seq)
	} else {
		s.accumulateDecay(v.Timestamp, seq)
	}
	return nil
}

func (s *StatisticsEngine) allocate(width, height int) {
	rs := s.regionSize
	s.width, s.height = width, height
	s.cols = (width + rs - 1) / rs
	s.rows = (height + rs - 1) / rs
	n := s.cols * s.rows
	s.regions = make([]regionAccum, n)
	s.pooled = make([]float64, n)
	s.area = make([]int, n)
	for y := 0; y < height; y++ {
		ry := y / rs
		for x := 0; x < width; x++ {
			s.area[ry*s.cols+x/rs]++
		}
	}
	if s.mode == StatModeExact {
		s.ring = make([]float64, n*s.window)
		s.tickTS = make([]time.Time, s.window)
	}
	s.head, s.size, s.evictions = 0, 0, 0
	s.lastTS = time.Time{}
}

func (s *StatisticsEngine) pool(v model.VibroImage) {
	if s.regionSize == 1 {
		for i, px := range v.Pix {
			s.pooled[i] = float64(px)
		}
		return
	}
	for i := range s.pooled {
		s.pooled[i] = 0
	}
	rs := s.regionSize
	for y := 0; y < v.Height; y++ {
		base := (y / rs) * s.cols
		row := v.Pix[y*v.Width : (y+1)*v.Width]
		for x, px := range row {
			idx := base + x/rs
			if s.pooling == PoolingMax {
				if float64(px) > s.pooled[idx] {
					s.pooled[idx] = float64(px)
				}
				continue
			}
			s.pooled[idx] += float64(px)
		}
	}
	if s.pooling == PoolingMean {
		for i := range s.pooled {
			s.pooled[i] /= float64(s.area[i])
		}
	}
}

func (s *StatisticsEngine) accumulateExact(ts time.Time, seq uint64) {
	if s.duration > 0 && !ts.IsZero() {
		cutoff := ts.Add(-s.duration)
		for s.size > 0 && s.tickTS[s.head].Before(cutoff) {
			s.evictOldest()
		}
	}
	if s.size == s.window {
		s.evictOldest()
	}
	slot := (s.head + s.size) % s.window
	s.tickTS[slot] = ts
	s.size++
	for i := range s.regions {
		x := s.pooled[i]
		s.ring[i*s.window+slot] = x
		r := &s.regions[i]
		r.n++
		d := x - r.mean
		r.mean += d / float64(r.n)
		r.m2 += d * (x - r.mean)
		if x > s.threshold {
			r.count++
		}
		r.last = x
		r.lastSeq = seq
	}
	if s.evictions >= s.window {
		s.rebase()
	}
}

func (s *StatisticsEngine) evictOldest() {
	slot := s.head
	for i := range s.regions {
		x := s.ring[i*s.window+slot]
		r := &s.regions[i]
		if x > s.threshold {
			r.count--
		}
		if r.n <= 1 {
			r.n, r.mean, r.m2 = 0, 0, 0
			continue
		}
		r.n--
		mean := r.mean - (x-r.mean)/float64(r.n)
		r.m2 -= (x - r.mean) * (x - mean)
		r.mean = mean
		if r.m2 < 0 {
			r.m2 = 0
		}
	}
	s.tickTS[slot] = time.Time{}
	s.head = (s.head + 1) % s.window
	s.size--
	s.evictions++
}

// rebase recomputes every exact accumulator from its ring to cancel the
// rounding drift of repeated add/remove updates.
func (s *StatisticsEngine) rebase() {
	for i := range s.regions {
		r := &s.regions[i]
		r.n, r.mean, r.m2, r.count = 0, 0, 0, 0
		base := i * s.window
		for k := 0; k < s.size; k++ {
			x := s.ring[base+(s.head+k)%s.window]
			r.n++
			d := x - r.mean
			r.mean += d / float64(r.n)
			r.m2 += d * (x - r.mean)
			if x > s.threshold {
				r.count++
			}
		}
	}
	s.evictions = 0
}

func (s *StatisticsEngine) accumulateDecay(ts time.Time, seq uint64) {
	alpha := 1 / float64(s.window)
	if s.duration > 0 && !s.lastTS.IsZero() && ts.After(s.lastTS) {
		dt := ts.Sub(s.lastTS).Seconds()
		alpha = 1 - math.Exp(-dt/s.duration.Seconds())
	}
	if !ts.IsZero() {
		s.lastTS = ts
	}
	keep := 1 - alpha
	for i := range s.regions {
		x := s.pooled[i]
		r := &s.regions[i]
		hit := 0.0
		if x > s.threshold {
			hit = 1
		}
		if r.n == 0 {
			r.mean, r.m2, r.count = x, 0, hit
		} else {
			d := x - r.mean
			incr := alpha * d
			r.mean += incr
			r.m2 = keep * (r.m2 + d*incr)
			r.count = r.count*keep + hit
		}
		if r.n < s.window {
			r.n++
		}
		r.last = x
		r.lastSeq = seq
	}
}

func (s *StatisticsEngine) statAt(i int) model.PixelStatistic {
	r := s.regions[i]
	variance := r.m2
	if s.mode == StatModeExact {
		variance = 0
		if r.n > 0 {
			variance = r.m2 / float64(r.n)
		}
	}
	return model.PixelStatistic{
		Region:   model.RegionID{X: i % s.cols, Y: i / s.cols},
		Count:    r.count,
		Samples:  r.n,
		Mean:     r.mean,
		Variance: variance,
		Last:     r.last,
		LastSeq:  r.lastSeq,
	}
}

// Snapshot returns a copy of one region's statistic.
func (s *StatisticsEngine) Snapshot(id model.RegionID) (model.PixelStatistic, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.regions == nil || id.X < 0 || id.Y < 0 || id.X >= s.cols || id.Y >= s.rows {
		return model.PixelStatistic{}, false
	}
	return s.statAt(id.Y*s.cols + id.X), true
}

func (s *StatisticsEngine) SnapshotAll() []model.PixelStatistic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PixelStatistic, len(s.regions))
	for i := range s.regions {
		out[i] = s.statAt(i)
	}
	return out
}

// Range calls fn for every region in row-major order under the read lock.
// fn must not call back into the statistics engine's write path.
func (s *StatisticsEngine) Range(fn func(idx int, st model.PixelStatistic)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.regions {
		fn(i, s.statAt(i))
	}
}

// Layout returns the region grid dimensions; zero before the first sample.
func (s *StatisticsEngine) Layout() (cols, rows int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cols, s.rows
}

func (s *StatisticsEngine) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.regions)
}

// Footprint approximates the bytes held by the accumulators.
func (s *StatisticsEngine) Footprint() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.regions)*int(unsafe.Sizeof(regionAccum{})) +
		len(s.area)*int(unsafe.Sizeof(int(0))) +
		len(s.pooled)*8 +
		len(s.ring)*8 +
		len(s.tickTS)*int(unsafe.Sizeof(time.Time{}))
}

// Reset releases all accumulators; the next Accumulate re-establishes the
// layout.
func (s *StatisticsEngine) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height, s.cols, s.rows = 0, 0, 0, 0
	s.regions = nil
	s.area = nil
	s.pooled = nil
	s.ring = nil
	s.tickTS = nil
	s.head, s.size, s.evictions = 0, 0, 0
	s.lastTS = time.Time{}
}
