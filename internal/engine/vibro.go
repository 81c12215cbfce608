package engine

import (
	"fmt"
	"math"

	"vibroscope/internal/model"
)

// VibroComputer turns a window snapshot into a filtered difference image.
// It keeps a scratch delta plane between calls and is not safe for
// concurrent use.
type VibroComputer struct {
	deltas []uint8
}

func NewVibroComputer() *VibroComputer {
	return &VibroComputer{}
}

// Compute returns a freshly allocated vibro image.
func (c *VibroComputer) Compute(snapshot []model.Frame, p *Profile) (model.VibroImage, error) {
	var out model.VibroImage
	if err := c.ComputeInto(&out, snapshot, p); err != nil {
		return model.VibroImage{}, err
	}
	return out, nil
}

// ComputeInto writes the vibro image into dst, reusing dst.Pix when it is
// large enough.
func (c *VibroComputer) ComputeInto(dst *model.VibroImage, snapshot []model.Frame, p *Profile) error {
	if len(snapshot) < 2 {
		return fmt.Errorf("%w: have %d", ErrInsufficientFrames, len(snapshot))
	}
	newest := snapshot[len(snapshot)-1]
	shape := newest.Shape()
	for i := range snapshot {
		if !snapshot[i].Valid() || snapshot[i].Shape() != shape {
			return fmt.Errorf("%w: frame %d is %dx%dx%d, newest is %dx%dx%d", ErrDimensionMismatch,
				snapshot[i].Seq, snapshot[i].Width, snapshot[i].Height, snapshot[i].Channels,
				shape.Width, shape.Height, shape.Channels)
		}
	}
	ref := snapshot[referenceIndex(len(snapshot), p.Stride)]

	pixels := shape.Pixels()
	if cap(c.deltas) < pixels {
		c.deltas = make([]uint8, pixels)
	}
	deltas := c.deltas[:pixels]
	absDelta(deltas, newest.Pix, ref.Pix, shape.Channels)

	if cap(dst.Pix) < pixels {
		dst.Pix = make([]uint8, pixels)
	}
	dst.Pix = dst.Pix[:pixels]
	dst.Seq = newest.Seq
	dst.Timestamp = newest.Timestamp
	dst.Width = shape.Width
	dst.Height = shape.Height
	dst.Active = suppressNoise(dst.Pix, deltas, shape.Width, shape.Height, exceedLevel(p.NeighborThreshold), p.MinNeighbors)
	return nil
}

// referenceIndex picks the frame compared against the newest: the oldest
// for stride 0, otherwise stride positions back, clamped to the oldest.
func referenceIndex(n, stride int) int {
	if stride <= 0 {
		return 0
	}
	idx := n - 1 - stride
	if idx < 0 {
		return 0
	}
	return idx
}

// exceedLevel converts the float threshold into the integer level a uint8
// delta must be strictly above. Deltas are integral, so d > t holds exactly
// when d > floor(t).
func exceedLevel(threshold float64) int {
	if threshold < 0 {
		return -1
	}
	if threshold >= math.MaxUint8 {
		return math.MaxUint8
	}
	return int(math.Floor(threshold))
}

func absDelta(dst, a, b []uint8, channels int) {
	if channels == 1 {
		for i := range dst {
			d := int(a[i]) - int(b[i])
			if d < 0 {
				d = -d
			}
			dst[i] = uint8(d)
		}
		return
	}
	for i := range dst {
		base := i * channels
		var m int
		for ch := 0; ch < channels; ch++ {
			d := int(a[base+ch]) - int(b[base+ch])
			if d < 0 {
				d = -d
			}
			if d > m {
				m = d
			}
		}
		dst[i] = uint8(m)
	}
}

// suppressNoise keeps a delta only when it is above level and at least
// minNeighbors of its 8-connected neighbors are above level too.
func suppressNoise(out, deltas []uint8, width, height, level, minNeighbors int) int {
	active := 0
	for y := 0; y < height; y++ {
		row := y * width
		for x := 0; x < width; x++ {
			i := row + x
			d := deltas[i]
			if int(d) <= level || !hasNeighbors(deltas, width, height, x, y, level, minNeighbors) {
				out[i] = 0
				continue
			}
			out[i] = d
			active++
		}
	}
	return active
}

func hasNeighbors(deltas []uint8, width, height, x, y, level, need int) bool {
	found := 0
	for dy := -1; dy <= 1; dy++ {
		ny := y + dy
		if ny < 0 || ny >= height {
			continue
		}
		row := ny * width
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx := x + dx
			if nx < 0 || nx >= width {
				continue
			}
			if int(deltas[row+nx]) > level {
				found++
				if found >= need {
					return true
				}
			}
		}
	}
	return false
}
