package engine

import (
	"fmt"

	"vibroscope/internal/config"
	"vibroscope/internal/model"
)

type rect struct {
	x0, y0, x1, y1 int
}

func (r rect) overlaps(o rect) bool {
	return r.x0 < o.x1 && o.x0 < r.x1 && r.y0 < o.y1 && o.y0 < r.y1
}

// RegionMask excludes pixel rectangles from alerting. A region is masked
// when its pixel block overlaps any rectangle.
type RegionMask struct {
	rects []rect
}

func buildRegionMask(values []config.MaskRect) (*RegionMask, []string) {
	if len(values) == 0 {
		return nil, nil
	}
	var violations []string
	m := &RegionMask{rects: make([]rect, 0, len(values))}
	for i, v := range values {
		if v.X < 0 || v.Y < 0 || v.Width <= 0 || v.Height <= 0 {
			violations = append(violations, fmt.Sprintf("masks[%d] must have non-negative origin and positive size", i))
			continue
		}
		m.rects = append(m.rects, rect{x0: v.X, y0: v.Y, x1: v.X + v.Width, y1: v.Y + v.Height})
	}
	if len(m.rects) == 0 {
		return nil, violations
	}
	return m, violations
}

func (m *RegionMask) Masked(region model.RegionID, regionSize int) bool {
	if m == nil {
		return false
	}
	r := rect{
		x0: region.X * regionSize,
		y0: region.Y * regionSize,
		x1: (region.X + 1) * regionSize,
		y1: (region.Y + 1) * regionSize,
	}
	for _, mr := range m.rects {
		if mr.overlaps(r) {
			return true
		}
	}
	return false
}

func (m *RegionMask) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rects)
}
