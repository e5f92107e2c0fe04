package geospatial

import (
	"math"

	"github.com/Mortvola/tracker/internal/core/domain"
)

// ProjectOntoSegment projects p onto the line through a and b and returns
// the projected point with its parameter t along a→b. When t falls outside
// [0, 1] the point is nil and the caller clamps to the nearer endpoint.
// A zero-length segment projects onto a with t = 0.
func ProjectOntoSegment(a, b, p domain.Point) (*domain.Point, float64) {
	dx := b[0] - a[0]
	dy := b[1] - a[1]

	if dx == 0 && dy == 0 {
		q := a
		return &q, 0
	}

	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / (dx*dx + dy*dy)
	if t < 0 || t > 1 {
		return nil, t
	}

	q := domain.Point{a[0] + t*dx, a[1] + t*dy}
	return &q, t
}

// NearestPointOnPolyline returns the point of line closest to p in planar
// degree space, the planar distance to it and the index of the segment it
// lies on.
func NearestPointOnPolyline(line domain.Polyline, p domain.Point) (domain.Point, float64, int, error) {
	switch len(line) {
	case 0:
		return domain.Point{}, 0, 0, domain.ErrEmptyPolyline
	case 1:
		return line[0], math.Sqrt(squaredDistance(line[0], p)), 0, nil
	}

	var (
		best      domain.Point
		bestDist2 = math.Inf(1)
		bestIndex int
	)

	for i := 0; i < len(line)-1; i++ {
		q, t := ProjectOntoSegment(line[i], line[i+1], p)

		var candidate domain.Point
		switch {
		case q != nil:
			candidate = *q
		case t <= 0:
			candidate = line[i]
		default:
			candidate = line[i+1]
		}

		if d2 := squaredDistance(candidate, p); d2 < bestDist2 {
			best = candidate
			bestDist2 = d2
			bestIndex = i
		}
	}

	return best, math.Sqrt(bestDist2), bestIndex, nil
}

// ExtentsOf returns the bounding rectangle of a polyline, or false when the
// polyline is empty.
func ExtentsOf(line domain.Polyline) (domain.Extents, bool) {
	if len(line) == 0 {
		return domain.Extents{}, false
	}

	e := domain.Extents{
		North: line[0].Lat(),
		South: line[0].Lat(),
		East:  line[0].Lon(),
		West:  line[0].Lon(),
	}
	for _, p := range line[1:] {
		e.North = math.Max(e.North, p.Lat())
		e.South = math.Min(e.South, p.Lat())
		e.East = math.Max(e.East, p.Lon())
		e.West = math.Min(e.West, p.Lon())
	}
	return e, true
}

// ExpandExtents pads every side of e by margin degrees.
func ExpandExtents(e domain.Extents, margin float64) domain.Extents {
	return domain.Extents{
		North: e.North + margin,
		South: e.South - margin,
		East:  e.East + margin,
		West:  e.West - margin,
	}
}

// SegmentIntersectsRectangle reports whether either endpoint of s1→s2 lies
// strictly inside the rectangle. A segment crossing the rectangle with both
// endpoints outside is not detected.
func SegmentIntersectsRectangle(s1, s2, rectMin, rectMax domain.Point) bool {
	return strictlyInside(s1, rectMin, rectMax) || strictlyInside(s2, rectMin, rectMax)
}

func strictlyInside(p, rectMin, rectMax domain.Point) bool {
	return p[0] > rectMin[0] && p[0] < rectMax[0] &&
		p[1] > rectMin[1] && p[1] < rectMax[1]
}

func squaredDistance(a, b domain.Point) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	return dx*dx + dy*dy
}
