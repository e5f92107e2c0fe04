package geospatial

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/Mortvola/tracker/internal/core/domain"
)

// DefaultMargin is the padding, in degrees, applied around trail and
// candidate extents.
const DefaultMargin = 0.5

// TrailIndex answers distance queries against a trail. It is immutable after
// construction and safe for concurrent use.
type TrailIndex struct {
	name     string
	segments []domain.Polyline
	extents  domain.Extents
	expanded domain.Extents
	margin   float64
	print    string
}

// NewTrailIndex computes the trail extents once. Every segment must have at
// least one point.
func NewTrailIndex(trail *domain.Trail, margin float64) (*TrailIndex, error) {
	if margin < 0 {
		return nil, fmt.Errorf("negative margin %f", margin)
	}

	idx := &TrailIndex{
		name:     trail.Name,
		segments: trail.Segments,
		margin:   margin,
	}

	for i, seg := range trail.Segments {
		e, ok := ExtentsOf(seg)
		if !ok {
			return nil, fmt.Errorf("trail %q segment %d: %w", trail.Name, i, domain.ErrEmptyPolyline)
		}
		if i == 0 {
			idx.extents = e
		} else {
			idx.extents = idx.extents.Union(e)
		}
	}
	idx.expanded = ExpandExtents(idx.extents, margin)
	idx.print = geometryPrint(trail.Segments)

	return idx, nil
}

// geometryPrint hashes the exact segment coordinates, so two trails with the
// same name but different geometry never share a print.
func geometryPrint(segments []domain.Polyline) string {
	h := sha256.New()
	buf := make([]byte, 0, 16)
	for _, seg := range segments {
		buf = binary.BigEndian.AppendUint32(buf[:0], uint32(len(seg)))
		h.Write(buf)
		for _, p := range seg {
			buf = binary.BigEndian.AppendUint64(buf[:0], math.Float64bits(p[0]))
			buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(p[1]))
			h.Write(buf)
		}
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// Name returns the trail name.
func (t *TrailIndex) Name() string { return t.name }

// Fingerprint identifies the trail geometry. It changes whenever any
// coordinate does.
func (t *TrailIndex) Fingerprint() string { return t.print }

// Extents returns the trail's bounding rectangle.
func (t *TrailIndex) Extents() domain.Extents { return t.extents }

// ExpandedExtents returns the trail's bounding rectangle padded by the margin.
func (t *TrailIndex) ExpandedExtents() domain.Extents { return t.expanded }

// BoundsIntersect reports whether q overlaps the expanded trail extents.
// Rectangles that only touch do not intersect.
func (t *TrailIndex) BoundsIntersect(q domain.Extents) bool {
	if len(t.segments) == 0 {
		return false
	}
	return t.expanded.West < q.East && t.expanded.East > q.West &&
		t.expanded.South < q.North && t.expanded.North > q.South
}

// SegmentsWithinExtents returns the contiguous runs of trail points whose
// connecting edges intersect e.
func (t *TrailIndex) SegmentsWithinExtents(e domain.Extents) []domain.Polyline {
	rectMin, rectMax := e.Min(), e.Max()

	var result []domain.Polyline
	for _, seg := range t.segments {
		if len(seg) == 1 {
			if strictlyInside(seg[0], rectMin, rectMax) {
				result = append(result, domain.Polyline{seg[0]})
			}
			continue
		}

		var run domain.Polyline
		for i := 0; i < len(seg)-1; i++ {
			if SegmentIntersectsRectangle(seg[i], seg[i+1], rectMin, rectMax) {
				if len(run) == 0 {
					run = append(run, seg[i])
				}
				run = append(run, seg[i+1])
				continue
			}
			if len(run) > 0 {
				result = append(result, run)
				run = nil
			}
		}
		if len(run) > 0 {
			result = append(result, run)
		}
	}
	return result
}

// DistanceToPoint returns the great-circle distance in meters from p to the
// nearest point of the trail. It returns false when the trail has no segments.
func (t *TrailIndex) DistanceToPoint(p domain.Point) (float64, bool, error) {
	var (
		best  domain.Point
		dist  = math.Inf(1)
		found bool
	)

	for _, seg := range t.segments {
		q, d, _, err := NearestPointOnPolyline(seg, p)
		if err != nil {
			return 0, false, err
		}
		if d < dist {
			best, dist, found = q, d, true
		}
	}

	if !found {
		return 0, false, nil
	}
	return Haversine(p.Lat(), p.Lon(), best.Lat(), best.Lon(), EarthRadius), true, nil
}

// DistanceToPolyline returns the great-circle distance in meters between the
// closest pair of candidate vertex and trail point. It returns false when the
// candidate is nowhere near the trail.
func (t *TrailIndex) DistanceToPolyline(candidate domain.Polyline) (float64, bool, error) {
	e, ok := ExtentsOf(candidate)
	if !ok || !t.BoundsIntersect(e) {
		return 0, false, nil
	}

	subs := t.SegmentsWithinExtents(ExpandExtents(e, t.margin))
	if len(subs) == 0 {
		return 0, false, nil
	}

	var (
		from, to domain.Point
		dist     = math.Inf(1)
	)

	for _, p := range candidate {
		for _, sub := range subs {
			q, d, _, err := NearestPointOnPolyline(sub, p)
			if err != nil {
				return 0, false, err
			}
			if d < dist {
				from, to, dist = p, q, d
			}
		}
	}

	return Haversine(from.Lat(), from.Lon(), to.Lat(), to.Lon(), EarthRadius), true, nil
}
