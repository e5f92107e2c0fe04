package geospatial

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/Mortvola/tracker/internal/core/domain"
)

// TrailFromGeoJSON builds a trail from the LineString and MultiLineString
// features of a collection. Lines sharing endpoints are stitched into one
// segment (see StitchSegments). Other geometry types are ignored; an empty
// result is an error.
func TrailFromGeoJSON(name string, data []byte) (*domain.Trail, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}

	trail := &domain.Trail{Name: name}
	for i, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.LineString:
			trail.Segments = appendSegment(trail.Segments, g)
		case orb.MultiLineString:
			for _, ls := range g {
				trail.Segments = appendSegment(trail.Segments, ls)
			}
		case nil:
			return nil, fmt.Errorf("feature %d has no geometry", i)
		}
	}

	if len(trail.Segments) == 0 {
		return nil, fmt.Errorf("no line geometry in collection: %w", domain.ErrEmptyPolyline)
	}
	trail.Segments = StitchSegments(trail.Segments)
	return trail, nil
}

func appendSegment(segs []domain.Polyline, ls orb.LineString) []domain.Polyline {
	if len(ls) == 0 {
		return segs
	}
	seg := make(domain.Polyline, len(ls))
	for i, p := range ls {
		seg[i] = domain.NewPoint(p.Lon(), p.Lat())
	}
	return append(segs, seg)
}
