package domain

import "math"

// Point is a (longitude, latitude) pair in decimal degrees.
// The order matches GeoJSON and ArcGIS ring coordinates.
type Point [2]float64

// NewPoint builds a Point from longitude and latitude.
func NewPoint(lon, lat float64) Point {
	return Point{lon, lat}
}

// Lon returns the longitude.
func (p Point) Lon() float64 { return p[0] }

// Lat returns the latitude.
func (p Point) Lat() float64 { return p[1] }

// Valid reports whether the point lies within WGS 84 coordinate ranges.
func (p Point) Valid() bool {
	if math.IsNaN(p[0]) || math.IsNaN(p[1]) {
		return false
	}
	return p[0] >= -180 && p[0] <= 180 && p[1] >= -90 && p[1] <= 90
}

// Polyline is an ordered sequence of points.
type Polyline []Point

// Extents is an axis-aligned bounding rectangle in decimal degrees.
type Extents struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Min returns the south-west corner.
func (e Extents) Min() Point { return Point{e.West, e.South} }

// Max returns the north-east corner.
func (e Extents) Max() Point { return Point{e.East, e.North} }

// Union returns the smallest extents covering both e and o.
func (e Extents) Union(o Extents) Extents {
	return Extents{
		North: math.Max(e.North, o.North),
		South: math.Min(e.South, o.South),
		East:  math.Max(e.East, o.East),
		West:  math.Min(e.West, o.West),
	}
}

// Trail is a named reference line made of one or more possibly disjoint segments.
type Trail struct {
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	Segments []Polyline `json:"segments"`
}

// PointCount returns the number of points across all segments.
func (t *Trail) PointCount() int {
	n := 0
	for _, s := range t.Segments {
		n += len(s)
	}
	return n
}
