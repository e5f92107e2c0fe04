package domain

import "time"

// Ring is a closed polygon ring.
type Ring []Point

// PerimeterGeometry is the set of rings describing a fire's boundary.
// The JSON shape matches the ArcGIS polygon geometry.
type PerimeterGeometry struct {
	Rings []Ring `json:"rings"`
}

// Perimeter is a stored, immutable perimeter polygon.
type Perimeter struct {
	ID        int64             `json:"id"`
	Geometry  PerimeterGeometry `json:"geometry"`
	CreatedAt time.Time         `json:"created_at"`
}

// PerimetersMatch reports whether two perimeters have exactly the same rings.
// Coordinates are compared without tolerance.
func PerimetersMatch(a, b PerimeterGeometry) bool {
	if len(a.Rings) != len(b.Rings) {
		return false
	}
	for i := range a.Rings {
		if len(a.Rings[i]) != len(b.Rings[i]) {
			return false
		}
	}
	for i := range a.Rings {
		for j := range a.Rings[i] {
			if a.Rings[i][j] != b.Rings[i][j] {
				return false
			}
		}
	}
	return true
}
