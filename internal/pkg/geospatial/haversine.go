package geospatial

import "math"

// EarthRadius is the WGS 84 equatorial radius in meters.
const EarthRadius = 6378137.0

// Haversine calculates the great-circle distance in meters between two points
// on a sphere of the given radius.
func Haversine(lat1, lon1, lat2, lon2, radius float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return radius * c
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
