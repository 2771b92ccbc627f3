package geospatial

import "math"

const (
	earthRadiusKm = 6371.0

	// MetersPerDegreeLat is the length of one degree of latitude.
	MetersPerDegreeLat = 111320.0
)

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

// BoundingBox returns a bounding box around a point with the given radius in meters.
func BoundingBox(lat, lon, radiusMeters float64) (minLat, minLon, maxLat, maxLon float64) {
	latDelta := radiusMeters / MetersPerDegreeLat
	lonDelta := radiusMeters / (MetersPerDegreeLat * math.Cos(toRad(lat)))

	return lat - latDelta, lon - lonDelta, lat + latDelta, lon + lonDelta
}

// ExpandBox grows a box by meters on every side. The longitude margin is
// computed at the latitude furthest from the equator.
func ExpandBox(minLat, minLon, maxLat, maxLon, meters float64) (float64, float64, float64, float64) {
	latDelta := meters / MetersPerDegreeLat
	refLat := math.Max(math.Abs(minLat), math.Abs(maxLat))
	lonDelta := meters / (MetersPerDegreeLat * math.Cos(toRad(refLat)))

	return minLat - latDelta, minLon - lonDelta, maxLat + latDelta, maxLon + lonDelta
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
