package geo

import "math"

const (
	// EarthRadiusMeters is the mean Earth radius used by the flight simulation.
	EarthRadiusMeters = 6371000.0
	// EarthRadiusKm is the mean Earth radius used by route and dispatch scoring.
	EarthRadiusKm = 6371.0

	// WGS84 ellipsoid constants
	wgs84SemiMajor  = 6378137.0
	wgs84Flattening = 1.0 / 298.257223563
)

func toRadians(deg float64) float64 { return deg * math.Pi / 180.0 }
func toDegrees(rad float64) float64 { return rad * 180.0 / math.Pi }

// centralAngle returns the haversine central angle between two points in radians.
func centralAngle(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)

	return 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// DistanceMeters returns the great-circle distance between two points in meters.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	return EarthRadiusMeters * centralAngle(lat1, lon1, lat2, lon2)
}

// DistanceKm returns the great-circle distance between two points in kilometers.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	return EarthRadiusKm * centralAngle(lat1, lon1, lat2, lon2)
}

// BearingDegrees returns the initial bearing from point 1 to point 2, normalized to [0, 360).
func BearingDegrees(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dLambda := toRadians(lon2 - lon1)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)

	return NormalizeHeading(toDegrees(math.Atan2(y, x)))
}

// DestinationPoint projects a point the given distance along a bearing.
func DestinationPoint(lat, lon, bearingDeg, distanceMeters float64) (float64, float64) {
	delta := distanceMeters / EarthRadiusMeters
	theta := toRadians(bearingDeg)
	phi1 := toRadians(lat)
	lambda1 := toRadians(lon)

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) +
		math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)

	// Normalize longitude to [-180, 180)
	lon2 := math.Mod(toDegrees(lambda2)+540, 360) - 180
	return toDegrees(phi2), lon2
}

// NormalizeHeading wraps any angle in degrees into [0, 360).
func NormalizeHeading(deg float64) float64 {
	h := math.Mod(deg, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}

// ToECEF converts latitude, longitude and altitude to Earth-Centered, Earth-Fixed coordinates.
func ToECEF(lat, lon, alt float64) (x, y, z float64) {
	e2 := 2*wgs84Flattening - wgs84Flattening*wgs84Flattening

	latRad := toRadians(lat)
	lonRad := toRadians(lon)

	// Radius of curvature in the prime vertical
	n := wgs84SemiMajor / math.Sqrt(1-e2*math.Sin(latRad)*math.Sin(latRad))

	x = (n + alt) * math.Cos(latRad) * math.Cos(lonRad)
	y = (n + alt) * math.Cos(latRad) * math.Sin(lonRad)
	z = (n*(1-e2) + alt) * math.Sin(latRad)
	return x, y, z
}
