package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceMeters(t *testing.T) {
	// One degree of longitude at 40N is roughly 85.2km
	d := DistanceMeters(40.0, -74.0, 40.0, -73.0)
	assert.InDelta(t, 85200, d, 300)

	assert.Zero(t, DistanceMeters(40.0, -74.0, 40.0, -74.0))
}

func TestDistanceKmMatchesMeters(t *testing.T) {
	m := DistanceMeters(37.7749, -122.4194, 34.0522, -118.2437)
	km := DistanceKm(37.7749, -122.4194, 34.0522, -118.2437)
	assert.InDelta(t, m/1000, km, 1e-6)
	assert.InDelta(t, 559, km, 2)
}

func TestBearingDegrees(t *testing.T) {
	tests := []struct {
		name     string
		lat2     float64
		lon2     float64
		expected float64
	}{
		{"north", 41.0, -74.0, 0},
		{"east", 40.0, -73.0, 89.7},
		{"south", 39.0, -74.0, 180},
		{"west", 40.0, -75.0, 270.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := BearingDegrees(40.0, -74.0, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.expected, b, 0.5)
			assert.GreaterOrEqual(t, b, 0.0)
			assert.Less(t, b, 360.0)
		})
	}
}

func TestDestinationPointRoundTrip(t *testing.T) {
	lat, lon := DestinationPoint(40.0, -74.0, 90, 850)

	d := DistanceMeters(40.0, -74.0, lat, lon)
	assert.InDelta(t, 850, d, 0.01)

	b := BearingDegrees(40.0, -74.0, lat, lon)
	assert.InDelta(t, 90, b, 0.01)
}

func TestDestinationPointZeroDistance(t *testing.T) {
	lat, lon := DestinationPoint(12.5, 45.25, 123, 0)
	assert.InDelta(t, 12.5, lat, 1e-9)
	assert.InDelta(t, 45.25, lon, 1e-9)
}

func TestNormalizeHeading(t *testing.T) {
	assert.Equal(t, 0.0, NormalizeHeading(360))
	assert.Equal(t, 270.0, NormalizeHeading(-90))
	assert.Equal(t, 45.0, NormalizeHeading(405))
}

func TestToECEF(t *testing.T) {
	x, y, z := ToECEF(0, 0, 0)
	assert.InDelta(t, 6378137.0, x, 1e-3)
	assert.InDelta(t, 0, y, 1e-3)
	assert.InDelta(t, 0, z, 1e-3)

	x, y, z = ToECEF(90, 0, 0)
	require.InDelta(t, 0, x, 1e-3)
	require.InDelta(t, 0, y, 1e-3)
	// Polar radius
	assert.InDelta(t, 6356752.3, z, 0.1)
	assert.False(t, math.IsNaN(z))
}
