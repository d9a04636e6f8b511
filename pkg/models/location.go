package models

import "github.com/picogrid/fleet-dispatch-sim/pkg/geo"

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// DistanceMeters returns the great-circle distance to another point in meters.
func (c Coordinates) DistanceMeters(other Coordinates) float64 {
	return geo.DistanceMeters(c.Latitude, c.Longitude, other.Latitude, other.Longitude)
}

// DistanceKm returns the great-circle distance to another point in kilometers.
func (c Coordinates) DistanceKm(other Coordinates) float64 {
	return geo.DistanceKm(c.Latitude, c.Longitude, other.Latitude, other.Longitude)
}

// Position is a point in space: degrees, degrees, meters above ground.
type Position struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Altitude  float64 `json:"altitude" yaml:"altitude"`
}

// Coordinates drops the altitude component.
func (p Position) Coordinates() Coordinates {
	return Coordinates{Latitude: p.Latitude, Longitude: p.Longitude}
}

// ECEF returns the Earth-Centered, Earth-Fixed form of the position.
func (p Position) ECEF() [3]float64 {
	x, y, z := geo.ToECEF(p.Latitude, p.Longitude, p.Altitude)
	return [3]float64{x, y, z}
}

// Location is a named delivery endpoint.
type Location struct {
	Coordinates `yaml:",inline"`
	Address     string `json:"address,omitempty" yaml:"address,omitempty"`
}
