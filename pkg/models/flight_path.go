package models

import "time"

// FlightPathCapacity is the number of trail points retained per drone.
const FlightPathCapacity = 100

// PathPoint is one recorded point of a drone's trail.
type PathPoint struct {
	Position  Position  `json:"position"`
	Timestamp time.Time `json:"timestamp"`
}

// FlightPath is a fixed-capacity ring buffer of trail points. When full the
// oldest point is overwritten.
type FlightPath struct {
	points [FlightPathCapacity]PathPoint
	start  int
	size   int
}

// Append records a point, evicting the oldest one when the buffer is full.
func (f *FlightPath) Append(p PathPoint) {
	if f.size < FlightPathCapacity {
		f.points[(f.start+f.size)%FlightPathCapacity] = p
		f.size++
		return
	}
	f.points[f.start] = p
	f.start = (f.start + 1) % FlightPathCapacity
}

// Len returns the number of retained points.
func (f *FlightPath) Len() int {
	return f.size
}

// Points returns the retained points, oldest first.
func (f *FlightPath) Points() []PathPoint {
	out := make([]PathPoint, f.size)
	for i := 0; i < f.size; i++ {
		out[i] = f.points[(f.start+i)%FlightPathCapacity]
	}
	return out
}

// Last returns the newest point.
func (f *FlightPath) Last() (PathPoint, bool) {
	if f.size == 0 {
		return PathPoint{}, false
	}
	return f.points[(f.start+f.size-1)%FlightPathCapacity], true
}
