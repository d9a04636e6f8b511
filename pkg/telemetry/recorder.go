// Package telemetry turns simulated drone state into telemetry samples and
// fans them out to persistence and live subscribers.
package telemetry

import (
	"sync"
	"time"

	"github.com/picogrid/fleet-dispatch-sim/pkg/metrics"
	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
	"github.com/picogrid/fleet-dispatch-sim/pkg/store"
)

// AlertEvent is published when a drone raises a new alert.
type AlertEvent struct {
	DroneID string       `json:"droneId"`
	OrderID string       `json:"orderId,omitempty"`
	Alert   models.Alert `json:"alert"`
}

// Recorder snapshots drone state once per tick and hands the sample to the
// buffer. It also remembers the newest sample per drone.
type Recorder struct {
	buffer  *Buffer
	metrics *metrics.Collector

	mu     sync.RWMutex
	latest map[string]models.TelemetrySample
}

// NewRecorder creates a recorder writing into buffer.
func NewRecorder(buffer *Buffer, m *metrics.Collector) *Recorder {
	return &Recorder{
		buffer:  buffer,
		metrics: m,
		latest:  make(map[string]models.TelemetrySample),
	}
}

// Emit records the state as of at, together with the alerts raised during
// the tick, and returns the sample.
func (r *Recorder) Emit(s *models.DroneSimState, raised []models.Alert, at time.Time) models.TelemetrySample {
	sample := models.NewTelemetrySample(s, at)

	r.mu.Lock()
	r.latest[s.DroneID] = sample
	r.mu.Unlock()

	r.buffer.QueueSample(sample)
	for _, a := range raised {
		r.buffer.QueuePublish(store.DroneAlertsChannel(s.DroneID), AlertEvent{
			DroneID: s.DroneID,
			OrderID: s.OrderID,
			Alert:   a,
		})
		r.metrics.AlertRaised(string(a.Type))
	}
	r.metrics.SamplesRecorded(1)
	return sample
}

// PublishEvent queues a fleet-wide event for fan-out.
func (r *Recorder) PublishEvent(channel string, payload any) {
	r.buffer.QueuePublish(channel, payload)
}

// Latest returns the newest sample emitted for a drone.
func (r *Recorder) Latest(droneID string) (models.TelemetrySample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.latest[droneID]
	return s, ok
}

// Forget drops the remembered sample for a drone.
func (r *Recorder) Forget(droneID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.latest, droneID)
}
