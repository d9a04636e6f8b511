package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/fleet-dispatch-sim/pkg/logger"
	"github.com/picogrid/fleet-dispatch-sim/pkg/metrics"
	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
	"github.com/picogrid/fleet-dispatch-sim/pkg/store"
)

type captureBroadcaster struct {
	mu   sync.Mutex
	msgs map[string][]any
	err  error
}

func (c *captureBroadcaster) Publish(_ context.Context, channel string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.msgs == nil {
		c.msgs = map[string][]any{}
	}
	c.msgs[channel] = append(c.msgs[channel], payload)
	return nil
}

func (c *captureBroadcaster) count(channel string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs[channel])
}

type flakySink struct {
	mu       sync.Mutex
	failures int
	recorded []models.TelemetrySample
}

func (f *flakySink) Record(_ context.Context, s models.TelemetrySample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("disk full")
	}
	f.recorded = append(f.recorded, s)
	return nil
}

func newState(id string, level float64) *models.DroneSimState {
	return &models.DroneSimState{
		DroneID:  id,
		Position: models.Position{Latitude: 40, Longitude: -74, Altitude: 50},
		Battery:  models.Battery{Level: level},
		Mode:     models.ModeFlying,
		Alerts:   models.Alerts{},
	}
}

func TestRecorderFlushesToAllTargets(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	drones := store.NewMemoryDroneRepository(&models.DroneRecord{ID: "d1", Status: models.DroneInFlight, BatteryLevel: 90})
	sink := store.NewMemoryTelemetrySink(10)
	bc := &captureBroadcaster{}

	buf := NewBuffer(BufferConfig{}, Targets{Sink: sink, Broadcaster: bc, Drones: drones}, logger.Discard(), m)
	rec := NewRecorder(buf, m)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	alert := models.Alert{Type: models.AlertBatteryLow, Severity: models.SeverityCritical, RaisedAt: now}
	rec.Emit(newState("d1", 55), nil, now)
	rec.Emit(newState("d1", 54), []models.Alert{alert}, now.Add(2*time.Second))

	require.NoError(t, buf.Flush(ctx))

	assert.Equal(t, 2, sink.Total())
	assert.Equal(t, 2, bc.count(store.DroneTelemetryChannel("d1")))
	assert.Equal(t, 1, bc.count(store.DroneAlertsChannel("d1")))

	d, err := drones.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 54.0, d.BatteryLevel)
	assert.Equal(t, now.Add(2*time.Second), d.LastTelemetryAt)
	assert.Equal(t, models.DroneInFlight, d.Status)

	latest, ok := rec.Latest("d1")
	require.True(t, ok)
	assert.Equal(t, 54.0, latest.Battery.Level)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Alerts.WithLabelValues("battery_low")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TelemetrySamples))
}

func TestFailedSinkWritesAreRequeued(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	sink := &flakySink{failures: 1}
	buf := NewBuffer(BufferConfig{Concurrency: 1}, Targets{Sink: sink}, logger.Discard(), m)
	rec := NewRecorder(buf, m)

	rec.Emit(newState("d1", 80), nil, time.Now())
	err = buf.Flush(ctx)
	var perr *models.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "d1", perr.ID)
	assert.Equal(t, 1, buf.Stats().PendingSamples)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlushFailures.WithLabelValues(TargetSink)))

	require.NoError(t, buf.Flush(ctx))
	assert.Len(t, sink.recorded, 1)
	assert.Zero(t, buf.Stats().PendingSamples)
}

func TestPublishFailuresAreNotFatal(t *testing.T) {
	bc := &captureBroadcaster{err: errors.New("broker down")}
	buf := NewBuffer(BufferConfig{}, Targets{Broadcaster: bc}, logger.Discard(), nil)
	NewRecorder(buf, nil).Emit(newState("d1", 80), nil, time.Now())

	assert.NoError(t, buf.Flush(context.Background()))
	st := buf.Stats()
	assert.Equal(t, int64(1), st.PublishFailures)
	assert.Zero(t, st.PendingPublishes)
}

func TestRecordUpdateKeepsNewest(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	drones := store.NewMemoryDroneRepository(&models.DroneRecord{ID: "d1", LastTelemetryAt: now.Add(time.Minute), BatteryLevel: 70})
	buf := NewBuffer(BufferConfig{}, Targets{Drones: drones}, logger.Discard(), nil)
	NewRecorder(buf, nil).Emit(newState("d1", 10), nil, now)

	require.NoError(t, buf.Flush(ctx))
	d, err := drones.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 70.0, d.BatteryLevel)
}

func TestUnknownDroneRecordIsIgnored(t *testing.T) {
	buf := NewBuffer(BufferConfig{}, Targets{Drones: store.NewMemoryDroneRepository()}, logger.Discard(), nil)
	NewRecorder(buf, nil).Emit(newState("ghost", 50), nil, time.Now())
	assert.NoError(t, buf.Flush(context.Background()))
}

func TestBacklogIsBounded(t *testing.T) {
	buf := NewBuffer(BufferConfig{MaxPending: 3, MaxBatchSize: 1000}, Targets{}, logger.Discard(), nil)
	rec := NewRecorder(buf, nil)
	for i := 0; i < 5; i++ {
		rec.Emit(newState("d1", 50), nil, time.Now())
	}
	st := buf.Stats()
	assert.Equal(t, 3, st.PendingSamples)
	assert.Equal(t, int64(2), st.SamplesDropped)
}

func TestStartFlushesPeriodically(t *testing.T) {
	sink := store.NewMemoryTelemetrySink(10)
	buf := NewBuffer(BufferConfig{FlushInterval: 10 * time.Millisecond}, Targets{Sink: sink}, logger.Discard(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	buf.Start(ctx)

	NewRecorder(buf, nil).Emit(newState("d1", 50), nil, time.Now())
	require.Eventually(t, func() bool { return sink.Total() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, buf.Stop(ctx))
	require.NoError(t, buf.Stop(ctx))
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	data     [][]byte
}

func (f *fakePublisher) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.data = append(f.data, data)
	return &jetstream.PubAck{Stream: "FLEET"}, nil
}

func TestNATSBroadcasterSubjects(t *testing.T) {
	pub := &fakePublisher{}
	b := NewNATSBroadcaster(pub, "fleet.")

	assert.Equal(t, "fleet.drones.d1.telemetry", b.Subject("drones/d1/telemetry"))
	assert.Equal(t, "fleet.fleet.events", b.Subject(store.FleetEventsChannel))

	sample := models.NewTelemetrySample(newState("d1", 50), time.Now())
	require.NoError(t, b.Publish(context.Background(), store.DroneTelemetryChannel("d1"), sample))
	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "fleet.drones.d1.telemetry", pub.subjects[0])

	var decoded models.TelemetrySample
	require.NoError(t, json.Unmarshal(pub.data[0], &decoded))
	assert.Equal(t, sample.ID, decoded.ID)
	assert.Equal(t, models.ModeFlying, decoded.Mode)

	assert.NoError(t, b.Close())
}

func TestHubDeliversSubscribedChannels(t *testing.T) {
	hub := NewHub(logger.Discard())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(subscribeMessage{Type: "subscribe", Prefixes: []string{"orders/"}}))
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for _, c := range hub.clients {
			return !c.wants("drones/d1/telemetry")
		}
		return false
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), "drones/d1/telemetry", map[string]int{"x": 1}))
	require.NoError(t, hub.Publish(context.Background(), "orders/o1/tracking", map[string]int{"percent": 50}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, "orders/o1/tracking", env.Channel)
	assert.JSONEq(t, `{"percent":50}`, string(env.Payload))
}

func TestMultiBroadcasterJoinsErrors(t *testing.T) {
	ok := &captureBroadcaster{}
	bad := &captureBroadcaster{err: errors.New("nope")}
	m := MultiBroadcaster{ok, nil, bad}

	err := m.Publish(context.Background(), "fleet/events", "x")
	assert.Error(t, err)
	assert.Equal(t, 1, ok.count("fleet/events"))
}
