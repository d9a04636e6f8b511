package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
)

func TestMemoryDroneRepositoryCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryDroneRepository(&models.DroneRecord{ID: "d1", Status: models.DroneAvailable})

	d, err := repo.Get(ctx, "d1")
	require.NoError(t, err)
	d.Status = models.DroneMaintenance

	again, err := repo.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DroneAvailable, again.Status)

	require.NoError(t, repo.Save(ctx, d))
	again, err = repo.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DroneMaintenance, again.Status)
	assert.False(t, again.UpdatedAt.IsZero())

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrDroneNotFound)
}

func TestMemoryDroneRepositoryFind(t *testing.T) {
	ctx := context.Background()
	yes := true
	repo := NewMemoryDroneRepository(
		&models.DroneRecord{ID: "c", Status: models.DroneAvailable, EmergencyCapable: true},
		&models.DroneRecord{ID: "a", Status: models.DroneEmergencyStandby, EmergencyCapable: true},
		&models.DroneRecord{ID: "b", Status: models.DroneInFlight},
	)

	got, err := repo.Find(ctx, DroneFilter{
		Statuses:         []models.DroneStatus{models.DroneAvailable, models.DroneEmergencyStandby},
		EmergencyCapable: &yes,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)

	got, err = repo.Find(ctx, DroneFilter{ExcludeID: []string{"a", "b"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)
}

func TestMemoryOrderRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOrderRepository(
		&models.OrderRecord{ID: "o1", Status: models.OrderInTransit, Priority: models.PriorityNormal, AssignedDrone: "d1"},
		&models.OrderRecord{ID: "o2", Status: models.OrderDelivered, Priority: models.PriorityHigh},
	)

	got, err := repo.Find(ctx, OrderFilter{Statuses: []models.OrderStatus{models.OrderInTransit, models.OrderProcessing}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "o1", got[0].ID)

	got, err = repo.Find(ctx, OrderFilter{AssignedDrone: "d1", Priorities: []models.Priority{models.PriorityHigh}})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = repo.Get(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrOrderNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = repo.Save(cancelled, &models.OrderRecord{ID: "o3"})
	var perr *models.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "o3", perr.ID)
}

func TestMemoryTelemetrySinkBounded(t *testing.T) {
	sink := NewMemoryTelemetrySink(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, sink.Record(context.Background(), models.TelemetrySample{
			DroneID:    "d1",
			RecordedAt: time.Unix(int64(i), 0),
		}))
	}
	samples := sink.Samples("d1")
	require.Len(t, samples, 3)
	assert.Equal(t, int64(2), samples[0].RecordedAt.Unix())
	assert.Equal(t, 5, sink.Total())
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := NewKeyedMutex()
	counter := map[string]int{}
	var mapMu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.LockAll("b", "a", "a")
			defer unlock()

			mapMu.Lock()
			counter["a"]++
			counter["b"]++
			mapMu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter["a"])
	assert.Equal(t, 50, counter["b"])

	km.mu.Lock()
	assert.Empty(t, km.locks)
	km.mu.Unlock()
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	unlockA := km.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := km.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked by lock on a")
	}
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "drones/d1/telemetry", DroneTelemetryChannel("d1"))
	assert.Equal(t, "drones/d1/alerts", DroneAlertsChannel("d1"))
	assert.Equal(t, "orders/o1/tracking", OrderTrackingChannel("o1"))
}
