package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
)

// MemoryDroneRepository is an in-memory, thread-safe DroneRepository.
// Records are copied on the way in and out.
type MemoryDroneRepository struct {
	mu     sync.RWMutex
	drones map[string]*models.DroneRecord
	now    func() time.Time
}

// NewMemoryDroneRepository creates a repository seeded with the given drones.
func NewMemoryDroneRepository(seed ...*models.DroneRecord) *MemoryDroneRepository {
	r := &MemoryDroneRepository{
		drones: make(map[string]*models.DroneRecord, len(seed)),
		now:    time.Now,
	}
	for _, d := range seed {
		r.drones[d.ID] = d.Clone()
	}
	return r
}

func (r *MemoryDroneRepository) Get(_ context.Context, id string) (*models.DroneRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.drones[id]
	if !ok {
		return nil, fmt.Errorf("drone %q: %w", id, models.ErrDroneNotFound)
	}
	return d.Clone(), nil
}

// Find returns matching drones ordered by ID.
func (r *MemoryDroneRepository) Find(_ context.Context, filter DroneFilter) ([]*models.DroneRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]*models.DroneRecord, 0, len(r.drones))
	for _, d := range r.drones {
		if filter.Match(d) {
			res = append(res, d.Clone())
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (r *MemoryDroneRepository) Save(ctx context.Context, d *models.DroneRecord) error {
	if err := ctx.Err(); err != nil {
		return &models.PersistenceError{Op: "save drone", ID: d.ID, Err: err}
	}
	if d.ID == "" {
		return &models.PersistenceError{Op: "save drone", Err: fmt.Errorf("empty id")}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c := d.Clone()
	c.UpdatedAt = r.now()
	r.drones[d.ID] = c
	return nil
}

// Len returns the number of stored drones.
func (r *MemoryDroneRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.drones)
}

// MemoryOrderRepository is an in-memory, thread-safe OrderRepository.
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*models.OrderRecord
	now    func() time.Time
}

// NewMemoryOrderRepository creates a repository seeded with the given orders.
func NewMemoryOrderRepository(seed ...*models.OrderRecord) *MemoryOrderRepository {
	r := &MemoryOrderRepository{
		orders: make(map[string]*models.OrderRecord, len(seed)),
		now:    time.Now,
	}
	for _, o := range seed {
		r.orders[o.ID] = o.Clone()
	}
	return r
}

func (r *MemoryOrderRepository) Get(_ context.Context, id string) (*models.OrderRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %q: %w", id, models.ErrOrderNotFound)
	}
	return o.Clone(), nil
}

// Find returns matching orders ordered by ID.
func (r *MemoryOrderRepository) Find(_ context.Context, filter OrderFilter) ([]*models.OrderRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]*models.OrderRecord, 0, len(r.orders))
	for _, o := range r.orders {
		if filter.Match(o) {
			res = append(res, o.Clone())
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (r *MemoryOrderRepository) Save(ctx context.Context, o *models.OrderRecord) error {
	if err := ctx.Err(); err != nil {
		return &models.PersistenceError{Op: "save order", ID: o.ID, Err: err}
	}
	if o.ID == "" {
		return &models.PersistenceError{Op: "save order", Err: fmt.Errorf("empty id")}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c := o.Clone()
	c.UpdatedAt = r.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}
	r.orders[o.ID] = c
	return nil
}

// MemoryTelemetrySink keeps the most recent samples per drone in memory.
type MemoryTelemetrySink struct {
	mu       sync.RWMutex
	perDrone int
	samples  map[string][]models.TelemetrySample
	total    int
}

// NewMemoryTelemetrySink keeps at most perDrone samples for each drone.
func NewMemoryTelemetrySink(perDrone int) *MemoryTelemetrySink {
	if perDrone <= 0 {
		perDrone = 1000
	}
	return &MemoryTelemetrySink{
		perDrone: perDrone,
		samples:  make(map[string][]models.TelemetrySample),
	}
}

func (s *MemoryTelemetrySink) Record(_ context.Context, sample models.TelemetrySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.samples[sample.DroneID], sample)
	if len(list) > s.perDrone {
		list = list[len(list)-s.perDrone:]
	}
	s.samples[sample.DroneID] = list
	s.total++
	return nil
}

// Samples returns a copy of the retained samples for a drone, oldest first.
func (s *MemoryTelemetrySink) Samples(droneID string) []models.TelemetrySample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.TelemetrySample(nil), s.samples[droneID]...)
}

// Total returns how many samples were recorded since creation.
func (s *MemoryTelemetrySink) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}
