package simulation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
)

// entry is one active drone. Its mutex serializes every read and write of
// the drone's state, so a drone is never advanced twice at once.
type entry struct {
	id string

	mu    sync.Mutex
	state *models.DroneSimState
	// legs are the waypoints still to fly after the current destination
	legs []models.Coordinates
	// completionTask is the pending delivery completion, if any
	completionTask string
	removed        bool
}

// Registry manages the active drones
type Registry struct {
	mu     sync.RWMutex
	drones map[string]*entry
}

// NewRegistry creates a new, empty registry
func NewRegistry() *Registry {
	return &Registry{
		drones: make(map[string]*entry),
	}
}

// add inserts a fully built state. Entries become visible only once complete.
func (r *Registry) add(state *models.DroneSimState) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.drones[state.DroneID]; exists {
		return nil, fmt.Errorf("drone %s already active", state.DroneID)
	}

	e := &entry{id: state.DroneID, state: state}
	r.drones[state.DroneID] = e
	return e, nil
}

func (r *Registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.drones[id]
	return e, ok
}

func (r *Registry) remove(id string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.drones[id]
	if ok {
		delete(r.drones, id)
	}
	return e, ok
}

// entries returns the active entries ordered by drone ID
func (r *Registry) entries() []*entry {
	r.mu.RLock()
	list := make([]*entry, 0, len(r.drones))
	for _, e := range r.drones {
		list = append(list, e)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	return list
}

// Has reports whether a drone is active
func (r *Registry) Has(id string) bool {
	_, ok := r.get(id)
	return ok
}

// IDs returns the active drone IDs in sorted order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.drones))
	for id := range r.drones {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of active drones
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.drones)
}

// allIdle reports whether every active drone is on the ground
func (r *Registry) allIdle() bool {
	for _, e := range r.entries() {
		e.mu.Lock()
		idle := e.state.Mode == models.ModeIdle
		e.mu.Unlock()
		if !idle {
			return false
		}
	}
	return true
}

// removeIdle drops every idle drone and returns the IDs left airborne
func (r *Registry) removeIdle() []string {
	var airborne []string
	for _, e := range r.entries() {
		e.mu.Lock()
		idle := e.state.Mode == models.ModeIdle
		if idle {
			e.removed = true
		}
		e.mu.Unlock()

		if idle {
			r.remove(e.id)
		} else {
			airborne = append(airborne, e.id)
		}
	}
	return airborne
}
