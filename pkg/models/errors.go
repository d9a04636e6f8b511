package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCandidateDrone means eligibility filtering left nothing to assign.
	ErrNoCandidateDrone = errors.New("no candidate drone available")
	ErrDroneNotFound    = errors.New("drone not found")
	ErrOrderNotFound    = errors.New("order not found")
	// ErrDroneNotActive is returned for drones not loaded into the simulation.
	ErrDroneNotActive = errors.New("drone is not active in the simulation")
	// ErrDroneGrounded is returned when a drone in an emergency descent is given a new mission.
	ErrDroneGrounded = errors.New("drone is grounded until it lands")
)

// TickStepError is a failure while advancing one drone during a tick.
type TickStepError struct {
	DroneID string
	Err     error
}

func (e *TickStepError) Error() string {
	return fmt.Sprintf("tick step failed for drone %s: %v", e.DroneID, e.Err)
}

func (e *TickStepError) Unwrap() error { return e.Err }

// PersistenceError is a failed write to a repository or telemetry sink.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ManualInterventionError means an emergency order could not be reassigned
// and ground staff must take over.
type ManualInterventionError struct {
	OrderID string
	Reason  FailoverReason
}

func (e *ManualInterventionError) Error() string {
	return fmt.Sprintf("order %s requires manual intervention (%s): no backup drone available", e.OrderID, e.Reason)
}

// Is makes the error match ErrNoCandidateDrone.
func (e *ManualInterventionError) Is(target error) bool {
	return target == ErrNoCandidateDrone
}
