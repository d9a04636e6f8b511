package schedule

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Executor runs deferred tasks. Every task gets an ID so that it can be
// cancelled before it fires.
type Executor interface {
	// Schedule runs fn once after delay and returns the task ID.
	Schedule(delay time.Duration, fn func()) string
	// Cancel stops a pending task. It reports whether the task was still pending.
	Cancel(id string) bool
	// CancelAll stops every pending task and returns how many were stopped.
	CancelAll() int
	// Pending returns the number of tasks that have not fired or been cancelled.
	Pending() int
}

// TimerExecutor runs tasks on runtime timers.
type TimerExecutor struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewTimerExecutor creates an empty TimerExecutor.
func NewTimerExecutor() *TimerExecutor {
	return &TimerExecutor{timers: make(map[string]*time.Timer)}
}

func (e *TimerExecutor) Schedule(delay time.Duration, fn func()) string {
	id := uuid.NewString()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.timers[id] = time.AfterFunc(delay, func() {
		e.mu.Lock()
		_, pending := e.timers[id]
		delete(e.timers, id)
		e.mu.Unlock()

		// Cancelled between the timer firing and acquiring the lock
		if !pending {
			return
		}
		fn()
	})
	return id
}

func (e *TimerExecutor) Cancel(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.timers[id]
	if !ok {
		return false
	}
	t.Stop()
	delete(e.timers, id)
	return true
}

func (e *TimerExecutor) CancelAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.timers)
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
	return n
}

func (e *TimerExecutor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}

type manualTask struct {
	id  string
	at  time.Time
	seq uint64
	fn  func()
}

// ManualExecutor runs tasks only when its clock is advanced. Tasks due at the
// same instant run in scheduling order.
type ManualExecutor struct {
	clock *ManualClock

	mu    sync.Mutex
	seq   uint64
	tasks map[string]*manualTask
}

// NewManualExecutor creates an executor driven by clock.
func NewManualExecutor(clock *ManualClock) *ManualExecutor {
	return &ManualExecutor{
		clock: clock,
		tasks: make(map[string]*manualTask),
	}
}

func (e *ManualExecutor) Schedule(delay time.Duration, fn func()) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	t := &manualTask{
		id:  uuid.NewString(),
		at:  e.clock.Now().Add(delay),
		seq: e.seq,
		fn:  fn,
	}
	e.tasks[t.id] = t
	return t.id
}

func (e *ManualExecutor) Cancel(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.tasks[id]; !ok {
		return false
	}
	delete(e.tasks, id)
	return true
}

func (e *ManualExecutor) CancelAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.tasks)
	e.tasks = make(map[string]*manualTask)
	return n
}

func (e *ManualExecutor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

// Advance moves the clock forward by d and runs every task now due.
// It returns the number of tasks run.
func (e *ManualExecutor) Advance(d time.Duration) int {
	e.clock.Advance(d)
	return e.RunDue()
}

// RunDue runs every task due at the current clock time. Tasks are run
// without holding the executor lock so they may schedule or cancel others.
func (e *ManualExecutor) RunDue() int {
	ran := 0
	for {
		t := e.popDue()
		if t == nil {
			return ran
		}
		t.fn()
		ran++
	}
}

func (e *ManualExecutor) popDue() *manualTask {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	due := make([]*manualTask, 0, len(e.tasks))
	for _, t := range e.tasks {
		if !t.at.After(now) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].at.Equal(due[j].at) {
			return due[i].at.Before(due[j].at)
		}
		return due[i].seq < due[j].seq
	})
	delete(e.tasks, due[0].id)
	return due[0]
}
