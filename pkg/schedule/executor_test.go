package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualExecutorRunsInOrder(t *testing.T) {
	clock := NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	exec := NewManualExecutor(clock)

	var order []string
	exec.Schedule(30*time.Second, func() { order = append(order, "b") })
	exec.Schedule(10*time.Second, func() { order = append(order, "a") })
	exec.Schedule(30*time.Second, func() { order = append(order, "c") })

	assert.Equal(t, 0, exec.Advance(5*time.Second))
	assert.Equal(t, 3, exec.Pending())

	assert.Equal(t, 3, exec.Advance(25*time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Zero(t, exec.Pending())
}

func TestManualExecutorCancel(t *testing.T) {
	clock := NewManualClock(time.Now())
	exec := NewManualExecutor(clock)

	fired := false
	id := exec.Schedule(time.Second, func() { fired = true })
	exec.Schedule(time.Second, func() {})

	assert.True(t, exec.Cancel(id))
	assert.False(t, exec.Cancel(id))
	assert.Equal(t, 1, exec.CancelAll())

	exec.Advance(time.Minute)
	assert.False(t, fired)
}

func TestManualExecutorTaskCanReschedule(t *testing.T) {
	clock := NewManualClock(time.Now())
	exec := NewManualExecutor(clock)

	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			exec.Schedule(0, tick)
		}
	}
	exec.Schedule(time.Second, tick)

	exec.Advance(time.Second)
	assert.Equal(t, 3, count)
}

func TestTimerExecutorFiresAndCancels(t *testing.T) {
	exec := NewTimerExecutor()

	var fired atomic.Int32
	done := make(chan struct{})
	exec.Schedule(10*time.Millisecond, func() {
		fired.Add(1)
		close(done)
	})
	cancelled := exec.Schedule(10*time.Millisecond, func() { fired.Add(100) })
	require.True(t, exec.Cancel(cancelled))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not fire")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	assert.Zero(t, exec.Pending())
}

func TestTimerExecutorCancelAll(t *testing.T) {
	exec := NewTimerExecutor()
	var fired atomic.Int32
	for i := 0; i < 5; i++ {
		exec.Schedule(time.Hour, func() { fired.Add(1) })
	}
	assert.Equal(t, 5, exec.Pending())
	assert.Equal(t, 5, exec.CancelAll())
	assert.Zero(t, exec.Pending())
	assert.Zero(t, fired.Load())
}

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	assert.Equal(t, start.Add(time.Minute), c.Advance(time.Minute))
	c.Set(start)
	assert.Equal(t, start, c.Now())
}
