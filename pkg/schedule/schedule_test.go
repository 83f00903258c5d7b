package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualTickRunsUntilStopped(t *testing.T) {
	m := NewManual()
	runs := 0
	var task Task
	task = m.Every(2*time.Second, func() {
		runs++
		if runs == 3 {
			task.Stop()
		}
	})

	assert.Equal(t, 1, m.Active())
	for i := 0; i < 5; i++ {
		m.Tick()
	}
	assert.Equal(t, 3, runs)
	assert.Equal(t, 0, m.Active())
	assert.Equal(t, 0, m.Tick())
}

func TestManualAdvanceHonoursInterval(t *testing.T) {
	m := NewManual()
	runs := 0
	m.Every(2*time.Second, func() { runs++ })

	assert.Equal(t, 0, m.Advance(time.Second))
	assert.Equal(t, 1, m.Advance(time.Second))
	assert.Equal(t, 3, m.Advance(6*time.Second))
	assert.Equal(t, 4, runs)
}

func TestManualStopIsIdempotent(t *testing.T) {
	m := NewManual()
	task := m.Every(time.Second, func() {})
	task.Stop()
	task.Stop()
	assert.Equal(t, 0, m.Active())
}

func TestTickerStopsFiring(t *testing.T) {
	var runs atomic.Int32
	task := NewTicker().Every(5*time.Millisecond, func() { runs.Add(1) })

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)
	task.Stop()
	task.Stop()

	settled := runs.Load()
	time.Sleep(30 * time.Millisecond)
	// at most one tick can already be in flight when Stop is called
	assert.LessOrEqual(t, runs.Load(), settled+1)
}
