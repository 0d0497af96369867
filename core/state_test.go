package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_String(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "pre_shutdown", StatePreShutdown.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.Equal(t, "unknown", State(-1).String())
}

func TestState_TearingDown(t *testing.T) {
	for s := StateInvalid; s <= StateStopped; s++ {
		assert.Equal(t, s >= StateStopping, s.TearingDown(), s.String())
	}
	assert.True(t, TearingDown(nil))
	assert.False(t, TearingDown(NewStateTracker(StatePreShutdown)))
}

func TestStateTracker_Advance(t *testing.T) {
	tr := NewStateTracker(StateInitialized)

	assert.True(t, tr.Advance(StateRunning))
	assert.False(t, tr.Advance(StateStarting))
	assert.Equal(t, StateRunning, tr.State())

	assert.True(t, tr.Advance(StateSuspended))
	assert.True(t, tr.Advance(StateRunning))
	assert.True(t, tr.Advance(StateStopping))
	assert.False(t, tr.Advance(StateRunning))

	assert.Equal(t, StateStopping, tr.Set(StateInitialized))
	assert.Equal(t, StateInitialized, tr.State())
}

func TestStateTracker_ConcurrentAdvance(t *testing.T) {
	tr := NewStateTracker(StateRunning)

	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Advance(StateStopping) {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Equal(t, StateStopping, tr.State())
}
