package resource

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_CacheBudget(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	assert.True(t, c.TryAcquireMemory(60))
	assert.True(t, c.TryAcquireMemory(40))
	assert.False(t, c.TryAcquireMemory(1))
	assert.Equal(t, int64(100), c.MemoryUsage())

	c.ReleaseMemory(40)
	assert.True(t, c.TryAcquireMemory(30))
	assert.Equal(t, int64(90), c.Stats().MemoryBytes)

	assert.True(t, c.TryAcquireMemory(0))
	c.ReleaseMemory(-5)
	assert.Equal(t, int64(90), c.MemoryUsage())
}

func TestController_CacheBudgetConcurrent(t *testing.T) {
	const limit = 1000
	c := NewController(Config{MemoryLimitBytes: limit})

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				if c.TryAcquireMemory(7) {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit/7, granted)
	assert.LessOrEqual(t, c.MemoryUsage(), int64(limit))
}

func TestController_UntrackedLimit(t *testing.T) {
	c := NewController(Config{})

	assert.True(t, c.TryAcquireMemory(1<<40))
	c.ReleaseMemory(1 << 39)
	assert.Equal(t, int64(1<<39), c.MemoryUsage())
}

func TestController_Inflight(t *testing.T) {
	c := NewController(Config{MaxInflight: 2})

	require.NoError(t, c.AcquireBackground(t.Context()))
	require.NoError(t, c.AcquireBackground(t.Context()))
	assert.Equal(t, int64(2), c.Inflight())
	assert.False(t, c.TryAcquireBackground())

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireBackground(ctx), context.DeadlineExceeded)

	c.ReleaseBackground()
	assert.True(t, c.TryAcquireBackground())

	st := c.Stats()
	assert.Equal(t, int64(2), st.Inflight)
	assert.Equal(t, int64(3), st.Admitted)
	assert.Equal(t, int64(2), st.Rejected)
	assert.Zero(t, st.Waiting)
}

func TestController_WaitingRequests(t *testing.T) {
	c := NewController(Config{MaxInflight: 1})
	require.NoError(t, c.AcquireBackground(t.Context()))

	done := make(chan error, 1)
	go func() { done <- c.AcquireBackground(context.Background()) }()

	require.Eventually(t, func() bool { return c.Stats().Waiting == 1 }, time.Second, time.Millisecond)
	c.ReleaseBackground()
	require.NoError(t, <-done)
	assert.Zero(t, c.Stats().Waiting)
	c.ReleaseBackground()
}

func TestController_Rate(t *testing.T) {
	c := NewController(Config{MaxInflight: 10, RequestsPerSec: 1, Burst: 1})

	assert.True(t, c.TryAcquireBackground())
	c.ReleaseBackground()

	// bucket is empty, the next token is a second away
	assert.False(t, c.TryAcquireBackground())
}

func TestController_Nil(t *testing.T) {
	var c *Controller
	require.NoError(t, c.AcquireBackground(t.Context()))
	assert.True(t, c.TryAcquireBackground())
	c.ReleaseBackground()
	assert.True(t, c.TryAcquireMemory(10))
	c.ReleaseMemory(10)
	assert.Zero(t, c.MemoryUsage())
	assert.Zero(t, c.Inflight())
	assert.Equal(t, Stats{}, c.Stats())
}

func TestController_Defaults(t *testing.T) {
	c := NewController(Config{})
	assert.Equal(t, int64(DefaultMaxInflight), c.Config().MaxInflight)
	assert.Equal(t, DefaultMaxInflight, c.Config().Burst)
}
