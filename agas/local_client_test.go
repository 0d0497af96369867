package agas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/gid"
	"github.com/hupe1980/gidref/internal/cache"
)

func newTestClient(t *testing.T, svc *Service, loc core.LocalityID) *LocalClient {
	t.Helper()
	c, err := NewLocalClient(svc, loc, cache.NewShardedLRU(128, nil))
	require.NoError(t, err)
	return c
}

func TestLocalClient_NewGID(t *testing.T) {
	svc := newTestService(t, 16)
	c := newTestClient(t, svc, 4)
	ctx := t.Context()

	seen := make(map[gid.GID]bool)
	for range allocationBatch + 10 {
		id, err := c.NewGID(ctx, core.ComponentFirstUser)
		require.NoError(t, err)
		assert.Equal(t, core.LocalityID(4), id.LocalityID())
		assert.Equal(t, core.ComponentFirstUser, id.ComponentType())
		assert.False(t, id.HasCredits())
		assert.False(t, seen[id], "duplicate %v", id)
		seen[id] = true
	}

	_, err := c.NewGID(ctx, core.ComponentInvalid)
	assert.ErrorIs(t, err, core.ErrBadParameter)
}

func TestLocalClient_ResolveCaching(t *testing.T) {
	svc := newTestService(t, 16)
	home := newTestClient(t, svc, 1)
	remote := newTestClient(t, svc, 2)
	ctx := t.Context()

	id, err := home.NewGID(ctx, core.ComponentFirstUser)
	require.NoError(t, err)
	addr := core.Address{Locality: 1, Type: core.ComponentFirstUser, LVA: 0x10}
	require.NoError(t, home.Bind(ctx, id, addr))

	// binding populates the home cache only
	got, ok := home.ResolveCached(id.WithLog2Credit(5))
	require.True(t, ok)
	assert.Equal(t, addr, got)
	_, ok = remote.ResolveCached(id)
	assert.False(t, ok)

	got, err = remote.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, addr, got)
	_, ok = remote.ResolveCached(id)
	assert.True(t, ok)

	remote.Forget(id)
	_, ok = remote.ResolveCached(id)
	assert.False(t, ok)

	_, err = home.Unbind(ctx, id)
	require.NoError(t, err)
	_, ok = home.ResolveCached(id)
	assert.False(t, ok)
}

func TestLocalClient_DontCache(t *testing.T) {
	svc := newTestService(t, 16)
	c := newTestClient(t, svc, 1)
	ctx := t.Context()

	id, err := c.NewGID(ctx, core.ComponentFirstUser)
	require.NoError(t, err)
	id = id.WithDontCache(true)
	require.NoError(t, c.Bind(ctx, id, core.Address{Locality: 1, Type: core.ComponentFirstUser}))

	_, ok := c.ResolveCached(id)
	assert.False(t, ok)
}

func TestLocalClient_NoCache(t *testing.T) {
	svc := newTestService(t, 16)
	c, err := NewLocalClient(svc, 1, nil)
	require.NoError(t, err)
	ctx := t.Context()

	id, err := c.NewGID(ctx, core.ComponentFirstUser)
	require.NoError(t, err)
	require.NoError(t, c.Bind(ctx, id, core.Address{Locality: 1, Type: core.ComponentFirstUser}))

	_, ok := c.ResolveCached(id)
	assert.False(t, ok)
	_, err = c.Resolve(ctx, id)
	assert.NoError(t, err)
}

func TestLocalClient_CreditDelegation(t *testing.T) {
	svc := newTestService(t, 16)
	c := newTestClient(t, svc, 1)
	ctx := t.Context()
	id := gid.Make(1, core.ComponentFirstUser, 99)

	n, err := c.IncrementCredit(ctx, id, 15)
	require.NoError(t, err)
	assert.Equal(t, int64(31), n)
	require.NoError(t, c.DecrementCredit(ctx, id, 1))

	n, err = svc.Credit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(30), n)
}

func TestNewLocalClient_Validation(t *testing.T) {
	_, err := NewLocalClient(nil, 1, nil)
	assert.ErrorIs(t, err, core.ErrBadParameter)
}
