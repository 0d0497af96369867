package handle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/gidref/agas"
	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/credit"
	"github.com/hupe1980/gidref/gid"
	"github.com/hupe1980/gidref/metrics"
	"github.com/hupe1980/gidref/testutil"
)

type mockDestroyer struct {
	mock.Mock
}

func (m *mockDestroyer) Destroy(ctx context.Context, id gid.GID, addr core.Address) error {
	args := m.Called(ctx, id, addr)
	return args.Error(0)
}

type testEnv struct {
	client    *testutil.RecordingClient
	destroyer *mockDestroyer
	state     *core.StateTracker
	obs       *metrics.BasicObserver
	rt        *Runtime
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	client := testutil.NewRecordingClient(16)
	proto, err := credit.New(client, func(o *credit.Options) { o.InitialLog2 = 4 })
	require.NoError(t, err)

	env := &testEnv{
		client:    client,
		destroyer: new(mockDestroyer),
		state:     core.NewStateTracker(core.StateRunning),
		obs:       &metrics.BasicObserver{},
	}
	dispatcher := agas.NewDispatcher(client, func(o *agas.DispatcherOptions) { o.Observer = env.obs })
	t.Cleanup(func() { require.NoError(t, dispatcher.Close(context.Background())) })

	env.rt = &Runtime{
		Locality:   1,
		Client:     client,
		Destroyer:  env.destroyer,
		State:      env.state,
		Protocol:   proto,
		Dispatcher: dispatcher,
		Observer:   env.obs,
	}
	return env
}

func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, e.rt.Dispatcher.Wait(t.Context()))
}

func component(seq uint64) gid.GID {
	return gid.Make(1, core.ComponentFirstUser, seq)
}

func TestManagement_String(t *testing.T) {
	assert.Equal(t, "unknown_deleter", UnknownDeleter.String())
	assert.Equal(t, "unmanaged", Unmanaged.String())
	assert.Equal(t, "managed", Managed.String())
	assert.Equal(t, "managed_move_credit", ManagedMoveCredit.String())
	assert.Equal(t, "invalid", Management(7).String())
	assert.Equal(t, "invalid", Management(-2).String())

	assert.False(t, UnknownDeleter.Valid())
	assert.True(t, ManagedMoveCredit.Valid())
	assert.False(t, Unmanaged.IsManaged())
}

func TestNew(t *testing.T) {
	env := newTestEnv(t)

	id := New(env.rt, component(1).WithLog2Credit(4), Unmanaged)
	assert.False(t, id.GID().HasCredits(), "unmanaged handles carry no credit")
	assert.Equal(t, int64(1), id.RefCount())

	assert.Panics(t, func() { New(env.rt, component(1), UnknownDeleter) })

	var zero ID
	assert.False(t, zero.IsValid())
	assert.Equal(t, gid.Invalid, zero.GID())
	assert.Equal(t, UnknownDeleter, zero.Management())
	assert.Equal(t, "{invalid}", zero.String())
	assert.Panics(t, func() { zero.Release() })

	id.Release()
}

func TestRelease_Unmanaged(t *testing.T) {
	env := newTestEnv(t)

	id := New(env.rt, component(1), Unmanaged)
	c := id.Clone()

	assert.Equal(t, OutcomeRetained, id.Release().Outcome)
	res := c.Release()
	assert.Equal(t, metrics.OutcomeFreed, res.Outcome)
	assert.True(t, res.Final())
	require.NoError(t, res.Err)

	env.drain(t)
	assert.Zero(t, env.client.Calls())
	assert.Zero(t, env.client.Resolves(), "unmanaged release performs no cache lookup")
	env.destroyer.AssertNotCalled(t, "Destroy", mock.Anything, mock.Anything, mock.Anything)
}

func TestRelease_LocalFastPath(t *testing.T) {
	env := newTestEnv(t)

	g := component(2).WithLog2Credit(4)
	addr := core.Address{Locality: 1, Type: core.ComponentFirstUser, LVA: 0x2}
	env.client.SetCached(g, addr)
	env.destroyer.On("Destroy", mock.Anything, g.Stripped(), addr).Return(nil).Once()

	id := New(env.rt, g, Managed)
	res := id.Release()

	assert.Equal(t, metrics.OutcomeDestroyedLocally, res.Outcome)
	require.NoError(t, res.Err)

	env.drain(t)
	assert.Empty(t, env.client.Decrements())
	env.destroyer.AssertExpectations(t)
	assert.Equal(t, int64(1), env.obs.Releases(metrics.OutcomeDestroyedLocally))
}

func TestRelease_RemotePath(t *testing.T) {
	env := newTestEnv(t)

	g := component(3).WithLog2Credit(4)
	env.client.SetCached(g, core.Address{Locality: 1, Type: core.ComponentFirstUser})

	id := New(env.rt, g, Managed)
	sent, err := id.SplitCredit(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(8), sent.Credit())

	res := id.Release()
	assert.Equal(t, metrics.OutcomeDecrementSent, res.Outcome)

	env.drain(t)
	assert.Equal(t, []testutil.Call{{ID: g.Stripped(), Credit: 8}}, env.client.Decrements())
	env.destroyer.AssertNotCalled(t, "Destroy", mock.Anything, mock.Anything, mock.Anything)
}

func TestRelease_UncachedNeverSplit(t *testing.T) {
	env := newTestEnv(t)

	g := component(4).WithLog2Credit(4)
	id := New(env.rt, g, Managed)

	assert.Equal(t, metrics.OutcomeDecrementSent, id.Release().Outcome)
	env.drain(t)
	assert.Equal(t, []testutil.Call{{ID: g.Stripped(), Credit: 16}}, env.client.Decrements())
}

func TestRelease_NoCredit(t *testing.T) {
	env := newTestEnv(t)

	id := New(env.rt, component(5).WithLog2Credit(4), ManagedMoveCredit)
	moved, err := id.MoveCredit()
	require.NoError(t, err)
	assert.Equal(t, int64(16), moved.Credit())

	assert.Equal(t, metrics.OutcomeFreed, id.Release().Outcome)
	env.drain(t)
	assert.Zero(t, env.client.Calls())
}

func TestRelease_ShutdownSkipsTraffic(t *testing.T) {
	env := newTestEnv(t)
	env.state.Set(core.StateStopping)

	g := component(6).WithLog2Credit(4)
	env.client.SetCached(g, core.Address{Locality: 1, Type: core.ComponentFirstUser})

	id := New(env.rt, g, Managed)
	assert.Equal(t, metrics.OutcomeShutdownSkipped, id.Release().Outcome)

	env.drain(t)
	assert.Zero(t, env.client.Calls())
	env.destroyer.AssertNotCalled(t, "Destroy", mock.Anything, mock.Anything, mock.Anything)
}

func TestRelease_NilRuntime(t *testing.T) {
	id := New(nil, component(7).WithLog2Credit(4), Managed)
	assert.Equal(t, metrics.OutcomeShutdownSkipped, id.Release().Outcome)

	_, err := New(nil, component(7), Managed).SplitCredit(t.Context())
	assert.ErrorIs(t, err, core.ErrInvalidStatus)
}

func TestRelease_DestroyFailure(t *testing.T) {
	env := newTestEnv(t)

	g := component(8).WithLog2Credit(4)
	env.client.SetCached(g, core.Address{Locality: 1, Type: core.ComponentFirstUser})
	boom := errors.New("boom")
	env.destroyer.On("Destroy", mock.Anything, mock.Anything, mock.Anything).Return(boom).Once()

	res := New(env.rt, g, Managed).Release()
	assert.Equal(t, metrics.OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, core.ErrUnexpectedFailure)
	assert.ErrorIs(t, res.Err, boom)
}

func TestRelease_DestroyInvalidStatusDuringShutdown(t *testing.T) {
	env := newTestEnv(t)

	g := component(9).WithLog2Credit(4)
	env.client.SetCached(g, core.Address{Locality: 1, Type: core.ComponentFirstUser})

	// the runtime starts stopping while the component is being destroyed
	env.destroyer.On("Destroy", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { env.state.Set(core.StateStopping) }).
		Return(core.NewError(core.ErrInvalidStatus, "destroy", "runtime stopping")).Once()

	res := New(env.rt, g, Managed).Release()
	assert.Equal(t, metrics.OutcomeShutdownSkipped, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Zero(t, env.obs.Releases(metrics.OutcomeDestroyedLocally))
}

func TestRelease_ComponentOnOtherLocality(t *testing.T) {
	env := newTestEnv(t)

	// received with moved credit: never split, but homed on locality 2
	g := gid.Make(2, core.ComponentFirstUser, 11).WithLog2Credit(4)
	env.client.SetCached(g, core.Address{Locality: 2, Type: core.ComponentFirstUser})

	res := New(env.rt, g, Managed).Release()
	assert.Equal(t, metrics.OutcomeDecrementSent, res.Outcome)

	env.drain(t)
	assert.Equal(t, []testutil.Call{{ID: g.Stripped(), Credit: 16}}, env.client.Decrements())
	env.destroyer.AssertNotCalled(t, "Destroy", mock.Anything, mock.Anything, mock.Anything)
}

func TestRelease_DecrementFailureReported(t *testing.T) {
	env := newTestEnv(t)
	boom := errors.New("boom")
	env.client.FailDecrements(boom)

	errs := make(chan error, 1)
	env.rt.OnError = func(err error) { errs <- err }

	New(env.rt, component(10).WithLog2Credit(4), Managed).Release()
	env.drain(t)

	err := <-errs
	assert.ErrorIs(t, err, core.ErrUnexpectedFailure)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), env.obs.DecrementErrors.Load())
}

func TestRelease_SynchronousDecrement(t *testing.T) {
	env := newTestEnv(t)
	env.rt.Dispatcher = nil

	var reported error
	env.rt.OnError = func(err error) { reported = err }
	env.client.FailDecrements(errors.New("boom"))

	g := component(11).WithLog2Credit(4)
	assert.Equal(t, metrics.OutcomeDecrementSent, New(env.rt, g, Managed).Release().Outcome)
	assert.Len(t, env.client.Decrements(), 1)
	assert.ErrorIs(t, reported, core.ErrUnexpectedFailure)
}

func TestRelease_SingleDestructionUnderContention(t *testing.T) {
	env := newTestEnv(t)

	g := component(12).WithLog2Credit(4)
	env.client.SetCached(g, core.Address{Locality: 1, Type: core.ComponentFirstUser})
	env.destroyer.On("Destroy", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	id := New(env.rt, g, Managed)

	const workers = 32
	clones := make([]ID, workers)
	for i := range clones {
		clones[i] = id.Clone()
	}
	id.Release()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		final int
	)
	for _, c := range clones {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// interleave extra clone/release pairs with the final releases
			c.Clone().Release()
			if c.Release().Final() {
				mu.Lock()
				final++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, final)
	env.destroyer.AssertNumberOfCalls(t, "Destroy", 1)
	env.drain(t)
	assert.Empty(t, env.client.Decrements())
}

func TestUseAfterFree(t *testing.T) {
	env := newTestEnv(t)
	id := New(env.rt, component(13), Unmanaged)
	id.Release()

	assert.Panics(t, func() { id.Clone() })
	assert.Panics(t, func() { id.Release() })
	assert.Panics(t, func() { _ = id.Cell() })
}

func TestReplenish(t *testing.T) {
	env := newTestEnv(t)
	g := component(14).WithLog2Credit(4)

	id := New(env.rt, g, ManagedMoveCredit)
	_, err := id.MoveCredit()
	require.NoError(t, err)

	added, err := id.Replenish(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(16), added)
	assert.True(t, id.GID().WasSplit())

	_, err = New(env.rt, g, Unmanaged).Replenish(t.Context())
	assert.ErrorIs(t, err, core.ErrInvalidStatus)

	id.Release()
	env.drain(t)
	assert.Equal(t, []testutil.Call{{ID: g.Stripped(), Credit: 16}}, env.client.Decrements())
}

func TestSplitCredit_Exhausted(t *testing.T) {
	env := newTestEnv(t)
	g := component(15).WithLog2Credit(0)

	id := New(env.rt, g, Managed)
	sent, err := id.SplitCredit(t.Context())
	require.NoError(t, err)

	assert.Equal(t, int64(16), sent.Credit())
	assert.Equal(t, int64(16), id.GID().Credit())
	assert.Equal(t, []testutil.Call{{ID: g.Stripped(), Credit: 31}}, env.client.Increments())
	id.Release()
}
