package handle

import (
	"context"
	"io"
	"log/slog"

	"github.com/hupe1980/gidref/agas"
	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/credit"
	"github.com/hupe1980/gidref/gid"
	"github.com/hupe1980/gidref/metrics"
)

// Destroyer tears down a component living on this locality.
type Destroyer = agas.Destroyer

// Runtime is the per-locality context shared by all handles. Fields are set
// once before the first handle is created.
type Runtime struct {
	// Locality is the locality the runtime belongs to. Only components
	// living there are destroyed on the local fast path.
	Locality core.LocalityID

	// Client answers credit calls and cached resolutions.
	Client agas.Client

	// Destroyer tears down local components on the fast path.
	Destroyer Destroyer

	// State is consulted before any address service traffic. A nil State
	// counts as torn down.
	State core.StateSource

	// Protocol performs credit splits for outgoing handles.
	Protocol *credit.Protocol

	// Dispatcher sends decrements in the background. If nil, decrements
	// are sent synchronously on the releasing goroutine.
	Dispatcher *agas.Dispatcher

	// Logger receives release diagnostics. If nil, output is discarded.
	Logger *slog.Logger

	// Observer receives release outcomes.
	Observer metrics.Observer

	// OnError receives failures of background decrements while the
	// runtime is live. Optional.
	OnError func(error)
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func (rt *Runtime) logger() *slog.Logger {
	if rt == nil || rt.Logger == nil {
		return discardLogger
	}
	return rt.Logger
}

func (rt *Runtime) observer() metrics.Observer {
	if rt == nil {
		return metrics.NoopObserver{}
	}
	return metrics.OrNoop(rt.Observer)
}

func (rt *Runtime) tearingDown() bool {
	return rt == nil || core.TearingDown(rt.State)
}

// decrement returns credit for id. Failures in a live runtime are reported
// through OnError.
func (rt *Runtime) decrement(ctx context.Context, id gid.GID, c int64) {
	onErr := func(err error) {
		if rt.tearingDown() {
			rt.logger().Debug("dropping decrement failure during shutdown", "gid", id, "error", err)
			return
		}
		if rt.OnError != nil {
			rt.OnError(core.WrapError(core.ErrUnexpectedFailure, "handle.decrement", err))
		}
	}

	if rt.Dispatcher != nil {
		rt.Dispatcher.Decrement(id, c, onErr)
		return
	}

	err := rt.Client.DecrementCredit(ctx, id, c)
	rt.observer().OnDecrement(c, err)
	if err != nil {
		rt.logger().WarnContext(ctx, "credit decrement failed", "gid", id, "credit", c, "error", err)
		onErr(err)
	}
}
