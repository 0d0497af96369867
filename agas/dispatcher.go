package agas

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/gidref/gid"
	"github.com/hupe1980/gidref/metrics"
	"github.com/hupe1980/gidref/resource"
)

// ErrDispatcherClosed is reported for work submitted after Close.
var ErrDispatcherClosed = errors.New("agas: dispatcher closed")

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// Controller admits background requests. A nil controller admits
	// everything immediately.
	Controller *resource.Controller

	// Logger receives failures. If nil, output is discarded.
	Logger *slog.Logger

	// Observer receives one OnDecrement per dispatched decrement.
	Observer metrics.Observer
}

// Dispatcher sends fire-and-forget credit traffic. Callers never wait for
// the outcome; failures are logged and handed to the per-call callback.
type Dispatcher struct {
	client Client
	ctrl   *resource.Controller
	logger *slog.Logger
	obs    metrics.Observer

	// ctx outlives every caller; it is only cancelled by Abort.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex // guards closed against wg.Add
	closed bool
	wg     sync.WaitGroup

	pending atomic.Int64
}

// NewDispatcher creates a dispatcher sending through client.
func NewDispatcher(client Client, optFns ...func(o *DispatcherOptions)) *Dispatcher {
	var opts DispatcherOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		client: client,
		ctrl:   opts.Controller,
		logger: opts.Logger,
		obs:    metrics.OrNoop(opts.Observer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go runs fn on a background goroutine once the controller admits it.
// onErr, if not nil, receives fn's error (or ErrDispatcherClosed).
func (d *Dispatcher) Go(fn func(ctx context.Context) error, onErr func(error)) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		if onErr != nil {
			onErr(ErrDispatcherClosed)
		}
		return
	}
	d.wg.Add(1)
	d.pending.Add(1)
	d.mu.RUnlock()

	go func() {
		defer d.wg.Done()
		defer d.pending.Add(-1)

		if err := d.ctrl.AcquireBackground(d.ctx); err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		defer d.ctrl.ReleaseBackground()

		if err := fn(d.ctx); err != nil && onErr != nil {
			onErr(err)
		}
	}()
}

// Decrement returns credit for id in the background.
func (d *Dispatcher) Decrement(id gid.GID, credit int64, onErr func(error)) {
	d.Go(func(ctx context.Context) error {
		err := d.client.DecrementCredit(ctx, id, credit)
		d.obs.OnDecrement(credit, err)
		if err != nil {
			d.logger.WarnContext(ctx, "credit decrement failed", "gid", id, "credit", credit, "error", err)
		}
		return err
	}, onErr)
}

// Vent returns overflow credit in the background. It implements
// credit.Venter.
func (d *Dispatcher) Vent(id gid.GID, credit int64) {
	d.Decrement(id, credit, nil)
}

// Pending returns the number of submitted calls not yet finished.
func (d *Dispatcher) Pending() int64 { return d.pending.Load() }

// Wait blocks until all submitted calls finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work and waits for submitted calls to finish.
// If ctx expires first, outstanding calls are aborted.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	start := time.Now()
	err := d.Wait(ctx)
	if err != nil {
		d.logger.Warn("aborting background credit traffic", "pending", d.Pending(), "waited", time.Since(start))
		d.cancel()
		d.wg.Wait()
		return err
	}
	d.cancel()
	return nil
}
