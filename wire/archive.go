package wire

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/gid"
	"github.com/hupe1980/gidref/handle"
	"github.com/hupe1980/gidref/metrics"
)

// IDSize is the encoded size of one handle: the GID and one mode byte.
const IDSize = gid.Size + 1

// OutputOptions configures an OutputArchive.
type OutputOptions struct {
	// Checkpointing marks an archive that is persisted rather than sent.
	// Managed handles cannot be written into it.
	Checkpointing bool

	// Observer receives one OnSerialize per Finish.
	Observer metrics.Observer
}

// splitEntry is what a handle was transmitted as within one message.
type splitEntry struct {
	done chan struct{}
	id   handle.ID
	g    gid.GID
	mode handle.Management
	err  error
}

// OutputArchive collects the handles of one outgoing message.
// It is safe for concurrent use.
type OutputArchive struct {
	checkpointing bool
	obs           metrics.Observer
	start         time.Time

	mu      sync.Mutex
	buf     []byte
	splits  map[*handle.Impl]*splitEntry
	handles int
	aborted bool

	pending errgroup.Group
}

// NewOutputArchive creates an empty archive.
func NewOutputArchive(optFns ...func(o *OutputOptions)) *OutputArchive {
	var opts OutputOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return &OutputArchive{
		checkpointing: opts.Checkpointing,
		obs:           metrics.OrNoop(opts.Observer),
		start:         time.Now(),
		splits:        make(map[*handle.Impl]*splitEntry),
	}
}

// Checkpointing reports whether the archive is a checkpoint.
func (a *OutputArchive) Checkpointing() bool { return a.checkpointing }

// Preprocess schedules the credit split of a managed handle so that a
// replenishing split can overlap with the rest of the message. Handles
// already seen in this message and handles that move their credit are left
// alone.
func (a *OutputArchive) Preprocess(ctx context.Context, id handle.ID) error {
	mode := id.Management()
	if mode == handle.Unmanaged {
		return nil
	}
	if a.checkpointing {
		return checkpointError("wire.Preprocess", id)
	}
	if mode != handle.Managed {
		return nil
	}

	a.mu.Lock()
	if _, ok := a.splits[id.Impl()]; ok {
		a.mu.Unlock()
		return nil
	}
	e := &splitEntry{done: make(chan struct{}), id: id, mode: handle.Managed}
	a.splits[id.Impl()] = e
	a.mu.Unlock()

	a.pending.Go(func() error {
		defer close(e.done)
		e.g, e.err = id.SplitCredit(ctx)
		return e.err
	})
	return nil
}

// Await waits until all splits scheduled by Preprocess completed and
// returns the first failure.
func (a *OutputArchive) Await() error {
	return a.pending.Wait()
}

// SaveID writes a handle. A managed handle is split (or its credit moved)
// the first time it is written; later writes of the same handle reuse the
// transmitted value.
func (a *OutputArchive) SaveID(ctx context.Context, id handle.ID) error {
	if !id.IsValid() {
		return core.NewError(core.ErrBadParameter, "wire.SaveID", "invalid handle")
	}

	mode := id.Management()
	if mode == handle.Unmanaged {
		a.append(id.GID(), handle.Unmanaged)
		return nil
	}
	if a.checkpointing {
		return checkpointError("wire.SaveID", id)
	}

	e, err := a.entry(ctx, id)
	if err != nil {
		return err
	}
	a.append(e.g, e.mode)
	return nil
}

// entry returns the transmitted value of a managed handle, splitting or
// moving its credit on first use.
func (a *OutputArchive) entry(ctx context.Context, id handle.ID) (*splitEntry, error) {
	a.mu.Lock()
	e, ok := a.splits[id.Impl()]
	if !ok {
		e = &splitEntry{done: make(chan struct{}), id: id, mode: handle.Managed}
		a.splits[id.Impl()] = e
	}
	a.mu.Unlock()

	if ok {
		select {
		case <-e.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return e, e.err
	}

	if id.Management() == handle.ManagedMoveCredit {
		e.g, e.err = id.MoveCredit()
	} else {
		e.g, e.err = id.SplitCredit(ctx)
	}
	close(e.done)
	return e, e.err
}

func (a *OutputArchive) append(g gid.GID, mode handle.Management) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf, _ = g.AppendBinary(a.buf)
	a.buf = append(a.buf, byte(mode))
	a.handles++
}

// Handles returns the number of handles written.
func (a *OutputArchive) Handles() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handles
}

// Splits returns the number of distinct managed handles transmitted.
func (a *OutputArchive) Splits() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.splits)
}

// Bytes returns the encoded handles.
func (a *OutputArchive) Bytes() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf
}

// Finish reports the archive to the observer and returns its bytes.
func (a *OutputArchive) Finish(err error) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.obs.OnSerialize(a.handles, len(a.splits), time.Since(a.start), err)
	return a.buf
}

// Abort gives back the credit of every split or move made for this
// message. It must be called instead of sending the archive's bytes once
// any handle has been saved or preprocessed. Later calls do nothing.
func (a *OutputArchive) Abort() {
	_ = a.pending.Wait()

	a.mu.Lock()
	if a.aborted {
		a.mu.Unlock()
		return
	}
	a.aborted = true
	entries := make([]*splitEntry, 0, len(a.splits))
	for _, e := range a.splits {
		entries = append(entries, e)
	}
	a.mu.Unlock()

	for _, e := range entries {
		select {
		case <-e.done:
		default:
			continue
		}
		if e.err == nil {
			e.id.ReturnCredit(e.g)
		}
	}
}

func checkpointError(op string, id handle.ID) error {
	return core.NewError(core.ErrInvalidStatus, op,
		fmt.Sprintf("cannot checkpoint %v handle %v", id.Management(), id.GID()))
}

// InputArchive decodes handles from a message.
type InputArchive struct {
	rt  *handle.Runtime
	buf []byte
	off int
}

// NewInputArchive creates an archive reading data. Decoded handles are
// created in rt.
func NewInputArchive(rt *handle.Runtime, data []byte) *InputArchive {
	return &InputArchive{rt: rt, buf: data}
}

// LoadID decodes the next handle. The lock bit of the received GID is
// always cleared. Only the unmanaged and managed modes are valid on the
// wire; anything else was written by an incompatible peer.
func (a *InputArchive) LoadID() (handle.ID, error) {
	if len(a.buf)-a.off < IDSize {
		return handle.ID{}, ErrTruncated
	}

	g, err := gid.Decode(a.buf[a.off:])
	if err != nil {
		return handle.ID{}, err
	}
	mode := handle.Management(int8(a.buf[a.off+gid.Size]))
	if mode != handle.Unmanaged && mode != handle.Managed {
		return handle.ID{}, core.NewError(core.ErrVersionMismatch, "wire.LoadID",
			fmt.Sprintf("unknown management mode %d", mode))
	}
	a.off += IDSize

	return handle.New(a.rt, g, mode), nil
}

// Remaining returns the number of unread bytes.
func (a *InputArchive) Remaining() int { return len(a.buf) - a.off }
