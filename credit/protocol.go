package credit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/gid"
	"github.com/hupe1980/gidref/metrics"
)

// Service is the part of the address service the protocol talks to.
type Service interface {
	// IncrementCredit adds credit to the global count of id and returns the
	// new global count.
	IncrementCredit(ctx context.Context, id gid.GID, credit int64) (int64, error)
	// DecrementCredit removes credit from the global count of id.
	DecrementCredit(ctx context.Context, id gid.GID, credit int64) error
}

// Venter returns credit to the address service without waiting for the
// outcome.
type Venter interface {
	Vent(id gid.GID, credit int64)
}

// Options configures a Protocol.
type Options struct {
	// InitialLog2 is the exponent of the credit assigned to new components
	// and of every replenished batch. Must be in [1, gid.MaxLog2Credit].
	InitialLog2 uint8

	// Venter dispatches overflow credit. If nil, overflow is returned with a
	// synchronous DecrementCredit call on the splitting goroutine.
	Venter Venter

	// Logger receives debug and warning output. If nil, output is discarded.
	Logger *slog.Logger

	// Observer receives split/replenish/move events.
	Observer metrics.Observer
}

// DefaultOptions returns default protocol options.
var DefaultOptions = Options{
	InitialLog2: gid.DefaultInitialLog2,
}

// Protocol performs credit operations against one address service.
// It is safe for concurrent use.
type Protocol struct {
	svc     Service
	initial int64
	opts    Options
	logger  *slog.Logger
	obs     metrics.Observer
}

// New creates a Protocol talking to svc.
func New(svc Service, optFns ...func(o *Options)) (*Protocol, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if svc == nil {
		return nil, core.NewError(core.ErrBadParameter, "credit.New", "nil service")
	}
	if opts.InitialLog2 < 1 || opts.InitialLog2 > gid.MaxLog2Credit {
		return nil, core.NewError(core.ErrBadParameter, "credit.New",
			fmt.Sprintf("initial log2 credit %d out of range [1, %d]", opts.InitialLog2, gid.MaxLog2Credit))
	}

	p := &Protocol{
		svc:     svc,
		initial: int64(1) << opts.InitialLog2,
		opts:    opts,
		logger:  opts.Logger,
		obs:     metrics.OrNoop(opts.Observer),
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if p.opts.Venter == nil {
		p.opts.Venter = syncVenter{p}
	}
	return p, nil
}

// InitialCredit returns the credit of a fresh batch.
func (p *Protocol) InitialCredit() int64 { return p.initial }

// InitialLog2 returns the exponent of InitialCredit.
func (p *Protocol) InitialLog2() uint8 { return p.opts.InitialLog2 }

// Assign returns g holding the initial credit of a newly created component.
func (p *Protocol) Assign(g gid.GID) gid.GID {
	return g.WithCredit(p.initial)
}

// SplitLocked halves the credit of the cell and returns a copy holding the
// other half. Both the cell and the copy are marked split. The credit
// exponent must be at least one; no network traffic is involved.
func (p *Protocol) SplitLocked(c *gid.Cell) gid.GID {
	g := c.Load()
	l := g.Log2Credit()
	if !g.HasCredits() || l == 0 {
		panic(fmt.Sprintf("credit: cannot split %v without replenishing", g))
	}

	half := g.WithLog2Credit(l - 1).MarkSplit()
	c.Store(half)

	p.obs.OnSplit(false)
	return half
}

// Split locks the cell and performs SplitLocked.
func (p *Protocol) Split(c *gid.Cell) gid.GID {
	c.Lock()
	defer c.Unlock()
	return p.SplitLocked(c)
}

// SplitIfNeeded returns the identifier to transmit for the cell.
//
// A cell without credit is returned as is. A credit above one is split
// locally. A credit of exactly one is replenished first: the lock is
// released while the address service is contacted, and the state is
// re-read afterwards.
func (p *Protocol) SplitIfNeeded(ctx context.Context, c *gid.Cell) (gid.GID, error) {
	c.Lock()
	return p.SplitIfNeededLocked(ctx, c)
}

// SplitIfNeededLocked is SplitIfNeeded for a caller that already holds the
// lock. The lock is always released on return.
func (p *Protocol) SplitIfNeededLocked(ctx context.Context, c *gid.Cell) (gid.GID, error) {
	g := c.Load()
	if !g.HasCredits() {
		c.Unlock()
		return g, nil
	}

	if g.Log2Credit() > 0 {
		sent := p.SplitLocked(c)
		c.Unlock()
		return sent, nil
	}

	return p.replenishLocked(ctx, c, g)
}

// replenishLocked handles credit exhaustion. Called with the lock held,
// returns with it released.
func (p *Protocol) replenishLocked(ctx context.Context, c *gid.Cell, g gid.GID) (gid.GID, error) {
	// Mark as split before anyone can observe the unlocked window; a
	// concurrent release must not take the local-only path anymore.
	c.Store(g.MarkSplit())
	c.Unlock()

	// initial for the copy being sent, initial-1 to top up the retained
	// credit of one.
	increment := 2*p.initial - 1
	id := g.Stripped()

	start := time.Now()
	if _, err := p.svc.IncrementCredit(ctx, id, increment); err != nil {
		p.obs.OnReplenish(time.Since(start), increment, 0, err)
		p.logger.WarnContext(ctx, "credit replenish failed", "gid", id, "increment", increment, "error", err)
		return gid.Invalid, fmt.Errorf("credit: replenish %v: %w", id, err)
	}

	sent, overflow := p.mergeReplenished(c)

	p.obs.OnReplenish(time.Since(start), increment, overflow, nil)
	p.obs.OnSplit(true)
	p.logger.DebugContext(ctx, "credit replenished", "gid", id, "increment", increment, "vented", overflow)

	return sent, nil
}

// mergeReplenished folds a granted batch into the cell. The cell may have
// changed while unlocked: concurrent replenishments may already have
// refilled it, or a move may have stripped it.
func (p *Protocol) mergeReplenished(c *gid.Cell) (gid.GID, int64) {
	c.Lock()
	cur := c.Load()

	sent := cur.WithCredit(p.initial).MarkSplit()

	var overflow int64
	if cur.HasCredits() {
		// merged = src + initial - 1 >= initial, capped at initial
		overflow = cur.Credit() - 1
		c.Store(cur.WithCredit(p.initial).MarkSplit())
	} else {
		// the retained credit was moved away meanwhile; its top-up is
		// surplus
		overflow = p.initial - 1
	}
	c.Unlock()

	if overflow > 0 {
		p.opts.Venter.Vent(sent.Stripped(), overflow)
	}
	return sent, overflow
}

// MoveLocked strips all credit from the cell and returns a copy carrying
// it. Used when the source is discarded right after transmission.
func (p *Protocol) MoveLocked(c *gid.Cell) gid.GID {
	g := c.Load()
	if g.HasCredits() {
		c.Store(g.StripCredits())
	}
	p.obs.OnMove()
	return g
}

// Move locks the cell and performs MoveLocked.
func (p *Protocol) Move(c *gid.Cell) gid.GID {
	c.Lock()
	defer c.Unlock()
	return p.MoveLocked(c)
}

// Return takes back the credit of sent, a copy produced by a split or a
// move of the cell that was never transmitted. Moved credit is restored
// into the cell if it is still empty; any other credit is vented.
func (p *Protocol) Return(c *gid.Cell, sent gid.GID) {
	if !sent.HasCredits() {
		return
	}

	c.Lock()
	cur := c.Load()
	if !cur.HasCredits() {
		restored := cur.WithCredit(sent.Credit())
		if sent.WasSplit() {
			restored = restored.MarkSplit()
		}
		c.Store(restored)
		c.Unlock()
		return
	}
	c.Unlock()

	p.opts.Venter.Vent(sent.Stripped(), sent.Credit())
}

// Replenish refills a cell that holds no credit (e.g. after its credit was
// moved away) with a fresh batch and returns the credit added. The batch is
// granted by the address service before the cell is filled; if another
// goroutine refilled the cell meanwhile, the batch is vented and 0 returned.
func (p *Protocol) Replenish(ctx context.Context, c *gid.Cell) (int64, error) {
	g := c.Load()
	if g.HasCredits() {
		return 0, nil
	}

	id := g.Stripped()
	start := time.Now()
	if _, err := p.svc.IncrementCredit(ctx, id, p.initial); err != nil {
		p.obs.OnReplenish(time.Since(start), p.initial, 0, err)
		return 0, fmt.Errorf("credit: replenish %v: %w", id, err)
	}

	c.Lock()
	cur := c.Load()
	if cur.HasCredits() {
		c.Unlock()
		p.opts.Venter.Vent(id, p.initial)
		p.obs.OnReplenish(time.Since(start), p.initial, p.initial, nil)
		return 0, nil
	}
	c.Store(cur.WithCredit(p.initial).MarkSplit())
	c.Unlock()

	p.obs.OnReplenish(time.Since(start), p.initial, 0, nil)
	return p.initial, nil
}

// syncVenter returns overflow on the calling goroutine.
type syncVenter struct{ p *Protocol }

func (v syncVenter) Vent(id gid.GID, credit int64) {
	if err := v.p.svc.DecrementCredit(context.Background(), id, credit); err != nil {
		v.p.logger.Error("credit vent failed", "gid", id, "credit", credit, "error", err)
	}
}
