package agas

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/gid"
)

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// InitialCredit is the credit a component is created with. An
	// identifier absent from the credit table is assumed to hold it.
	InitialCredit int64

	// Store holds the global credit table. Defaults to a MemoryStore.
	Store CreditStore

	// Logger receives lifecycle output. If nil, output is discarded.
	Logger *slog.Logger
}

// DefaultServiceOptions returns default service options.
var DefaultServiceOptions = ServiceOptions{
	InitialCredit: gid.DefaultInitialCredit,
}

// Service is the in-process address and lifetime authority shared by a set
// of localities.
type Service struct {
	initial int64
	store   CreditStore
	logger  *slog.Logger

	mu         sync.RWMutex
	bindings   map[gid.GID]core.Address
	destroyers map[core.LocalityID]Destroyer
	tombstones map[core.LocalityID]*roaring64.Bitmap
	next       map[core.LocalityID]uint64
}

// NewService creates an authority.
func NewService(optFns ...func(o *ServiceOptions)) (*Service, error) {
	opts := DefaultServiceOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if !gid.IsValidCredit(opts.InitialCredit) {
		return nil, core.NewError(core.ErrBadParameter, "agas.NewService",
			fmt.Sprintf("initial credit %d is not a valid credit", opts.InitialCredit))
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Service{
		initial:    opts.InitialCredit,
		store:      opts.Store,
		logger:     opts.Logger,
		bindings:   make(map[gid.GID]core.Address),
		destroyers: make(map[core.LocalityID]Destroyer),
		tombstones: make(map[core.LocalityID]*roaring64.Bitmap),
		next:       make(map[core.LocalityID]uint64),
	}, nil
}

// InitialCredit returns the credit components are created with.
func (s *Service) InitialCredit() int64 { return s.initial }

// RegisterLocality attaches a locality and the destroyer that tears down
// its components.
func (s *Service) RegisterLocality(loc core.LocalityID, d Destroyer) error {
	if loc == core.InvalidLocality || d == nil {
		return core.NewError(core.ErrBadParameter, "agas.RegisterLocality", "invalid locality or nil destroyer")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.destroyers[loc]; ok {
		return core.NewError(core.ErrBadParameter, "agas.RegisterLocality", fmt.Sprintf("locality %d already registered", loc))
	}
	s.destroyers[loc] = d
	return nil
}

// UnregisterLocality detaches a locality. Components homed there are no
// longer destroyed when their credit runs out.
func (s *Service) UnregisterLocality(loc core.LocalityID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.destroyers, loc)
}

// Allocate reserves n consecutive identifier sequence numbers for loc and
// returns the first one. Sequence numbers start at 1.
func (s *Service) Allocate(_ context.Context, loc core.LocalityID, n uint64) (uint64, error) {
	if loc == core.InvalidLocality || n == 0 {
		return 0, core.NewError(core.ErrBadParameter, "agas.Allocate", "invalid locality or empty range")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	first := s.next[loc] + 1
	s.next[loc] += n
	return first, nil
}

// Bind associates id with addr.
func (s *Service) Bind(_ context.Context, id gid.GID, addr core.Address) error {
	if !id.IsValid() || !addr.Valid() {
		return core.NewError(core.ErrBadParameter, "agas.Bind", "invalid id or address")
	}
	key := id.Stripped()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isTombstoned(key) {
		return core.NewError(core.ErrInvalidStatus, "agas.Bind", fmt.Sprintf("%v was destroyed", key))
	}
	if _, ok := s.bindings[key]; ok {
		return fmt.Errorf("bind %v: %w", key, ErrAlreadyBound)
	}
	s.bindings[key] = addr
	return nil
}

// Unbind removes the binding of id and returns the address it had.
func (s *Service) Unbind(_ context.Context, id gid.GID) (core.Address, error) {
	key := id.Stripped()

	s.mu.Lock()
	defer s.mu.Unlock()
	addr, ok := s.bindings[key]
	if !ok {
		return core.Address{}, fmt.Errorf("unbind %v: %w", key, ErrUnknownID)
	}
	delete(s.bindings, key)
	return addr, nil
}

// Resolve returns the address bound to id.
func (s *Service) Resolve(_ context.Context, id gid.GID) (core.Address, error) {
	key := id.Stripped()

	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.bindings[key]
	if !ok {
		return core.Address{}, fmt.Errorf("resolve %v: %w", key, ErrUnknownID)
	}
	return addr, nil
}

// IncrementCredit adds credit to the global count of id.
func (s *Service) IncrementCredit(ctx context.Context, id gid.GID, credit int64) (int64, error) {
	const op = "agas.IncrementCredit"
	if err := validateCredit(op, id, credit); err != nil {
		return 0, err
	}
	key := id.Stripped()

	if s.Destroyed(key) {
		return 0, core.NewError(core.ErrInvalidStatus, op, fmt.Sprintf("%v was destroyed", key))
	}

	n, err := s.store.Add(ctx, key, credit, s.initial)
	if err != nil {
		return 0, core.WrapError(core.ErrUnexpectedFailure, op, err)
	}
	return n, nil
}

// DecrementCredit removes credit from the global count of id. When the
// count reaches zero the component is destroyed on its home locality and
// the identifier is tombstoned.
func (s *Service) DecrementCredit(ctx context.Context, id gid.GID, credit int64) error {
	const op = "agas.DecrementCredit"
	if err := validateCredit(op, id, credit); err != nil {
		return err
	}
	key := id.Stripped()

	if s.Destroyed(key) {
		return core.NewError(core.ErrInvalidStatus, op, fmt.Sprintf("%v was destroyed", key))
	}

	n, err := s.store.Add(ctx, key, -credit, s.initial)
	if err != nil {
		return core.WrapError(core.ErrUnexpectedFailure, op, err)
	}

	switch {
	case n > 0:
		return nil
	case n < 0:
		s.logger.ErrorContext(ctx, "credit underflow", "gid", key, "count", n)
		return core.NewError(core.ErrUnexpectedFailure, op, fmt.Sprintf("credit of %v dropped to %d", key, n))
	}

	return s.destroy(ctx, key)
}

// Credit returns the global count of id. An identifier absent from the
// table reports the initial credit; a destroyed one reports zero.
func (s *Service) Credit(ctx context.Context, id gid.GID) (int64, error) {
	key := id.Stripped()
	if s.Destroyed(key) {
		return 0, nil
	}
	n, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return 0, core.WrapError(core.ErrUnexpectedFailure, "agas.Credit", err)
	}
	if !ok {
		return s.initial, nil
	}
	return n, nil
}

// Destroyed reports whether id was destroyed through credit exhaustion.
func (s *Service) Destroyed(id gid.GID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isTombstoned(id.Stripped())
}

// ServiceStats is a snapshot of the authority's tables.
type ServiceStats struct {
	Bindings   int    `json:"bindings"`
	Localities int    `json:"localities"`
	Destroyed  uint64 `json:"destroyed"`
}

// Stats returns a snapshot of the authority's tables.
func (s *Service) Stats() ServiceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := ServiceStats{
		Bindings:   len(s.bindings),
		Localities: len(s.destroyers),
	}
	for _, bm := range s.tombstones {
		st.Destroyed += bm.GetCardinality()
	}
	return st
}

func (s *Service) destroy(ctx context.Context, key gid.GID) error {
	const op = "agas.destroy"

	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "failed to delete credit entry", "gid", key, "error", err)
	}

	s.mu.Lock()
	addr, bound := s.bindings[key]
	delete(s.bindings, key)
	s.tombstone(key)
	d := s.destroyers[addr.Locality]
	s.mu.Unlock()

	if !bound {
		s.logger.WarnContext(ctx, "credit exhausted for unbound id", "gid", key)
		return nil
	}
	if d == nil {
		return core.NewError(core.ErrInvalidStatus, op, fmt.Sprintf("home locality %d of %v is gone", addr.Locality, key))
	}

	s.logger.DebugContext(ctx, "destroying component", "gid", key, "locality", addr.Locality)
	if err := d.Destroy(ctx, key, addr); err != nil {
		return fmt.Errorf("destroy %v: %w", key, err)
	}
	return nil
}

// isTombstoned requires s.mu.
func (s *Service) isTombstoned(key gid.GID) bool {
	bm, ok := s.tombstones[key.LocalityID()]
	return ok && bm.Contains(key.Lsb)
}

// tombstone requires s.mu held for writing.
func (s *Service) tombstone(key gid.GID) {
	loc := key.LocalityID()
	bm, ok := s.tombstones[loc]
	if !ok {
		bm = roaring64.New()
		s.tombstones[loc] = bm
	}
	bm.Add(key.Lsb)
}
