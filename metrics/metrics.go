// Package metrics defines the hooks through which the credit protocol, the
// handle deleters and the serializer report what they do.
//
// Implement Observer to integrate with monitoring systems; package prom
// provides a Prometheus implementation.
package metrics

import (
	"sync/atomic"
	"time"
)

// Observer receives lifetime-management events. Implementations must be
// safe for concurrent use and must not block.
type Observer interface {
	// OnSplit is called after every credit split. replenished is true when
	// the split required fresh credit from the address service.
	OnSplit(replenished bool)

	// OnReplenish is called when a replenishment round trip completes.
	// increment is the credit requested, vented the overflow sent back.
	OnReplenish(duration time.Duration, increment, vented int64, err error)

	// OnMove is called when the whole credit of a handle is moved away.
	OnMove()

	// OnRelease is called when the last local copy of a handle is dropped.
	// outcome names the path that was taken.
	OnRelease(outcome string)

	// OnDecrement is called when a fire-and-forget decrement completes.
	OnDecrement(credit int64, err error)

	// OnSerialize is called after a message has been encoded.
	OnSerialize(handles, splits int, duration time.Duration, err error)
}

// NoopObserver is a no-op implementation of Observer.
type NoopObserver struct{}

func (NoopObserver) OnSplit(bool)                                 {}
func (NoopObserver) OnReplenish(time.Duration, int64, int64, error) {}
func (NoopObserver) OnMove()                                      {}
func (NoopObserver) OnRelease(string)                             {}
func (NoopObserver) OnDecrement(int64, error)                     {}
func (NoopObserver) OnSerialize(int, int, time.Duration, error)   {}

// OrNoop returns o, or a NoopObserver if o is nil.
func OrNoop(o Observer) Observer {
	if o == nil {
		return NoopObserver{}
	}
	return o
}

// Multi fans every event out to all of its observers.
type Multi []Observer

func (m Multi) OnSplit(replenished bool) {
	for _, o := range m {
		o.OnSplit(replenished)
	}
}

func (m Multi) OnReplenish(d time.Duration, increment, vented int64, err error) {
	for _, o := range m {
		o.OnReplenish(d, increment, vented, err)
	}
}

func (m Multi) OnMove() {
	for _, o := range m {
		o.OnMove()
	}
}

func (m Multi) OnRelease(outcome string) {
	for _, o := range m {
		o.OnRelease(outcome)
	}
}

func (m Multi) OnDecrement(credit int64, err error) {
	for _, o := range m {
		o.OnDecrement(credit, err)
	}
}

func (m Multi) OnSerialize(handles, splits int, d time.Duration, err error) {
	for _, o := range m {
		o.OnSerialize(handles, splits, d, err)
	}
}

// BasicObserver provides simple in-memory counters.
// Useful for tests and debugging without external dependencies.
type BasicObserver struct {
	Splits            atomic.Int64
	ReplenishedSplits atomic.Int64
	Replenishes       atomic.Int64
	ReplenishErrors   atomic.Int64
	CreditRequested   atomic.Int64
	CreditVented      atomic.Int64
	Moves             atomic.Int64
	Decrements        atomic.Int64
	DecrementErrors   atomic.Int64
	CreditReturned    atomic.Int64
	Messages          atomic.Int64
	MessageErrors     atomic.Int64
	HandlesSent       atomic.Int64

	releases [numOutcomes]atomic.Int64
}

// Release outcome names reported through OnRelease.
const (
	OutcomeFreed            = "freed"
	OutcomeDestroyedLocally = "destroyed_locally"
	OutcomeDecrementSent    = "decrement_sent"
	OutcomeShutdownSkipped  = "shutdown_skipped"
	OutcomeFailed           = "failed"
)

var outcomeIndex = map[string]int{
	OutcomeFreed:            0,
	OutcomeDestroyedLocally: 1,
	OutcomeDecrementSent:    2,
	OutcomeShutdownSkipped:  3,
	OutcomeFailed:           4,
}

const numOutcomes = 5

// OnSplit implements Observer.
func (b *BasicObserver) OnSplit(replenished bool) {
	b.Splits.Add(1)
	if replenished {
		b.ReplenishedSplits.Add(1)
	}
}

// OnReplenish implements Observer.
func (b *BasicObserver) OnReplenish(_ time.Duration, increment, vented int64, err error) {
	b.Replenishes.Add(1)
	if err != nil {
		b.ReplenishErrors.Add(1)
		return
	}
	b.CreditRequested.Add(increment)
	b.CreditVented.Add(vented)
}

// OnMove implements Observer.
func (b *BasicObserver) OnMove() { b.Moves.Add(1) }

// OnRelease implements Observer.
func (b *BasicObserver) OnRelease(outcome string) {
	if i, ok := outcomeIndex[outcome]; ok {
		b.releases[i].Add(1)
	}
}

// OnDecrement implements Observer.
func (b *BasicObserver) OnDecrement(credit int64, err error) {
	b.Decrements.Add(1)
	if err != nil {
		b.DecrementErrors.Add(1)
		return
	}
	b.CreditReturned.Add(credit)
}

// OnSerialize implements Observer.
func (b *BasicObserver) OnSerialize(handles, _ int, _ time.Duration, err error) {
	b.Messages.Add(1)
	if err != nil {
		b.MessageErrors.Add(1)
		return
	}
	b.HandlesSent.Add(int64(handles))
}

// Releases returns how many releases took the given outcome.
func (b *BasicObserver) Releases(outcome string) int64 {
	i, ok := outcomeIndex[outcome]
	if !ok {
		return 0
	}
	return b.releases[i].Load()
}

// BasicStats is a point-in-time snapshot of a BasicObserver.
type BasicStats struct {
	Splits            int64            `json:"splits"`
	ReplenishedSplits int64            `json:"replenished_splits"`
	Replenishes       int64            `json:"replenishes"`
	ReplenishErrors   int64            `json:"replenish_errors"`
	CreditRequested   int64            `json:"credit_requested"`
	CreditVented      int64            `json:"credit_vented"`
	Moves             int64            `json:"moves"`
	Decrements        int64            `json:"decrements"`
	DecrementErrors   int64            `json:"decrement_errors"`
	CreditReturned    int64            `json:"credit_returned"`
	Messages          int64            `json:"messages"`
	MessageErrors     int64            `json:"message_errors"`
	HandlesSent       int64            `json:"handles_sent"`
	Releases          map[string]int64 `json:"releases"`
}

// Stats returns a snapshot of current counters.
func (b *BasicObserver) Stats() BasicStats {
	s := BasicStats{
		Splits:            b.Splits.Load(),
		ReplenishedSplits: b.ReplenishedSplits.Load(),
		Replenishes:       b.Replenishes.Load(),
		ReplenishErrors:   b.ReplenishErrors.Load(),
		CreditRequested:   b.CreditRequested.Load(),
		CreditVented:      b.CreditVented.Load(),
		Moves:             b.Moves.Load(),
		Decrements:        b.Decrements.Load(),
		DecrementErrors:   b.DecrementErrors.Load(),
		CreditReturned:    b.CreditReturned.Load(),
		Messages:          b.Messages.Load(),
		MessageErrors:     b.MessageErrors.Load(),
		HandlesSent:       b.HandlesSent.Load(),
		Releases:          make(map[string]int64, numOutcomes),
	}
	for name := range outcomeIndex {
		s.Releases[name] = b.Releases(name)
	}
	return s
}
