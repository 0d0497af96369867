// Package credit implements the credit-splitting protocol of the
// distributed garbage collector.
//
// Every managed identifier carries a share ("credit") of its component's
// global reference count. Sending a copy to another locality splits the
// credit in two halves without talking to the address service. When the
// credit is exhausted (exponent 0, a credit of one) a fresh batch is
// requested:
//
//	retained: 1            ──► incref(2·initial − 1) ──►  retained: initial
//	                                                      sent:     initial
//
// The cell lock is released for the round trip. Concurrent splits of the
// same identifier may replenish in parallel; whatever the merge finds above
// the initial credit is vented back with a fire-and-forget decrement, so the
// sum of all outstanding credit always matches what the address service
// issued.
//
// All functions with a Locked suffix require the caller to hold the cell's
// lock; the others acquire it themselves.
package credit
