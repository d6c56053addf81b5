// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Branch Predictor Utilities - Contract Errors
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// The predictor is driven by a pipeline model that must respect a strict call protocol:
// ids are allocated in fetch order, retired in the same order, and the in-flight window
// never grows past the reserved capacity. Breaking that protocol is a bug in the caller,
// not a recoverable condition, so every violation panics with a *ContractError.
//
// The sentinel errors let a test (or a recover() in a harness) classify the failure:
//
//	defer func() {
//	    r := recover()
//	    var ce *bputil.ContractError
//	    if errors.As(r.(error), &ce) && errors.Is(ce, bputil.ErrOutOfOrderRetire) { ... }
//	}()
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package bputil

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExceeded: ring buffer or speculative history reservation overflowed.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrOutOfOrderRetire: retire was called for an id that is not the oldest in flight.
	ErrOutOfOrderRetire = errors.New("out-of-order retire")

	// ErrInvariant: any other broken internal invariant (bad counter value, unknown id).
	ErrInvariant = errors.New("invariant violation")
)

// ContractError describes a fatal protocol or invariant violation.
type ContractError struct {
	Err       error  // One of the sentinel errors above
	Component string // Which structure detected the violation
	ID        int64  // Branch id involved, or -1
	Detail    string
}

func (e *ContractError) Error() string {
	if e.ID >= 0 {
		return fmt.Sprintf("%s: %v (id %d): %s", e.Component, e.Err, e.ID, e.Detail)
	}
	return fmt.Sprintf("%s: %v: %s", e.Component, e.Err, e.Detail)
}

func (e *ContractError) Unwrap() error { return e.Err }

// Violation panics with a ContractError. It never returns.
func Violation(err error, component string, id int64, format string, args ...any) {
	panic(&ContractError{
		Err:       err,
		Component: component,
		ID:        id,
		Detail:    fmt.Sprintf(format, args...),
	})
}
