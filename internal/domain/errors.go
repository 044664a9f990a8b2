package domain

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalTransition   = errors.New("illegal status transition")
	ErrNotCancellable      = errors.New("booking can no longer be cancelled")
	ErrNotAssignable       = errors.New("booking is not awaiting a pilot")
	ErrInvalidReason       = errors.New("invalid cancellation reason")
	ErrPilotUnavailable    = errors.New("pilot is not available")
	ErrFinalPriceImmutable = errors.New("final price can only be set once, on delivery")
	ErrConflict            = errors.New("booking changed since it was last read")
	ErrNotFound            = errors.New("booking not found")
	ErrBusy                = errors.New("another change to this booking is in flight")
	ErrTimeout             = errors.New("booking store did not answer in time")
	ErrTransport           = errors.New("booking store unreachable")
	ErrUnknownStatus       = errors.New("unknown booking status")
)

// UnknownStatusError reports a status outside the vocabulary, usually a
// version mismatch with the store.
type UnknownStatusError struct {
	Value string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown booking status %q", e.Value)
}

func (e *UnknownStatusError) Is(target error) bool {
	return target == ErrUnknownStatus
}

// OutcomeUnknown reports whether err leaves the store state unknown, so the
// caller has to re-fetch before retrying.
func OutcomeUnknown(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransport)
}
