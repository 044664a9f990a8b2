package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MinCancelReasonLength is the shortest accepted cancellation reason.
const MinCancelReasonLength = 10

// NextStatuses returns every status strictly later than current, in order.
// The first element is the default advance; the rest are force targets.
// Terminal and unknown statuses have no successors.
func NextStatuses(current Status) []Status {
	if current.Terminal() {
		return nil
	}
	i := position(current)
	if i < 0 {
		return nil
	}
	out := make([]Status, len(lifecycle)-i-1)
	copy(out, lifecycle[i+1:])
	return out
}

func CanTransition(from, to Status) bool {
	for _, s := range NextStatuses(from) {
		if s == to {
			return true
		}
	}
	return false
}

// CanCancel is true until the package has left the pickup point.
func CanCancel(current Status) bool {
	switch current {
	case StatusPending, StatusAccepted, StatusArrivedPickup:
		return true
	default:
		return false
	}
}

func CanAssignPilot(current Status) bool {
	return current == StatusPending
}

// ValidateCancelReason checks the trimmed reason against min characters.
// A non-positive min falls back to MinCancelReasonLength.
func ValidateCancelReason(reason string, min int) error {
	if min <= 0 {
		min = MinCancelReasonLength
	}
	n := utf8.RuneCountInString(strings.TrimSpace(reason))
	if n < min {
		return fmt.Errorf("%w: need at least %d characters, got %d", ErrInvalidReason, min, n)
	}
	return nil
}

// Actions is the set of affordances an admin view offers for a booking.
type Actions struct {
	Status         Status   `json:"status"`
	Label          string   `json:"label"`
	DefaultNext    *Status  `json:"default_next,omitempty"`
	ForceTargets   []Status `json:"force_targets"`
	CanCancel      bool     `json:"can_cancel"`
	CanAssignPilot bool     `json:"can_assign_pilot"`
}

func ActionsFor(current Status) (Actions, error) {
	label, err := Label(current)
	if err != nil {
		return Actions{}, err
	}
	a := Actions{
		Status:         current,
		Label:          label,
		ForceTargets:   []Status{},
		CanCancel:      CanCancel(current),
		CanAssignPilot: CanAssignPilot(current),
	}
	if next := NextStatuses(current); len(next) > 0 {
		a.DefaultNext = &next[0]
		a.ForceTargets = next[1:]
	}
	return a, nil
}
