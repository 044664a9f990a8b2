package domain

import (
	"slices"
	"strings"
)

type Status string

const (
	StatusPending       Status = "PENDING"
	StatusAccepted      Status = "ACCEPTED"
	StatusArrivedPickup Status = "ARRIVED_PICKUP"
	StatusPickedUp      Status = "PICKED_UP"
	StatusInTransit     Status = "IN_TRANSIT"
	StatusArrivedDrop   Status = "ARRIVED_DROP"
	StatusDelivered     Status = "DELIVERED"
	StatusCancelled     Status = "CANCELLED"
)

// lifecycle is the fixed total order. CANCELLED sits outside it.
var lifecycle = []Status{
	StatusPending,
	StatusAccepted,
	StatusArrivedPickup,
	StatusPickedUp,
	StatusInTransit,
	StatusArrivedDrop,
	StatusDelivered,
}

var labels = map[Status]string{
	StatusPending:       "Awaiting Pilot",
	StatusAccepted:      "Pilot Accepted",
	StatusArrivedPickup: "Arrived at Pickup",
	StatusPickedUp:      "Picked Up",
	StatusInTransit:     "In Transit",
	StatusArrivedDrop:   "Arrived at Drop",
	StatusDelivered:     "Delivered",
	StatusCancelled:     "Cancelled",
}

// legacyAliases maps the vocabulary still emitted by older dashboard views
// onto the canonical lifecycle.
var legacyAliases = map[string]Status{
	"SEARCHING":     StatusPending,
	"CONFIRMED":     StatusAccepted,
	"PILOT_ARRIVED": StatusArrivedPickup,
}

// Statuses returns the lifecycle order followed by CANCELLED.
func Statuses() []Status {
	out := make([]Status, 0, len(lifecycle)+1)
	out = append(out, lifecycle...)
	return append(out, StatusCancelled)
}

func (s Status) String() string {
	return string(s)
}

func (s Status) Valid() bool {
	_, ok := labels[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Label returns the display label for s.
func Label(s Status) (string, error) {
	l, ok := labels[s]
	if !ok {
		return "", &UnknownStatusError{Value: string(s)}
	}
	return l, nil
}

// ParseStatus normalizes a raw status coming from the store or a request.
// Legacy aliases are folded into their canonical status.
func ParseStatus(raw string) (Status, error) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if s := Status(v); s.Valid() {
		return s, nil
	}
	if s, ok := legacyAliases[v]; ok {
		return s, nil
	}
	return "", &UnknownStatusError{Value: raw}
}

// StoredAs lists every value the store may hold for s: the canonical name
// first, then its legacy aliases in sorted order. An unknown status maps to
// itself.
func (s Status) StoredAs() []string {
	var aliases []string
	for alias, canonical := range legacyAliases {
		if canonical == s {
			aliases = append(aliases, alias)
		}
	}
	slices.Sort(aliases)
	return append([]string{string(s)}, aliases...)
}

func position(s Status) int {
	for i, st := range lifecycle {
		if st == s {
			return i
		}
	}
	return -1
}
