// Package realtime carries booking snapshots and courier positions from the
// event bus to subscribed sockets, and folds them into cached views.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Domenick1991/courierbooking/internal/domain"
	"github.com/google/uuid"
)

type EventType string

const (
	EventBookingUpdated EventType = "booking.updated"
	EventPilotLocation  EventType = "pilot.location"
)

// Event is the only message shape on the bus and on the socket.
type Event struct {
	ID         string                   `json:"id"`
	Type       EventType                `json:"type"`
	Action     string                   `json:"action,omitempty"`
	Booking    *domain.Booking          `json:"booking,omitempty"`
	Coordinate *domain.CoordinateUpdate `json:"coordinate,omitempty"`
	OccurredAt time.Time                `json:"occurred_at"`
}

func BookingUpdated(action string, b *domain.Booking) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       EventBookingUpdated,
		Action:     action,
		Booking:    b,
		OccurredAt: time.Now().UTC(),
	}
}

func PilotLocation(u domain.CoordinateUpdate) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       EventPilotLocation,
		Coordinate: &u,
		OccurredAt: time.Now().UTC(),
	}
}

// BookingID is the subscription key of the event.
func (e Event) BookingID() string {
	switch {
	case e.Booking != nil:
		return e.Booking.ID
	case e.Coordinate != nil:
		return e.Coordinate.BookingID
	default:
		return ""
	}
}

func DecodeEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	switch e.Type {
	case EventBookingUpdated:
		if e.Booking == nil {
			return Event{}, fmt.Errorf("decode event %s: missing booking", e.ID)
		}
	case EventPilotLocation:
		if e.Coordinate == nil {
			return Event{}, fmt.Errorf("decode event %s: missing coordinate", e.ID)
		}
	default:
		return Event{}, fmt.Errorf("decode event %s: unknown type %q", e.ID, e.Type)
	}
	return e, nil
}

// Control is sent by a socket client to change its subscriptions.
type Control struct {
	Action    string `json:"action"`
	BookingID string `json:"booking_id"`
}

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)
