package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Address struct {
	Street     string   `json:"street"`
	City       string   `json:"city"`
	State      string   `json:"state"`
	PostalCode string   `json:"postal_code"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
}

type Booking struct {
	ID             string           `json:"id"`
	Status         Status           `json:"status"`
	Pickup         Address          `json:"pickup_address"`
	Dropoff        Address          `json:"dropoff_address"`
	PilotID        *string          `json:"pilot_id,omitempty"`
	EstimatedPrice decimal.Decimal  `json:"estimated_price"`
	FinalPrice     *decimal.Decimal `json:"final_price,omitempty"`
	CancelReason   *string          `json:"cancel_reason,omitempty"`
	Note           *string          `json:"note,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Clone returns a deep copy so callers can hand out snapshots without
// sharing the optional fields.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.Pickup = b.Pickup.clone()
	c.Dropoff = b.Dropoff.clone()
	c.PilotID = cloneString(b.PilotID)
	c.CancelReason = cloneString(b.CancelReason)
	c.Note = cloneString(b.Note)
	if b.FinalPrice != nil {
		p := *b.FinalPrice
		c.FinalPrice = &p
	}
	return &c
}

// NewerThan reports whether b was written after other by the store.
// A nil other is always older.
func (b *Booking) NewerThan(other *Booking) bool {
	if other == nil {
		return true
	}
	return b.UpdatedAt.After(other.UpdatedAt)
}

// CoordinateUpdate is a courier position sample pushed for a booking.
type CoordinateUpdate struct {
	BookingID string    `json:"booking_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

func (a Address) clone() Address {
	c := a
	if a.Lat != nil {
		v := *a.Lat
		c.Lat = &v
	}
	if a.Lng != nil {
		v := *a.Lng
		c.Lng = &v
	}
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
