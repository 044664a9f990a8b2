package realtime

import "github.com/Domenick1991/courierbooking/internal/domain"

// View is what an open screen holds for one booking.
type View struct {
	BookingID string
	Booking   *domain.Booking
	Position  *domain.CoordinateUpdate
}

// NewView starts a view from the snapshot on screen. A nil booking yields an
// empty view that follows no booking.
func NewView(b *domain.Booking) View {
	if b == nil {
		return View{}
	}
	return View{BookingID: b.ID, Booking: b.Clone()}
}

// Apply returns the view after ev. Booking snapshots replace the cached one
// wholesale when they are not older; positions only move forward in time.
// Events for other bookings leave the view untouched.
func Apply(v View, ev Event) View {
	if ev.BookingID() != v.BookingID {
		return v
	}
	switch ev.Type {
	case EventBookingUpdated:
		if ev.Booking == nil {
			return v
		}
		if v.Booking != nil && v.Booking.NewerThan(ev.Booking) {
			return v
		}
		return View{BookingID: v.BookingID, Booking: ev.Booking.Clone(), Position: v.Position}
	case EventPilotLocation:
		if ev.Coordinate == nil {
			return v
		}
		if v.Position != nil && !ev.Coordinate.Timestamp.After(v.Position.Timestamp) {
			return v
		}
		pos := *ev.Coordinate
		return View{BookingID: v.BookingID, Booking: v.Booking, Position: &pos}
	default:
		return v
	}
}
