// Package tracking produces demo courier positions between two fixed points.
package tracking

import (
	"iter"
	"time"

	"github.com/Domenick1991/courierbooking/internal/domain"
)

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Interpolate returns the position at now when moving linearly from -> to
// over window starting at start. Times outside the window clamp to the ends.
func Interpolate(from, to Point, start time.Time, window time.Duration, now time.Time) Point {
	if window <= 0 {
		return to
	}
	f := float64(now.Sub(start)) / float64(window)
	switch {
	case f <= 0:
		return from
	case f >= 1:
		return to
	}
	return Point{
		Lat: from.Lat + (to.Lat-from.Lat)*f,
		Lng: from.Lng + (to.Lng-from.Lng)*f,
	}
}

// Route is one booking's leg from pickup to drop.
type Route struct {
	BookingID string
	From, To  Point
}

// RouteFor builds a route from the booking's address coordinates. ok is false
// when either end has no coordinates.
func RouteFor(b *domain.Booking) (Route, bool) {
	p, d := b.Pickup, b.Dropoff
	if p.Lat == nil || p.Lng == nil || d.Lat == nil || d.Lng == nil {
		return Route{}, false
	}
	return Route{
		BookingID: b.ID,
		From:      Point{Lat: *p.Lat, Lng: *p.Lng},
		To:        Point{Lat: *d.Lat, Lng: *d.Lng},
	}, true
}

// Positions yields one update per step from start until start+window, the
// last one exactly at the destination.
func (r Route) Positions(start time.Time, window, step time.Duration) iter.Seq[domain.CoordinateUpdate] {
	return func(yield func(domain.CoordinateUpdate) bool) {
		if step <= 0 {
			step = window
		}
		for offset := time.Duration(0); ; offset += step {
			if offset > window {
				offset = window
			}
			at := start.Add(offset)
			p := Interpolate(r.From, r.To, start, window, at)
			if !yield(domain.CoordinateUpdate{BookingID: r.BookingID, Lat: p.Lat, Lng: p.Lng, Timestamp: at}) {
				return
			}
			if offset >= window {
				return
			}
		}
	}
}
