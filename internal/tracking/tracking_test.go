package tracking

import (
	"slices"
	"testing"
	"time"

	"github.com/Domenick1991/courierbooking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolate(t *testing.T) {
	from := Point{Lat: 12.90, Lng: 77.50}
	to := Point{Lat: 13.00, Lng: 77.70}
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	window := 10 * time.Minute

	tests := []struct {
		name string
		now  time.Time
		want Point
	}{
		{name: "before start", now: start.Add(-time.Minute), want: from},
		{name: "at start", now: start, want: from},
		{name: "halfway", now: start.Add(5 * time.Minute), want: Point{Lat: 12.95, Lng: 77.60}},
		{name: "at end", now: start.Add(window), want: to},
		{name: "after end", now: start.Add(time.Hour), want: to},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Interpolate(from, to, start, window, tt.now)
			assert.InDelta(t, tt.want.Lat, got.Lat, 1e-9)
			assert.InDelta(t, tt.want.Lng, got.Lng, 1e-9)
		})
	}
}

func TestInterpolate_EmptyWindow(t *testing.T) {
	to := Point{Lat: 1, Lng: 2}
	now := time.Now()
	assert.Equal(t, to, Interpolate(Point{}, to, now, 0, now))
}

func TestRoute_Positions(t *testing.T) {
	r := Route{BookingID: "bk-1", From: Point{Lat: 0, Lng: 0}, To: Point{Lat: 1, Lng: 1}}
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	got := slices.Collect(r.Positions(start, 10*time.Second, 3*time.Second))
	require.Len(t, got, 5)
	assert.Equal(t, start, got[0].Timestamp)
	assert.Equal(t, 0.0, got[0].Lat)
	assert.Equal(t, start.Add(10*time.Second), got[4].Timestamp)
	assert.Equal(t, 1.0, got[4].Lat)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].Timestamp.After(got[i-1].Timestamp))
		assert.Equal(t, "bk-1", got[i].BookingID)
	}
}

func TestRouteFor(t *testing.T) {
	lat, lng := 12.9, 77.6
	b := &domain.Booking{ID: "bk-1", Pickup: domain.Address{Lat: &lat, Lng: &lng}}
	_, ok := RouteFor(b)
	assert.False(t, ok)

	b.Dropoff = domain.Address{Lat: &lng, Lng: &lat}
	r, ok := RouteFor(b)
	require.True(t, ok)
	assert.Equal(t, Point{Lat: 12.9, Lng: 77.6}, r.From)
	assert.Equal(t, Point{Lat: 77.6, Lng: 12.9}, r.To)
}
