package realtime

import (
	"context"
	"iter"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Domenick1991/courierbooking/internal/domain"
	"github.com/Domenick1991/courierbooking/internal/kafka"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(time.Second, 8, nil)
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", hub.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

type streamItem struct {
	ev  Event
	err error
}

// drain ranges over seq in the background, since pulling the first value
// blocks until something is published.
func drain(seq iter.Seq2[Event, error]) <-chan streamItem {
	out := make(chan streamItem, 16)
	go func() {
		defer close(out)
		for ev, err := range seq {
			out <- streamItem{ev: ev, err: err}
		}
	}()
	return out
}

func waitSubscribers(t *testing.T, hub *Hub, id string, want int) {
	t.Helper()
	assert.Eventually(t, func() bool {
		n, err := hub.Subscribers(context.Background(), id)
		return err == nil && n == want
	}, 2*time.Second, 10*time.Millisecond)
}

func receive(t *testing.T, ch <-chan streamItem) streamItem {
	t.Helper()
	select {
	case item, ok := <-ch:
		require.True(t, ok, "stream ended early")
		return item
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return streamItem{}
	}
}

func TestHub_DeliversOnlySubscribedBookings(t *testing.T) {
	hub, url := startHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewClient(url, "")
	require.NoError(t, c.Subscribe("bk-1"))
	events := drain(c.Stream(ctx))
	waitSubscribers(t, hub, "bk-1", 1)

	require.NoError(t, hub.Publish(ctx, BookingUpdated("advanced", &domain.Booking{ID: "bk-2", Status: domain.StatusAccepted})))
	require.NoError(t, hub.Publish(ctx, BookingUpdated("advanced", &domain.Booking{ID: "bk-1", Status: domain.StatusPickedUp})))

	item := receive(t, events)
	require.NoError(t, item.err)
	assert.Equal(t, "bk-1", item.ev.BookingID())
	assert.Equal(t, domain.StatusPickedUp, item.ev.Booking.Status)
}

func TestHub_UnsubscribeWhileConnected(t *testing.T) {
	hub, url := startHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewClient(url, "")
	require.NoError(t, c.Subscribe("bk-1"))
	events := drain(c.Stream(ctx))
	waitSubscribers(t, hub, "bk-1", 1)

	require.NoError(t, c.Subscribe("bk-3"))
	waitSubscribers(t, hub, "bk-3", 1)
	require.NoError(t, c.Unsubscribe("bk-1"))
	waitSubscribers(t, hub, "bk-1", 0)

	require.NoError(t, hub.Publish(ctx, PilotLocation(domain.CoordinateUpdate{BookingID: "bk-3", Lat: 1, Lng: 2, Timestamp: time.Now()})))
	item := receive(t, events)
	require.NoError(t, item.err)
	assert.Equal(t, EventPilotLocation, item.ev.Type)
	assert.Equal(t, "bk-3", item.ev.BookingID())
}

func TestClient_StreamIsRestartable(t *testing.T) {
	hub, url := startHub(t)
	c := NewClient(url, "")
	require.NoError(t, c.Subscribe("bk-1"))

	for range 2 {
		ctx, cancel := context.WithCancel(context.Background())
		events := drain(c.Stream(ctx))
		waitSubscribers(t, hub, "bk-1", 1)

		require.NoError(t, hub.Publish(ctx, BookingUpdated("cancelled", &domain.Booking{ID: "bk-1", Status: domain.StatusCancelled})))
		item := receive(t, events)
		require.NoError(t, item.err)
		assert.Equal(t, domain.StatusCancelled, item.ev.Booking.Status)

		cancel()
		for range events {
		}
		waitSubscribers(t, hub, "bk-1", 0)
	}
}

func TestClient_StreamReportsDialFailure(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", "")
	next, stop := iter.Pull2(c.Stream(context.Background()))
	defer stop()

	_, err, ok := next()
	require.True(t, ok)
	assert.Error(t, err)

	_, _, ok = next()
	assert.False(t, ok)
}

func TestHub_PublishAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(time.Second, 1, nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	err := hub.Publish(context.Background(), BookingUpdated("advanced", &domain.Booking{ID: "bk-1"}))
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestRelay_SkipsUndecodableMessages(t *testing.T) {
	hub, url := startHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewClient(url, "")
	require.NoError(t, c.Subscribe("bk-7"))
	events := drain(c.Stream(ctx))
	waitSubscribers(t, hub, "bk-7", 1)

	relay := NewRelay(hub, nil)
	require.NoError(t, relay.Handle(ctx, kafka.Message{Topic: "booking-events", Value: []byte("not json")}))
	require.NoError(t, relay.Handle(ctx, kafka.Message{
		Topic: "booking-events",
		Value: []byte(`{"id":"e1","type":"booking.updated","booking":{"id":"bk-7","status":"IN_TRANSIT"}}`),
	}))

	item := receive(t, events)
	require.NoError(t, item.err)
	assert.Equal(t, domain.StatusInTransit, item.ev.Booking.Status)
}

func TestWatch_EachRangeStartsFromInitialView(t *testing.T) {
	hub, url := startHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewClient(url, "")
	require.NoError(t, c.Subscribe("bk-1"))
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	views := Watch(ctx, c, NewView(booking("bk-1", domain.StatusInTransit, t0)))

	firstView := func(ev Event) View {
		t.Helper()
		out := make(chan View, 1)
		go func() {
			for v, err := range views {
				if err == nil {
					out <- v
					return
				}
			}
		}()
		waitSubscribers(t, hub, "bk-1", 1)
		require.NoError(t, hub.Publish(ctx, ev))

		select {
		case v := <-out:
			waitSubscribers(t, hub, "bk-1", 0)
			return v
		case <-time.After(2 * time.Second):
			t.Fatal("no view received")
			return View{}
		}
	}

	moved := firstView(PilotLocation(domain.CoordinateUpdate{BookingID: "bk-1", Lat: 12.97, Lng: 77.59, Timestamp: t0.Add(time.Minute)}))
	require.NotNil(t, moved.Position)

	arrived := firstView(BookingUpdated("advanced", booking("bk-1", domain.StatusArrivedDrop, t0.Add(2*time.Minute))))
	require.NotNil(t, arrived.Booking)
	assert.Equal(t, domain.StatusArrivedDrop, arrived.Booking.Status)
	assert.Nil(t, arrived.Position, "second range must not carry state folded by the first")
}
