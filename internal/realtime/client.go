package realtime

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"net/http"
	"sort"
	"sync"

	"github.com/gorilla/websocket"
)

// Client follows bookings over the socket endpoint. The subscription set
// outlives connections: every new stream re-sends it.
type Client struct {
	url    string
	header http.Header
	dialer *websocket.Dialer

	mu   sync.Mutex
	subs map[string]struct{}
	conn *websocket.Conn
}

func NewClient(url, token string) *Client {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &Client{
		url:    url,
		header: header,
		dialer: websocket.DefaultDialer,
		subs:   make(map[string]struct{}),
	}
}

func (c *Client) Subscribe(bookingID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[bookingID] = struct{}{}
	return c.sendLocked(Control{Action: ActionSubscribe, BookingID: bookingID})
}

func (c *Client) Unsubscribe(bookingID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, bookingID)
	return c.sendLocked(Control{Action: ActionUnsubscribe, BookingID: bookingID})
}

func (c *Client) sendLocked(msg Control) error {
	if c.conn == nil {
		return nil
	}
	return c.conn.WriteJSON(msg)
}

// Stream yields events until ctx ends or the connection fails. Nothing is
// dialed until the first value is pulled, and ranging over the sequence again
// opens a fresh connection. A connection failure is yielded once as the final
// element; cancellation ends the sequence silently.
func (c *Client) Stream(ctx context.Context) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			yield(Event{}, fmt.Errorf("dial %s: %w", c.url, err))
			return
		}
		if err := c.attach(conn); err != nil {
			conn.Close()
			yield(Event{}, fmt.Errorf("resubscribe: %w", err))
			return
		}

		stop := make(chan struct{})
		defer func() {
			close(stop)
			c.detach(conn)
		}()
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-stop:
			}
		}()

		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					yield(Event{}, err)
				}
				return
			}
			for _, line := range bytes.Split(frame, []byte{'\n'}) {
				if len(bytes.TrimSpace(line)) == 0 {
					continue
				}
				ev, err := DecodeEvent(line)
				if err != nil {
					if !yield(Event{}, err) {
						return
					}
					continue
				}
				if !yield(ev, nil) {
					return
				}
			}
		}
	}
}

// Watch folds the stream into v, yielding the view after every event.
func Watch(ctx context.Context, c *Client, initial View) iter.Seq2[View, error] {
	return func(yield func(View, error) bool) {
		v := initial
		for ev, err := range c.Stream(ctx) {
			if err != nil {
				if !yield(v, err) {
					return
				}
				continue
			}
			v = Apply(v, ev)
			if !yield(v, nil) {
				return
			}
		}
	}
}

func (c *Client) attach(conn *websocket.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := conn.WriteJSON(Control{Action: ActionSubscribe, BookingID: id}); err != nil {
			return err
		}
	}
	c.conn = conn
	return nil
}

func (c *Client) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}
