package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrHubClosed = errors.New("realtime hub stopped")

const (
	readLimit    = 1024
	pongWait     = 60 * time.Second
	writeTimeout = 10 * time.Second
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

type controlRequest struct {
	client *client
	msg    Control
}

type countRequest struct {
	bookingID string
	reply     chan int
}

// Hub fans events out to the sockets subscribed to their booking id. All
// subscription state is owned by the Run goroutine.
type Hub struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	sendBuffer   int
	logger       *slog.Logger

	register   chan *client
	unregister chan *client
	control    chan controlRequest
	publish    chan Event
	counts     chan countRequest
	done       chan struct{}
}

func NewHub(pingInterval time.Duration, sendBuffer int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Callers are authenticated by token before the upgrade.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pingInterval: pingInterval,
		sendBuffer:   sendBuffer,
		logger:       logger,
		register:     make(chan *client),
		unregister:   make(chan *client),
		control:      make(chan controlRequest),
		publish:      make(chan Event),
		counts:       make(chan countRequest),
		done:         make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	clients := make(map[*client]map[string]struct{})
	subs := make(map[string]map[*client]struct{})

	drop := func(c *client) {
		ids, ok := clients[c]
		if !ok {
			return
		}
		for id := range ids {
			delete(subs[id], c)
			if len(subs[id]) == 0 {
				delete(subs, id)
			}
		}
		delete(clients, c)
		close(c.send)
	}

	for {
		select {
		case <-ctx.Done():
			for c := range clients {
				drop(c)
			}
			close(h.done)
			return

		case c := <-h.register:
			clients[c] = make(map[string]struct{})
			h.logger.Debug("socket registered", "client", c.id)

		case c := <-h.unregister:
			drop(c)
			h.logger.Debug("socket unregistered", "client", c.id)

		case req := <-h.control:
			ids, ok := clients[req.client]
			if !ok || req.msg.BookingID == "" {
				continue
			}
			switch req.msg.Action {
			case ActionSubscribe:
				ids[req.msg.BookingID] = struct{}{}
				if subs[req.msg.BookingID] == nil {
					subs[req.msg.BookingID] = make(map[*client]struct{})
				}
				subs[req.msg.BookingID][req.client] = struct{}{}
			case ActionUnsubscribe:
				delete(ids, req.msg.BookingID)
				delete(subs[req.msg.BookingID], req.client)
				if len(subs[req.msg.BookingID]) == 0 {
					delete(subs, req.msg.BookingID)
				}
			default:
				h.logger.Warn("unknown socket action", "client", req.client.id, "action", req.msg.Action)
			}

		case ev := <-h.publish:
			targets := subs[ev.BookingID()]
			if len(targets) == 0 {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("marshal event", "event", ev.ID, "err", err)
				continue
			}
			for c := range targets {
				select {
				case c.send <- data:
				default:
					h.logger.Warn("dropping slow socket", "client", c.id)
					drop(c)
				}
			}

		case req := <-h.counts:
			req.reply <- len(subs[req.bookingID])
		}
	}
}

// Publish hands ev to the Run loop.
func (h *Hub) Publish(ctx context.Context, ev Event) error {
	select {
	case h.publish <- ev:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribers returns how many sockets currently follow bookingID.
func (h *Hub) Subscribers(ctx context.Context, bookingID string) (int, error) {
	req := countRequest{bookingID: bookingID, reply: make(chan int, 1)}
	select {
	case h.counts <- req:
	case <-h.done:
		return 0, ErrHubClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return <-req.reply, nil
}

// ServeWS upgrades the request and runs the socket until it closes.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("socket upgrade failed", "err", err)
		return
	}

	cl := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, h.sendBuffer)}
	ctx := c.Request.Context()
	select {
	case h.register <- cl:
	case <-h.done:
		conn.Close()
		return
	case <-ctx.Done():
		conn.Close()
		return
	}

	go h.writePump(cl)
	h.readPump(ctx, cl)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			// Queued messages share the frame, one JSON document per line.
			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(ctx context.Context, c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		case <-ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("socket read failed", "client", c.id, "err", err)
			}
			return
		}

		var msg Control
		if err := json.Unmarshal(message, &msg); err != nil {
			h.logger.Warn("bad control message", "client", c.id, "err", err)
			continue
		}

		select {
		case h.control <- controlRequest{client: c, msg: msg}:
		case <-h.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
