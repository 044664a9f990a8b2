// Package adminclient talks to the booking API on behalf of an operator. It
// satisfies the repository interfaces, so the lifecycle controller runs
// unchanged against a remote deployment.
package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/courierbooking/api"
	"github.com/Domenick1991/courierbooking/internal/compat"
	"github.com/Domenick1991/courierbooking/internal/domain"
	"github.com/Domenick1991/courierbooking/internal/realtime"
	"github.com/Domenick1991/courierbooking/internal/repository"
	"github.com/shopspring/decimal"
)

var (
	ErrUnauthorized   = errors.New("admin session rejected")
	ErrSessionExpired = errors.New("admin session expired")
)

// Session is the operator's credential. It is shared by pointer so a
// refreshed token is picked up by every client holding it.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return s == nil || s.Token == "" || (!s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt))
}

type Client struct {
	baseURL string
	http    *http.Client
	session *Session
	now     func() time.Time
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func NewClient(baseURL string, session *Session, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		session: session,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Realtime returns a socket client for the same deployment and session.
func (c *Client) Realtime() *realtime.Client {
	ws := c.baseURL + "/v1/ws"
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	var token string
	if c.session != nil {
		token = c.session.Token
	}
	return realtime.NewClient(ws, token)
}

func (c *Client) Get(ctx context.Context, id string) (*domain.Booking, error) {
	var out wireBooking
	if err := c.do(ctx, http.MethodGet, "/v1/bookings/"+url.PathEscape(id)+"?refresh=true", nil, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) Transition(ctx context.Context, id string, expected, target domain.Status, note string, finalPrice *decimal.Decimal) (*domain.Booking, error) {
	body := map[string]any{
		"expected_status": expected,
		"target_status":   target,
	}
	if note != "" {
		body["note"] = note
	}
	if finalPrice != nil {
		body["final_price"] = finalPrice
	}
	var out wireBooking
	if err := c.do(ctx, http.MethodPost, "/v1/bookings/"+url.PathEscape(id)+"/transition", body, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) Cancel(ctx context.Context, id string, expected domain.Status, reason string) (*domain.Booking, error) {
	body := map[string]any{"expected_status": expected, "reason": reason}
	var out wireBooking
	if err := c.do(ctx, http.MethodPost, "/v1/bookings/"+url.PathEscape(id)+"/cancel", body, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) AssignPilot(ctx context.Context, id string, expected domain.Status, pilotID string) (*domain.Booking, error) {
	body := map[string]any{"expected_status": expected, "pilot_id": pilotID}
	var out wireBooking
	if err := c.do(ctx, http.MethodPost, "/v1/bookings/"+url.PathEscape(id)+"/assign-pilot", body, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) ListPilots(ctx context.Context, filter domain.PilotFilter) ([]domain.Pilot, error) {
	q := url.Values{}
	if filter.Status != nil {
		q.Set("status", string(*filter.Status))
	}
	if filter.Online != nil {
		q.Set("online", strconv.FormatBool(*filter.Online))
	}
	path := "/v1/pilots"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []domain.Pilot
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.session.Expired(c.now()) {
		return ErrSessionExpired
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.session.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var env api.ErrorEnvelope
		if json.Unmarshal(data, &env) == nil && env.Error.Code != "" {
			if env.Error.Code == api.CodeUnauthorized {
				return fmt.Errorf("%w: %s", ErrUnauthorized, env.Error.Message)
			}
			return api.ErrorFor(env.Error)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return fmt.Errorf("%w: %s %s: http %d", domain.ErrTransport, method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	// A canceled request may still have been applied by the server.
	return fmt.Errorf("%w: %w", domain.ErrTransport, err)
}

type wireBooking struct {
	ID             string           `json:"id"`
	Status         string           `json:"status"`
	Pickup         compat.Address   `json:"pickup_address"`
	Dropoff        compat.Address   `json:"dropoff_address"`
	PilotID        *string          `json:"pilot_id"`
	EstimatedPrice decimal.Decimal  `json:"estimated_price"`
	FinalPrice     *decimal.Decimal `json:"final_price"`
	CancelReason   *string          `json:"cancel_reason"`
	Note           *string          `json:"note"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// toDomain folds legacy status names; unknown ones pass through unchanged
// for the controller to reject.
func (w wireBooking) toDomain() *domain.Booking {
	status := domain.Status(w.Status)
	if parsed, err := domain.ParseStatus(w.Status); err == nil {
		status = parsed
	}
	return &domain.Booking{
		ID:             w.ID,
		Status:         status,
		Pickup:         domain.Address(w.Pickup),
		Dropoff:        domain.Address(w.Dropoff),
		PilotID:        w.PilotID,
		EstimatedPrice: w.EstimatedPrice,
		FinalPrice:     w.FinalPrice,
		CancelReason:   w.CancelReason,
		Note:           w.Note,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
	}
}

var (
	_ repository.BookingRepository = (*Client)(nil)
	_ repository.PilotRepository   = (*Client)(nil)
)
