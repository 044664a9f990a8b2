package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Domenick1991/courierbooking/internal/domain"
	"github.com/Domenick1991/courierbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockBookingUseCase is a mock implementation of booking.BookingUseCase
type MockBookingUseCase struct {
	mock.Mock
}

func (m *MockBookingUseCase) Get(ctx context.Context, id string) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) Refresh(ctx context.Context, id string) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) Actions(b *domain.Booking) (domain.Actions, error) {
	args := m.Called(b)
	return args.Get(0).(domain.Actions), args.Error(1)
}

func (m *MockBookingUseCase) Advance(ctx context.Context, b *domain.Booking, input booking.AdvanceInput) (*domain.Booking, error) {
	args := m.Called(ctx, b, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) Cancel(ctx context.Context, b *domain.Booking, reason string) (*domain.Booking, error) {
	args := m.Called(ctx, b, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) AssignPilot(ctx context.Context, b *domain.Booking, pilotID string) (*domain.Booking, error) {
	args := m.Called(ctx, b, pilotID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) ListCandidates(ctx context.Context) ([]domain.Pilot, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Pilot), args.Error(1)
}

func stored(status domain.Status) *domain.Booking {
	return &domain.Booking{
		ID:             "bk-1",
		Status:         status,
		Pickup:         domain.Address{Street: "12 MG Road", City: "Bengaluru"},
		Dropoff:        domain.Address{Street: "4 Church St", City: "Bengaluru"},
		EstimatedPrice: decimal.RequireFromString("180"),
		UpdatedAt:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newContext(method, target string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "bk-1"}}
	return c, w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) APIError {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Error
}

func TestBookingHandler_get(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService)

	c, w := newContext(http.MethodGet, "/v1/bookings/bk-1", nil)
	mockService.On("Get", c.Request.Context(), "bk-1").Return(stored(domain.StatusInTransit), nil)

	handler.get(c)

	assert.Equal(t, http.StatusOK, w.Code)
	response := bookingResponse{Booking: &domain.Booking{}}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, domain.StatusInTransit, response.Status)
	assert.Equal(t, "In Transit", response.StatusLabel)
	assert.Equal(t, "12 MG Road", response.Pickup.Street)
	mockService.AssertExpectations(t)
}

func TestBookingHandler_get_refresh(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService)

	c, w := newContext(http.MethodGet, "/v1/bookings/bk-1?refresh=true", nil)
	mockService.On("Refresh", c.Request.Context(), "bk-1").Return(stored(domain.StatusPending), nil)

	handler.get(c)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestBookingHandler_get_NotFound(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService)

	c, w := newContext(http.MethodGet, "/v1/bookings/bk-1", nil)
	mockService.On("Get", c.Request.Context(), "bk-1").Return(nil, domain.ErrNotFound)

	handler.get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, w).Code)
}

func TestBookingHandler_actions(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService)

	c, w := newContext(http.MethodGet, "/v1/bookings/bk-1/actions", nil)
	b := stored(domain.StatusPending)
	actions, _ := domain.ActionsFor(domain.StatusPending)
	mockService.On("Get", c.Request.Context(), "bk-1").Return(b, nil)
	mockService.On("Actions", b).Return(actions, nil)

	handler.actions(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var got domain.Actions
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Awaiting Pilot", got.Label)
	assert.True(t, got.CanAssignPilot)
	require.NotNil(t, got.DefaultNext)
	assert.Equal(t, domain.StatusAccepted, *got.DefaultNext)
}

func TestBookingHandler_transition(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService)

	c, w := newContext(http.MethodPost, "/v1/bookings/bk-1/transition", map[string]any{
		"expected_status": "arrived_drop",
		"target_status":   "DELIVERED",
		"final_price":     "210.50",
	})
	// the cache is ahead of the caller; the caller's view wins
	mockService.On("Get", c.Request.Context(), "bk-1").Return(stored(domain.StatusInTransit), nil)
	price := decimal.RequireFromString("210.50")
	delivered := stored(domain.StatusDelivered)
	delivered.FinalPrice = &price
	mockService.On("Advance", c.Request.Context(),
		mock.MatchedBy(func(b *domain.Booking) bool { return b.Status == domain.StatusArrivedDrop }),
		mock.MatchedBy(func(in booking.AdvanceInput) bool {
			return in.Target == domain.StatusDelivered && in.FinalPrice != nil && in.FinalPrice.Equal(price)
		}),
	).Return(delivered, nil)

	handler.transition(c)

	assert.Equal(t, http.StatusOK, w.Code)
	response := bookingResponse{Booking: &domain.Booking{}}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, domain.StatusDelivered, response.Status)
	mockService.AssertExpectations(t)
}

func TestBookingHandler_transition_Errors(t *testing.T) {
	testCases := []struct {
		name       string
		body       map[string]any
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing expected status",
			body:       map[string]any{"target_status": "DELIVERED"},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeValidationFailed,
		},
		{
			name:       "unknown target",
			body:       map[string]any{"expected_status": "PENDING", "target_status": "RETURNED"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   CodeUnknownStatus,
		},
		{
			name:       "illegal",
			body:       map[string]any{"expected_status": "PICKED_UP", "target_status": "ACCEPTED"},
			serviceErr: domain.ErrIllegalTransition,
			wantStatus: http.StatusConflict,
			wantCode:   CodeIllegalTransition,
		},
		{
			name:       "conflict",
			body:       map[string]any{"expected_status": "PICKED_UP", "target_status": "IN_TRANSIT"},
			serviceErr: domain.ErrConflict,
			wantStatus: http.StatusConflict,
			wantCode:   CodeConflict,
		},
		{
			name:       "busy",
			body:       map[string]any{"expected_status": "PICKED_UP", "target_status": "IN_TRANSIT"},
			serviceErr: domain.ErrBusy,
			wantStatus: http.StatusTooManyRequests,
			wantCode:   CodeBusy,
		},
		{
			name:       "timeout",
			body:       map[string]any{"expected_status": "PICKED_UP", "target_status": "IN_TRANSIT"},
			serviceErr: domain.ErrTimeout,
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   CodeTimeout,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockService := &MockBookingUseCase{}
			handler := NewBookingHandler(mockService)

			c, w := newContext(http.MethodPost, "/v1/bookings/bk-1/transition", tc.body)
			mockService.On("Get", c.Request.Context(), "bk-1").Return(stored(domain.StatusPickedUp), nil).Maybe()
			if tc.serviceErr != nil {
				mockService.On("Advance", c.Request.Context(), mock.Anything, mock.Anything).Return(nil, tc.serviceErr)
			}

			handler.transition(c)

			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Equal(t, tc.wantCode, decodeError(t, w).Code)
			mockService.AssertExpectations(t)
		})
	}
}

func TestBookingHandler_cancel(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService)

	c, w := newContext(http.MethodPost, "/v1/bookings/bk-1/cancel", map[string]any{
		"expected_status": "SEARCHING",
		"reason":          "customer changed plans",
	})
	mockService.On("Get", c.Request.Context(), "bk-1").Return(stored(domain.StatusPending), nil)
	mockService.On("Cancel", c.Request.Context(),
		mock.MatchedBy(func(b *domain.Booking) bool { return b.Status == domain.StatusPending }),
		"customer changed plans",
	).Return(stored(domain.StatusCancelled), nil)

	handler.cancel(c)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestBookingHandler_cancel_InvalidReason(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService)

	c, w := newContext(http.MethodPost, "/v1/bookings/bk-1/cancel", map[string]any{
		"expected_status": "PENDING",
		"reason":          "nah",
	})
	mockService.On("Get", c.Request.Context(), "bk-1").Return(stored(domain.StatusPending), nil)
	mockService.On("Cancel", c.Request.Context(), mock.Anything, "nah").Return(nil, domain.ErrInvalidReason)

	handler.cancel(c)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, CodeInvalidReason, decodeError(t, w).Code)
}

func TestBookingHandler_assignPilot(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService)

	c, w := newContext(http.MethodPost, "/v1/bookings/bk-1/assign-pilot", map[string]any{
		"expected_status": "PENDING",
		"pilot_id":        "pl-7",
	})
	mockService.On("Get", c.Request.Context(), "bk-1").Return(stored(domain.StatusPending), nil)
	mockService.On("AssignPilot", c.Request.Context(), mock.Anything, "pl-7").Return(nil, domain.ErrPilotUnavailable)

	handler.assignPilot(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodePilotUnavailable, decodeError(t, w).Code)
}

func TestStatusFor_InternalHidesMessage(t *testing.T) {
	c, w := newContext(http.MethodGet, "/", nil)
	WriteError(c, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	env := decodeError(t, w)
	assert.Equal(t, CodeInternal, env.Code)
	assert.Equal(t, "internal error", env.Message)
}

func TestErrorFor_RoundTrip(t *testing.T) {
	for _, e := range errorCodes {
		code, _ := StatusFor(e.err)
		assert.ErrorIs(t, ErrorFor(APIError{Code: code, Message: "x"}), e.err)
	}
	assert.Error(t, ErrorFor(APIError{Code: "SOMETHING_NEW"}))
}
