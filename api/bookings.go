package api

import (
	"net/http"

	"github.com/Domenick1991/courierbooking/internal/domain"
	"github.com/Domenick1991/courierbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type transitionRequest struct {
	ExpectedStatus string           `json:"expected_status" binding:"required"`
	TargetStatus   string           `json:"target_status" binding:"required"`
	Note           string           `json:"note"`
	FinalPrice     *decimal.Decimal `json:"final_price"`
}

type cancelRequest struct {
	ExpectedStatus string `json:"expected_status" binding:"required"`
	Reason         string `json:"reason"`
}

type assignPilotRequest struct {
	ExpectedStatus string `json:"expected_status" binding:"required"`
	PilotID        string `json:"pilot_id" binding:"required"`
}

type bookingResponse struct {
	*domain.Booking
	StatusLabel string `json:"status_label"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.GET("/:id", h.get)
	router.GET("/:id/actions", h.actions)
	router.POST("/:id/transition", h.transition)
	router.POST("/:id/cancel", h.cancel)
	router.POST("/:id/assign-pilot", h.assignPilot)
}

func (h *BookingHandler) get(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		b   *domain.Booking
		err error
	)
	if c.Query("refresh") == "true" {
		b, err = h.service.Refresh(ctx, c.Param("id"))
	} else {
		b, err = h.service.Get(ctx, c.Param("id"))
	}
	if err != nil {
		WriteError(c, err)
		return
	}
	respond(c, b)
}

func (h *BookingHandler) actions(c *gin.Context) {
	b, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	actions, err := h.service.Actions(b)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, actions)
}

func (h *BookingHandler) transition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, err.Error())
		return
	}
	target, err := domain.ParseStatus(req.TargetStatus)
	if err != nil {
		WriteError(c, err)
		return
	}
	b, ok := h.snapshot(c, req.ExpectedStatus)
	if !ok {
		return
	}

	updated, err := h.service.Advance(c.Request.Context(), b, booking.AdvanceInput{
		Target:     target,
		Note:       req.Note,
		FinalPrice: req.FinalPrice,
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	respond(c, updated)
}

func (h *BookingHandler) cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, err.Error())
		return
	}
	b, ok := h.snapshot(c, req.ExpectedStatus)
	if !ok {
		return
	}

	updated, err := h.service.Cancel(c.Request.Context(), b, req.Reason)
	if err != nil {
		WriteError(c, err)
		return
	}
	respond(c, updated)
}

func (h *BookingHandler) assignPilot(c *gin.Context) {
	var req assignPilotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, err.Error())
		return
	}
	b, ok := h.snapshot(c, req.ExpectedStatus)
	if !ok {
		return
	}

	updated, err := h.service.AssignPilot(c.Request.Context(), b, req.PilotID)
	if err != nil {
		WriteError(c, err)
		return
	}
	respond(c, updated)
}

// snapshot loads the booking and pins its status to what the caller last
// saw, so the store rejects the change if the booking has moved since.
func (h *BookingHandler) snapshot(c *gin.Context, expected string) (*domain.Booking, bool) {
	status, err := domain.ParseStatus(expected)
	if err != nil {
		WriteError(c, err)
		return nil, false
	}
	b, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return nil, false
	}
	b = b.Clone()
	b.Status = status
	return b, true
}

func respond(c *gin.Context, b *domain.Booking) {
	// Stored rows can carry statuses this build does not know; they are
	// still returned, with an empty label.
	label, _ := domain.Label(b.Status)
	c.JSON(http.StatusOK, bookingResponse{Booking: b, StatusLabel: label})
}
