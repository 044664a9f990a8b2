package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/Domenick1991/courierbooking/internal/domain"
	"github.com/Domenick1991/courierbooking/internal/service/pilots"
	"github.com/gin-gonic/gin"
)

type PilotHandler struct {
	service pilots.PilotUseCase
}

func NewPilotHandler(service pilots.PilotUseCase) *PilotHandler {
	return &PilotHandler{service: service}
}

func (h *PilotHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.list)
	router.GET("/candidates", h.candidates)
}

func (h *PilotHandler) list(c *gin.Context) {
	filter, err := parsePilotFilter(c)
	if err != nil {
		writeValidation(c, err.Error())
		return
	}
	list, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *PilotHandler) candidates(c *gin.Context) {
	list, err := h.service.Candidates(c.Request.Context())
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func parsePilotFilter(c *gin.Context) (domain.PilotFilter, error) {
	var filter domain.PilotFilter
	if raw := c.Query("status"); raw != "" {
		status, ok := domain.ParsePilotStatus(raw)
		if !ok {
			return filter, fmt.Errorf("invalid pilot status %q", raw)
		}
		filter.Status = &status
	}
	if raw := c.Query("online"); raw != "" {
		online, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid online flag %q", raw)
		}
		filter.Online = &online
	}
	return filter, nil
}
