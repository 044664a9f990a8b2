package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Domenick1991/courierbooking/internal/domain"
	"github.com/gin-gonic/gin"
)

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	CodeIllegalTransition   = "ILLEGAL_TRANSITION"
	CodeNotCancellable      = "NOT_CANCELLABLE"
	CodeNotAssignable       = "NOT_ASSIGNABLE"
	CodeInvalidReason       = "INVALID_REASON"
	CodePilotUnavailable    = "PILOT_UNAVAILABLE"
	CodeFinalPriceImmutable = "FINAL_PRICE_IMMUTABLE"
	CodeConflict            = "CONFLICT"
	CodeNotFound            = "NOT_FOUND"
	CodeBusy                = "BUSY"
	CodeTimeout             = "TIMEOUT"
	CodeUnavailable         = "UNAVAILABLE"
	CodeUnknownStatus       = "UNKNOWN_STATUS"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInternal            = "INTERNAL"
)

var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{domain.ErrIllegalTransition, CodeIllegalTransition, http.StatusConflict},
	{domain.ErrNotCancellable, CodeNotCancellable, http.StatusConflict},
	{domain.ErrNotAssignable, CodeNotAssignable, http.StatusConflict},
	{domain.ErrInvalidReason, CodeInvalidReason, http.StatusUnprocessableEntity},
	{domain.ErrPilotUnavailable, CodePilotUnavailable, http.StatusConflict},
	{domain.ErrFinalPriceImmutable, CodeFinalPriceImmutable, http.StatusUnprocessableEntity},
	{domain.ErrConflict, CodeConflict, http.StatusConflict},
	{domain.ErrNotFound, CodeNotFound, http.StatusNotFound},
	{domain.ErrBusy, CodeBusy, http.StatusTooManyRequests},
	{domain.ErrTimeout, CodeTimeout, http.StatusGatewayTimeout},
	{domain.ErrTransport, CodeUnavailable, http.StatusServiceUnavailable},
	{domain.ErrUnknownStatus, CodeUnknownStatus, http.StatusUnprocessableEntity},
}

// StatusFor maps a service error to its wire code and HTTP status.
func StatusFor(err error) (string, int) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code, e.status
		}
	}
	return CodeInternal, http.StatusInternalServerError
}

// ErrorFor is the inverse of StatusFor, used by clients of the API.
func ErrorFor(env APIError) error {
	for _, e := range errorCodes {
		if e.code == env.Code {
			return fmt.Errorf("%w: %s", e.err, env.Message)
		}
	}
	return fmt.Errorf("api error %s: %s", env.Code, env.Message)
}

func WriteError(c *gin.Context, err error) {
	code, status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Code: code, Message: message}})
}

func writeValidation(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorEnvelope{Error: APIError{Code: CodeValidationFailed, Message: message}})
}
