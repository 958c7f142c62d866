package http

import (
	"errors"
	"net/http"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/gin-gonic/gin"
)

// Error codes carried in the response envelope
const (
	CodeValidation        = "validation_error"
	CodeNotFound          = "not_found"
	CodeNotAuthorized     = "not_authorized"
	CodeInvalidTransition = "invalid_transition"
	CodeConflict          = "conflict"
	CodeDependencyFailure = "dependency_failure"
	CodeInternal          = "internal_error"
)

// classify maps the error taxonomy onto an HTTP status and envelope code
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, entity.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, entity.ErrNotAuthorized):
		return http.StatusForbidden, CodeNotAuthorized
	case errors.Is(err, entity.ErrInvalidTransition):
		return http.StatusConflict, CodeInvalidTransition
	case errors.Is(err, entity.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, entity.ErrDependencyFailure):
		return http.StatusBadGateway, CodeDependencyFailure
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// respondError writes err in the envelope. Internal errors are logged and
// their detail is withheld from the client.
func (h *Handlers) respondError(c *gin.Context, op string, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"operation", op,
			"request_id", requestID(c),
			"error", err,
		)
		if status == http.StatusInternalServerError {
			msg = "internal server error"
		}
	}
	c.JSON(status, Response{Success: false, Error: msg, Code: code})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg, Code: CodeValidation})
}
