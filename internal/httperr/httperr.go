package httperr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domain "github.com/BruksfildServices01/slot-scheduler/internal/domain/timeslot"
)

type HTTPError struct {
	Code    string              `json:"error_code"`
	Message string              `json:"message"`
	Errors  []domain.FieldError `json:"errors,omitempty"`
}

func Write(c *gin.Context, status int, code, message string) {
	c.JSON(status, HTTPError{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, code, message string) {
	Write(c, http.StatusBadRequest, code, message)
}

func NotFound(c *gin.Context, code, message string) {
	Write(c, http.StatusNotFound, code, message)
}

func Internal(c *gin.Context, code, message string) {
	Write(c, http.StatusInternalServerError, code, message)
}

func Unauthorized(c *gin.Context, code, message string) {
	Write(c, http.StatusUnauthorized, code, message)
}

// ======================================================
// Domain errors
// ======================================================

func StatusFor(code domain.Code) int {
	switch code {
	case domain.CodeMissingField,
		domain.CodeInvalidField,
		domain.CodeInvalidRange,
		domain.CodeInvalidDate,
		domain.CodePastDate,
		domain.CodeEntityMismatch,
		domain.CodeDuplicateTarget:
		return http.StatusBadRequest
	case domain.CodeCapacityExceeded:
		return http.StatusUnprocessableEntity
	case domain.CodeOverlap, domain.CodeAlreadyProcessed:
		return http.StatusConflict
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// FromError writes the response for an error returned by a use case.
func FromError(c *gin.Context, err error) {
	var ve domain.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		c.JSON(StatusFor(ve[0].Code), HTTPError{
			Code:    string(ve[0].Code),
			Message: "Request has validation errors.",
			Errors:  ve,
		})
		return
	}

	switch {
	case IsExclusionConflict(err):
		Write(c, http.StatusConflict, string(domain.CodeOverlap), "Slot overlaps an existing slot.")
		return
	case IsSerializationFailure(err):
		Write(c, http.StatusConflict, "retry", "Concurrent update, retry the request.")
		return
	}

	var de *domain.Error
	if errors.As(err, &de) {
		msg := de.Message
		if de.Code == domain.CodeRepositoryFailure {
			msg = "Storage failure."
		}
		Write(c, StatusFor(de.Code), string(de.Code), msg)
		return
	}

	Internal(c, string(domain.CodeRepositoryFailure), "Unexpected error.")
}
