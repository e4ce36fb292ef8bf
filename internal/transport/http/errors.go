package http

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"quiz-room-service/internal/domain"
)

// Transport-level codes for requests that never reach a room operation.
const (
	codeInvalidRequest domain.Code = "INVALID_REQUEST"
	codeInvalidMessage domain.Code = "INVALID_MESSAGE"
	codeNotInRoom      domain.Code = "NOT_IN_ROOM"
)

type errorPayload struct {
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// payloadFor hides the details of unclassified errors from clients.
func payloadFor(err error) errorPayload {
	var de *domain.Error
	if errors.As(err, &de) {
		return errorPayload{Code: de.Code, Message: de.Message}
	}
	return errorPayload{Code: domain.CodeInternal, Message: "internal error"}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, payloadFor(err))
}

func respondInvalid(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorPayload{Code: codeInvalidRequest, Message: msg})
}
