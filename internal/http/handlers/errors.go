// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on messages. Generic codes mirror HTTP status semantics, domain codes
// name the failing stage.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "completion_failed",
//	  "message": "completion service unavailable"
//	}
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/chat-assistant-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeTooLarge         = "payload_too_large"
	ErrCodeTimeout          = "timeout"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeInvalidEdit      = "invalid_edit"
	ErrCodeCompletionFailed = "completion_failed"
	ErrCodeIOFailure        = "io_failure"
	ErrCodeIdemConflict     = "idempotency_conflict"
)

// failErr translates a service error into the matching status and code.
func failErr(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, services.ErrChatNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "chat not found")
	case errors.Is(err, services.ErrInvalidEdit):
		fail(c, http.StatusBadRequest, ErrCodeInvalidEdit, "only an existing user message can be edited")
	case errors.Is(err, services.ErrEmptyPrompt):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
	case errors.Is(err, services.ErrTooLong):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content too long")
	case errors.Is(err, services.ErrIdempotencyConflict):
		fail(c, http.StatusConflict, ErrCodeIdemConflict, "idempotency key already used for a different message")
	case errors.Is(err, services.ErrNoFiles):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "no files in request")
	case errors.As(err, &tooLarge):
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
	case errors.Is(err, services.ErrCompletion):
		_ = c.Error(err)
		fail(c, http.StatusBadGateway, ErrCodeCompletionFailed, "completion service unavailable")
	case errors.Is(err, services.ErrIOFailure):
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeIOFailure, "storage failure")
	case errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusGatewayTimeout, ErrCodeTimeout, "request timed out")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}
