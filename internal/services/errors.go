// Package services defines the business logic for chats, messages, and
// uploads. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by callers
// with errors.Is.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/tbourn/chat-assistant-backend/internal/completion"
	"github.com/tbourn/chat-assistant-backend/internal/repo"
)

var (
	// ErrChatNotFound indicates that no chat record exists for the id.
	ErrChatNotFound = errors.New("chat not found")

	// ErrInvalidEdit is returned when an edit targets an index outside the
	// log or a message that is not a user turn.
	ErrInvalidEdit = errors.New("invalid edit")

	// ErrCompletion marks a failed call to the completion service. It is the
	// same value as completion.ErrCompletion.
	ErrCompletion = completion.ErrCompletion

	// ErrIOFailure marks a local persistence failure.
	ErrIOFailure = errors.New("io failure")

	// ErrEmptyPrompt is returned when a message send carries no text.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrTooLong is returned when a prompt exceeds the configured rune limit.
	ErrTooLong = errors.New("prompt too long")

	// ErrNoFiles is returned for an upload batch without any file.
	ErrNoFiles = errors.New("no files")

	// ErrIdempotencyConflict is returned when an Idempotency-Key is reused
	// with a different prompt.
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different prompt")
)

// storeErr maps store errors onto service errors.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrNotFound):
		return ErrChatNotFound
	case errors.Is(err, ErrChatNotFound), errors.Is(err, ErrIOFailure),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
}
