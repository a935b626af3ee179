// Package completion is the narrow boundary to remote text/vision
// generation services.
//
// A Gateway turns a model id, a system instruction and an ordered history of
// role-tagged turns (text, optionally with one inline image) into the text of
// the single top response. Concrete gateways exist for OpenAI chat
// completions and the Gemini API; Router, Limited and Instrumented compose
// them, and Echo serves offline development and tests.
//
// Every failure a gateway reports wraps ErrCompletion so callers can match it
// with errors.Is regardless of provider. Gateways never retry.
package completion

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrCompletion marks a failed call to a completion service: transport
// errors, non-2xx responses, and empty or malformed payloads.
var ErrCompletion = errors.New("completion failed")

// Turn roles accepted in Request.History.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// InlineImage carries raw image bytes tagged with their content type.
type InlineImage struct {
	ContentType string
	Data        []byte
}

// DataURL encodes the image as a base64 data URL.
func (i InlineImage) DataURL() string {
	return "data:" + i.ContentType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Turn is one history entry. Image is only meaningful on user turns.
type Turn struct {
	Role  string
	Text  string
	Image *InlineImage
}

// Request describes one completion call.
type Request struct {
	Model        string
	SystemPrompt string
	History      []Turn
	// MaxOutputTokens caps the response length; <= 0 leaves it to the
	// provider.
	MaxOutputTokens int
}

// Gateway produces the assistant text for a request.
type Gateway interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f GatewayFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// fail wraps err as an ErrCompletion attributed to provider. Context errors
// stay matchable with errors.Is as well.
func fail(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCompletion, provider, err)
}

// errEmpty reports a syntactically valid response without any text.
var errEmpty = errors.New("empty response")

func validate(req Request) error {
	if len(req.History) == 0 {
		return errors.New("empty history")
	}
	return nil
}
