package completion

import (
	"context"
	"fmt"
	"strings"
)

// Echo is an offline gateway. It answers with the last user turn, which
// keeps the service usable without API keys.
type Echo struct{}

// Complete echoes the newest user turn. Images are described by type and
// size.
func (Echo) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fail("echo", err)
	}
	if err := validate(req); err != nil {
		return "", fail("echo", err)
	}
	for i := len(req.History) - 1; i >= 0; i-- {
		t := req.History[i]
		if t.Role != RoleUser {
			continue
		}
		if t.Image != nil {
			return fmt.Sprintf("An image (%s, %d bytes).", t.Image.ContentType, len(t.Image.Data)), nil
		}
		if s := strings.TrimSpace(t.Text); s != "" {
			return "Echo: " + s, nil
		}
	}
	return "", fail("echo", errEmpty)
}
