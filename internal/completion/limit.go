package completion

import "context"

// Limited caps the number of in-flight calls to the wrapped gateway. Waiting
// for a slot honours ctx.
type Limited struct {
	inner Gateway
	sem   chan struct{}
}

// NewLimited wraps inner; maxConcurrent <= 0 returns inner unchanged.
func NewLimited(inner Gateway, maxConcurrent int) Gateway {
	if maxConcurrent <= 0 {
		return inner
	}
	return &Limited{inner: inner, sem: make(chan struct{}, maxConcurrent)}
}

// Complete waits for a slot, then calls the wrapped gateway.
func (l *Limited) Complete(ctx context.Context, req Request) (string, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return "", fail("limit", ctx.Err())
	}
	defer func() { <-l.sem }()
	return l.inner.Complete(ctx, req)
}
