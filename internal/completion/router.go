package completion

import (
	"context"
	"errors"
	"strings"
)

// Router dispatches requests to a provider gateway chosen by model name:
// "gemini*" models go to the "gemini" route, "gpt*" / "o1*" / "o3*" / "o4*"
// models to "openai", anything else to the fallback provider.
type Router struct {
	routes   map[string]Gateway
	fallback string
}

// NewRouter builds a router over the named gateways. Nil gateways are
// ignored.
func NewRouter(fallback string, routes map[string]Gateway) *Router {
	r := &Router{routes: map[string]Gateway{}, fallback: strings.ToLower(fallback)}
	for name, g := range routes {
		if g != nil {
			r.routes[strings.ToLower(name)] = g
		}
	}
	return r
}

// Provider returns the provider name a model resolves to.
func (r *Router) Provider(model string) string {
	l := strings.ToLower(strings.TrimSpace(model))
	var want string
	switch {
	case strings.HasPrefix(l, "gemini"):
		want = "gemini"
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"), strings.HasPrefix(l, "o4"):
		want = "openai"
	default:
		want = r.fallback
	}
	if _, ok := r.routes[want]; ok {
		return want
	}
	return r.fallback
}

// Complete forwards req to the resolved gateway.
func (r *Router) Complete(ctx context.Context, req Request) (string, error) {
	g, ok := r.routes[r.Provider(req.Model)]
	if !ok {
		return "", fail("router", errors.New("no gateway for model "+req.Model))
	}
	return g.Complete(ctx, req)
}
