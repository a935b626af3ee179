package completion

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderEcho   = "echo"
)

// Options select and configure the gateway stack built by Build.
type Options struct {
	// Provider is the default provider: openai, gemini or echo.
	Provider      string
	OpenAIKey     string
	OpenAIBaseURL string
	GeminiKey     string
	GeminiBaseURL string
	// Timeout bounds each HTTP round trip; 0 means no client timeout.
	Timeout       time.Duration
	MaxConcurrent int
}

// Build assembles the production gateway: every provider with credentials
// is instrumented and registered with a Router whose fallback is
// opts.Provider, and the router is wrapped in a concurrency limit.
func Build(ctx context.Context, opts Options) (Gateway, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if provider == "" {
		provider = ProviderOpenAI
	}
	if provider == ProviderEcho {
		return NewLimited(Instrument(ProviderEcho, Echo{}), opts.MaxConcurrent), nil
	}

	hc := &http.Client{Timeout: opts.Timeout}
	routes := map[string]Gateway{}
	if opts.OpenAIKey != "" {
		oa, err := NewOpenAI(OpenAIConfig{APIKey: opts.OpenAIKey, BaseURL: opts.OpenAIBaseURL, HTTPClient: hc})
		if err != nil {
			return nil, err
		}
		routes[ProviderOpenAI] = Instrument(ProviderOpenAI, oa)
	}
	if opts.GeminiKey != "" {
		gm, err := NewGemini(ctx, GeminiConfig{APIKey: opts.GeminiKey, BaseURL: opts.GeminiBaseURL, HTTPClient: hc})
		if err != nil {
			return nil, err
		}
		routes[ProviderGemini] = Instrument(ProviderGemini, gm)
	}
	if _, ok := routes[provider]; !ok {
		return nil, fmt.Errorf("completion provider %q is not configured (missing api key?)", provider)
	}
	return NewLimited(NewRouter(provider, routes), opts.MaxConcurrent), nil
}
