package completion

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// completionCalls counts calls by provider, model family (see
	// modelFamily) and outcome ("ok", "error", "canceled").
	completionCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "completion_calls_total",
			Help: "Total number of completion service calls.",
		},
		[]string{"provider", "model", "outcome"},
	)

	// completionLat records call latency in seconds.
	completionLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "completion_call_duration_seconds",
			Help:    "Duration of completion service calls in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"provider", "model", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(completionCalls, completionLat)
}

// Instrumented records Prometheus metrics around a provider gateway.
type Instrumented struct {
	provider string
	inner    Gateway
}

// Instrument wraps inner, labelling its metrics with provider.
func Instrument(provider string, inner Gateway) *Instrumented {
	return &Instrumented{provider: provider, inner: inner}
}

// Complete calls the wrapped gateway and observes the outcome.
func (m *Instrumented) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	out, err := m.inner.Complete(ctx, req)
	outcome := outcomeOf(err)
	model := modelFamily(req.Model)
	completionCalls.WithLabelValues(m.provider, model, outcome).Inc()
	completionLat.WithLabelValues(m.provider, model, outcome).Observe(time.Since(start).Seconds())
	return out, err
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// modelFamily folds a client-supplied model name into a fixed label set so
// arbitrary names cannot grow the metric series.
func modelFamily(model string) string {
	l := strings.ToLower(strings.TrimSpace(model))
	switch {
	case l == "":
		return "unknown"
	case strings.HasPrefix(l, "gpt"):
		return "gpt"
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case len(l) > 1 && l[0] == 'o' && l[1] >= '0' && l[1] <= '9':
		return "o-series"
	default:
		return "other"
	}
}
