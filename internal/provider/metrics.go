package provider

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	modelRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iad_model_requests_total",
			Help: "Total number of model calls.",
		},
		[]string{"provider", "model", "status"},
	)
	modelRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "iad_model_request_duration_seconds",
			Help:    "Histogram of model call durations, until the stream closes.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "model"},
	)
	modelTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iad_model_tokens_total",
			Help: "Tokens reported by the provider, by kind (input|output).",
		},
		[]string{"provider", "model", "kind"},
	)
)

// Instrumented wraps a Provider and records Prometheus metrics for every call.
type Instrumented struct {
	Provider
}

// Instrument returns p wrapped with metrics.
func Instrument(p Provider) *Instrumented {
	return &Instrumented{Provider: p}
}

func (i *Instrumented) Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error) {
	name := i.Name()
	model := req.Model
	if model == "" {
		model = i.DefaultModel()
	}

	start := time.Now()
	ch, err := i.Provider.Chat(ctx, req)
	if err != nil {
		modelRequestsTotal.WithLabelValues(name, model, "error").Inc()
		return nil, err
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		status := "ok"
		for ev := range ch {
			switch ev.Type {
			case EventError:
				status = "error"
			case EventDone:
				if ev.Usage != nil {
					modelTokensTotal.WithLabelValues(name, model, "input").Add(float64(ev.Usage.InputTokens))
					modelTokensTotal.WithLabelValues(name, model, "output").Add(float64(ev.Usage.OutputTokens))
				}
			}
			out <- ev
		}
		modelRequestsTotal.WithLabelValues(name, model, status).Inc()
		modelRequestDuration.WithLabelValues(name, model).Observe(time.Since(start).Seconds())
	}()
	return out, nil
}
