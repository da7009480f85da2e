package provider

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultMaxRetries = 3
	baseDelay         = 2 * time.Second
	maxDelay          = 30 * time.Second
	jitterPercent     = 30 // ±30% jitter
)

// Retrying retries Chat calls that fail with a transient error (rate limit,
// overload, 5xx, network) before any output was produced: either Chat itself
// fails, or the stream's first event is such an error. Once a text delta has
// been delivered the stream is passed through as is.
type Retrying struct {
	Provider
	MaxRetries int
	Log        zerolog.Logger

	// delay returns the wait before retry n (0-indexed).
	delay func(attempt int) time.Duration
}

// WithRetry wraps p with the default retry policy.
func WithRetry(p Provider, log zerolog.Logger) *Retrying {
	return &Retrying{Provider: p, MaxRetries: defaultMaxRetries, Log: log, delay: retryDelay}
}

func (r *Retrying) Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error) {
	delay := r.delay
	if delay == nil {
		delay = retryDelay
	}
	for attempt := 0; ; attempt++ {
		ch, err := r.Provider.Chat(ctx, req)
		if err == nil {
			first, ok := <-ch
			if !ok {
				return ch, nil
			}
			if first.Type != EventError || !IsRetryableError(first.Error) || attempt >= r.MaxRetries {
				return prepend(first, ch), nil
			}
			for range ch {
			}
			err = first.Error
		} else if !IsRetryableError(err) || attempt >= r.MaxRetries {
			return nil, err
		}

		d := delay(attempt)
		r.Log.Warn().Err(err).Int("attempt", attempt+1).Dur("delay", d).Msg("model call failed, retrying")
		if err := sleepWithContext(ctx, d); err != nil {
			return nil, err
		}
	}
}

// prepend returns a stream that yields first, then everything from rest.
func prepend(first Event, rest <-chan Event) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		out <- first
		for ev := range rest {
			out <- ev
		}
	}()
	return out
}

// IsRetryableError checks if an error is worth retrying (rate limit, server error, network).
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	// Context cancelled is NOT retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()

	// Rate limit (429)
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit") {
		return true
	}
	// Anthropic overloaded (529)
	if strings.Contains(msg, "529") || strings.Contains(msg, "overloaded") {
		return true
	}
	// Server errors (500, 502, 503, 504)
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	// Network errors
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "temporary failure")
}

// retryDelay returns the delay for attempt n (0-indexed) with jitter.
func retryDelay(attempt int) time.Duration {
	delay := baseDelay
	for range attempt {
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(rand.IntN(int(delay)*jitterPercent*2/100)) - time.Duration(int(delay)*jitterPercent/100)
	return delay + jitter
}

// sleepWithContext sleeps for d, but returns early if ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
