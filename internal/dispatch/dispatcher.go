package dispatch

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"voiceops-platform/pkg/logger"
)

var ErrUnsupported = errors.New("dispatch: operation not supported by provider")

const (
	maxAttempts = 3
	baseDelay   = 200 * time.Millisecond
	maxDelay    = 5 * time.Second
	jitterSpan  = 100 * time.Millisecond
)

// Dispatcher wraps a provider's Place call in a bounded retry/backoff policy.
//
// Policy:
// - up to 3 attempts total
// - exponential backoff from 200ms, capped at 5s
// - ±100ms jitter per delay to spread herd retries
// - retries only network-level failures and 429/500/502/503/504 responses
//
// The dispatcher holds no provider state; one instance serves all providers.
type Dispatcher struct {
	rng *rand.Rand

	// sleep is injectable for deterministic tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(rng *rand.Rand) *Dispatcher {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Dispatcher{rng: rng, sleep: sleepCtx}
}

// Place dispatches one call through the given provider, retrying transient
// failures. The last error is returned once attempts are exhausted.
func (d *Dispatcher) Place(ctx context.Context, p Provider, req PlaceRequest) (PlaceResult, error) {
	log := logger.From(ctx)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := p.Place(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !retryable(err) {
			return PlaceResult{}, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := d.backoff(attempt)
		log.Warn("call dispatch failed, retrying",
			"provider", p.Name(), "attempt", attempt, "delay_ms", delay.Milliseconds(), "err", err)
		if err := d.sleep(ctx, delay); err != nil {
			return PlaceResult{}, err
		}
	}
	return PlaceResult{}, lastErr
}

// backoff returns the delay before the next attempt: base*2^(attempt-1),
// capped, with jitter drawn from [-jitterSpan, +jitterSpan].
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := baseDelay << (attempt - 1)
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(d.rng.Int63n(int64(2*jitterSpan))) - jitterSpan
	delay += jitter
	if delay < 0 {
		delay = 0
	}
	return delay
}

// retryable classifies an error from a provider adapter.
// APIError has its own status-code allow-list; anything else is treated as a
// network-level failure unless the context itself was canceled.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrUnsupported) || errors.Is(err, ErrMalformedResponse) {
		return false
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
