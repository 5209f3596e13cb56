package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy defines the retry schedule. It is read-only during execution.
type Policy struct {
	// MaxAttempts is the total number of invocations, including the first.
	MaxAttempts int
	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff (jitter is added on top, also capped).
	MaxDelay time.Duration
	// Multiplier grows the delay after each attempt.
	Multiplier float64
	// JitterFraction in [0, 1] adds up to that fraction of the capped delay
	// as random jitter, spreading out synchronized retries.
	JitterFraction float64
	// MaxElapsed bounds the total time spent across attempts and waits.
	// Zero means no bound.
	MaxElapsed time.Duration
}

// DefaultPolicy returns the retry schedule used when a zero Policy is given.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      1 * time.Second,
		MaxDelay:       60 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Multiplier <= 1 {
		p.Multiplier = d.Multiplier
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	if p.JitterFraction > 1 {
		p.JitterFraction = 1
	}
	return p
}

// Classifier decides whether an error is worth another attempt and whether
// the provider suggested how long to wait first. retryAfter is zero when no
// suggestion was carried.
type Classifier func(err error) (retryAfter time.Duration, retryable bool)

// retryableError and retryAfterHinter are the interfaces the default
// classifier looks for along the error chain. llm.Error implements both.
type retryableError interface {
	Retryable() bool
}

type retryAfterHinter interface {
	RetryAfterHint() time.Duration
}

// DefaultClassifier walks the error chain looking for a Retryable() verdict
// and a provider-suggested wait. Unclassified errors are treated as fatal so
// programming mistakes are never retried silently.
func DefaultClassifier(err error) (time.Duration, bool) {
	var wait time.Duration
	for e := err; e != nil; e = errors.Unwrap(e) {
		if h, ok := e.(retryAfterHinter); ok && wait == 0 {
			wait = h.RetryAfterHint()
		}
		if r, ok := e.(retryableError); ok {
			return wait, r.Retryable()
		}
	}
	return wait, false
}

// Execute invokes op until it succeeds, the classifier rules the failure
// fatal, attempts run out, or the elapsed budget is spent. It returns the
// operation result, the number of attempts made, and the final error.
//
// Waits between attempts suspend only the calling goroutine and are cut short
// by context cancellation. A provider-suggested retry-after replaces the
// computed backoff for that wait.
func Execute[T any](ctx context.Context, policy Policy, classify Classifier, op func(context.Context) (T, error)) (T, int, error) {
	policy = policy.withDefaults()
	if classify == nil {
		classify = DefaultClassifier
	}

	var zero T
	start := time.Now()
	delay := policy.BaseDelay

	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, attempt, nil
		}

		retryAfter, retryable := classify(err)
		if !retryable || attempt >= policy.MaxAttempts {
			return zero, attempt, err
		}
		if policy.MaxElapsed > 0 && time.Since(start) >= policy.MaxElapsed {
			return zero, attempt, err
		}

		wait := retryAfter
		if wait <= 0 {
			wait = backoffWithJitter(delay, policy)
		}

		select {
		case <-ctx.Done():
			return zero, attempt, ctx.Err()
		case <-time.After(wait):
		}

		next := float64(delay) * policy.Multiplier
		if next > math.MaxInt64 {
			next = math.MaxInt64
		}
		delay = time.Duration(next)
	}
}

// Do is the error-only convenience form of Execute.
func Do(ctx context.Context, policy Policy, classify Classifier, op func(context.Context) error) error {
	_, _, err := Execute(ctx, policy, classify, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func backoffWithJitter(delay time.Duration, policy Policy) time.Duration {
	if delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	if policy.JitterFraction > 0 {
		jitter := time.Duration(float64(delay) * policy.JitterFraction * rand.Float64())
		if delay+jitter > policy.MaxDelay {
			return policy.MaxDelay
		}
		delay += jitter
	}
	return delay
}
