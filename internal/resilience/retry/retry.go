// Package retry is the call-site entry point of the resilience core: it wraps
// a failable operation with circuit breaker admission, error classification
// and jittered exponential backoff.
//
// Throttling is composed at the call site (the operation itself runs under
// the throttle's Execute); the orchestrator does not duplicate it.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/dtnghia/merchgate/internal/resilience/breaker"
	"github.com/dtnghia/merchgate/internal/resilience/classify"
	"github.com/dtnghia/merchgate/internal/resilience/metrics"
)

// ErrCircuitOpen is returned when the breaker refuses admission. It is a
// local decision, not a provider error: operators can tell "we stopped
// trying" apart from "the provider rejected this request".
var ErrCircuitOpen = errors.New("circuit breaker open")

// Retryer binds the orchestrator to one provider's breaker and recorder. It
// holds no per-call state and is safe for concurrent use.
type Retryer struct {
	breaker  *breaker.Breaker
	recorder *metrics.Recorder

	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64 // uniform [0,1), injectable for deterministic jitter
}

// New creates a retryer for the given breaker and recorder.
func New(b *breaker.Breaker, rec *metrics.Recorder) *Retryer {
	return &Retryer{
		breaker:  b,
		recorder: rec,
		sleep:    sleepContext,
		rand:     rand.Float64,
	}
}

// Do executes op under the policy. The attempt budget is MaxRetries retries
// after the first attempt, so up to MaxRetries+1 invocations of op. On
// exhaustion the last underlying error is propagated unchanged.
func Do[T any](ctx context.Context, r *Retryer, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	for attempt := 0; ; attempt++ {
		if !r.breaker.CanExecute() {
			return zero, fmt.Errorf("%w: %s", ErrCircuitOpen, r.breaker.Name())
		}

		r.recorder.RecordAttempt()
		result, err := op(ctx)
		if err == nil {
			r.breaker.RecordSuccess()
			r.recorder.RecordSuccess()
			return result, nil
		}

		// Caller-initiated cancellation is not a provider health signal.
		if ctx.Err() != nil {
			return zero, err
		}

		c := classify.Classify(err)
		// The breaker sees every failure, retried or not.
		r.breaker.RecordFailure()
		r.recorder.RecordFailure(c.Category)

		if c.Category == classify.NonRetryable {
			return zero, err
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(c) {
			return zero, err
		}
		if attempt >= p.MaxRetries {
			return zero, err
		}

		delay := r.backoffDelay(p, c, attempt)
		r.recorder.RecordRetry(delay)
		if serr := r.sleep(ctx, delay); serr != nil {
			return zero, serr
		}
	}
}

// backoffDelay computes the jittered delay before the next attempt.
// Rate-limited failures wait out the provider hint; retryable failures use
// exponential backoff. Both are capped at MaxDelay and jitter never produces
// a negative delay.
func (r *Retryer) backoffDelay(p Policy, c classify.Classified, attempt int) time.Duration {
	var delay float64
	if c.Category == classify.RateLimited {
		delay = float64(c.RetryAfter)
	} else {
		delay = float64(p.InitialDelay) * math.Pow(p.BackoffMultiple, float64(attempt))
	}
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.JitterFraction > 0 {
		delay += (2*r.rand() - 1) * p.JitterFraction * delay
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
