package retry

import (
	"time"

	"github.com/dtnghia/merchgate/internal/resilience/classify"
)

// Policy is an immutable retry configuration, one instance per operation
// category (query/mutation/bulk).
type Policy struct {
	// MaxRetries is the number of retries allowed after the first attempt;
	// MaxRetries = N means up to N+1 invocations in total.
	MaxRetries int

	// InitialDelay is the backoff for the first retry.
	InitialDelay time.Duration

	// MaxDelay caps every computed delay, including rate-limit hints.
	MaxDelay time.Duration

	// BackoffMultiple grows the delay per attempt. Must be > 1.
	BackoffMultiple float64

	// JitterFraction applies symmetric jitter of +/- fraction*delay. Must be
	// in [0, 1).
	JitterFraction float64

	// ShouldRetry, if set, can veto a retry the classifier would allow.
	ShouldRetry func(classify.Classified) bool
}

// DefaultPolicy provides sensible defaults for interactive queries.
var DefaultPolicy = Policy{
	MaxRetries:      2,
	InitialDelay:    500 * time.Millisecond,
	MaxDelay:        8 * time.Second,
	BackoffMultiple: 2.0,
	JitterFraction:  0.2,
}

// MutationPolicy is stricter: mutations are not idempotent by default, so
// only one cautious retry.
var MutationPolicy = Policy{
	MaxRetries:      1,
	InitialDelay:    1 * time.Second,
	MaxDelay:        4 * time.Second,
	BackoffMultiple: 2.0,
	JitterFraction:  0.1,
}

// BulkPolicy tolerates long waits for batch operations.
var BulkPolicy = Policy{
	MaxRetries:      5,
	InitialDelay:    2 * time.Second,
	MaxDelay:        60 * time.Second,
	BackoffMultiple: 2.0,
	JitterFraction:  0.3,
}
