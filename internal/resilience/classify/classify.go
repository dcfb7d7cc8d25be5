// Package classify maps raw call failures into retry categories.
//
// Classification is a pure function over the error value: it never performs
// I/O and never touches shared state. Transports surface structured failures
// through the ProviderError interface so that status codes, throttle signals
// and validation payloads are read structurally instead of by string matching.
package classify

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
	"time"
)

// Category is the retry category of a classified error.
type Category int

const (
	Retryable    Category = iota // transient, worth another attempt
	RateLimited                  // transient, wait for a provider-dictated delay
	NonRetryable                 // permanent, retries cannot fix it
)

// String returns the string representation of the category.
func (c Category) String() string {
	switch c {
	case Retryable:
		return "retryable"
	case RateLimited:
		return "rate_limited"
	case NonRetryable:
		return "non_retryable"
	default:
		return "unknown"
	}
}

// DefaultRetryAfter is the wait hint applied to rate-limited errors when the
// provider does not supply one.
const DefaultRetryAfter = 1 * time.Second

// Classified is the result of classifying a raw failure.
type Classified struct {
	Category   Category
	RetryAfter time.Duration // only set for RateLimited
	StatusCode int           // 0 when no HTTP response was seen
	Message    string
}

// ProviderError is the structural surface a transport error exposes so the
// classifier can decide without knowing the transport.
type ProviderError interface {
	error

	// HTTPStatus returns the HTTP status code, or 0 if no response was received.
	HTTPStatus() int

	// RetryAfterHint returns the provider-supplied wait, or 0 if absent.
	RetryAfterHint() time.Duration

	// RateLimited reports whether the provider signalled throttling,
	// regardless of status code (some providers throttle inside a 200).
	RateLimited() bool

	// HasValidationErrors reports whether the failure carries a structured
	// validation payload (userErrors / graphQLErrors).
	HasValidationErrors() bool
}

// Message fragments providers use to signal throttling in error bodies.
var throttlePatterns = []string{
	"throttled",
	"rate limit",
	"too many requests",
	"quota exceeded",
	"daily request count exceeded",
}

// Classify maps a raw failure into a Classified value.
//
// Rule order matters: network failures first, then throttle signals (a 429
// must win over generic 4xx handling), then 5xx, then 4xx, then structured
// validation payloads (which arrive even inside 200 responses), and finally
// the fail-safe default of non-retryable for anything unrecognised.
func Classify(err error) Classified {
	if err == nil {
		return Classified{Category: NonRetryable, Message: "classify called with nil error"}
	}

	if isNetworkError(err) {
		return Classified{Category: Retryable, Message: err.Error()}
	}

	var pe ProviderError
	if errors.As(err, &pe) {
		status := pe.HTTPStatus()

		if status == 429 || pe.RateLimited() {
			hint := pe.RetryAfterHint()
			if hint <= 0 {
				hint = DefaultRetryAfter
			}
			return Classified{
				Category:   RateLimited,
				RetryAfter: hint,
				StatusCode: status,
				Message:    err.Error(),
			}
		}

		if status >= 500 && status <= 599 {
			return Classified{Category: Retryable, StatusCode: status, Message: err.Error()}
		}

		if status >= 400 && status <= 499 {
			return Classified{Category: NonRetryable, StatusCode: status, Message: err.Error()}
		}

		if pe.HasValidationErrors() {
			return Classified{Category: NonRetryable, StatusCode: status, Message: err.Error()}
		}

		return Classified{Category: NonRetryable, StatusCode: status, Message: err.Error()}
	}

	if matchesThrottlePattern(err.Error()) {
		return Classified{
			Category:   RateLimited,
			RetryAfter: DefaultRetryAfter,
			Message:    err.Error(),
		}
	}

	// Fail safe: never retry the unknown.
	return Classified{Category: NonRetryable, Message: err.Error()}
}

func matchesThrottlePattern(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range throttlePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	return false
}
