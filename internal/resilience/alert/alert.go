// Package alert evaluates resilience snapshots against static thresholds and
// raises alert events. It observes and reports; it never remediates.
package alert

import (
	"fmt"
	"time"

	"github.com/dtnghia/merchgate/internal/resilience/breaker"
	"github.com/dtnghia/merchgate/internal/resilience/metrics"
	"github.com/dtnghia/merchgate/internal/resilience/throttle"
)

// Severity of a raised alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Thresholds holds the static alerting limits.
type Thresholds struct {
	// MaxRetryRate trips high_retry_rate when retries/attempts exceeds it.
	MaxRetryRate float64

	// MinSuccessRate trips low_success_rate when successes/attempts drops
	// below it, once MinAttempts have been observed.
	MinSuccessRate float64

	// MinAttempts guards the success-rate rule against noise on tiny samples.
	MinAttempts int64

	// LowBudgetUnits trips budget_low when the throttle model drops below it.
	LowBudgetUnits float64
}

// DefaultThresholds provides sensible defaults.
var DefaultThresholds = Thresholds{
	MaxRetryRate:   0.5,
	MinSuccessRate: 0.8,
	MinAttempts:    10,
	LowBudgetUnits: 50,
}

// Alert is one threshold breach.
type Alert struct {
	Rule     string    `json:"rule"`
	Severity Severity  `json:"severity"`
	Provider string    `json:"provider"`
	Message  string    `json:"message"`
	Value    float64   `json:"value"`
	At       time.Time `json:"at"`
}

// Source bundles one provider's observable state.
type Source struct {
	Provider string
	Recorder *metrics.Recorder
	Breaker  *breaker.Breaker
	Throttle *throttle.Throttle
}

// Evaluator compares provider snapshots against thresholds. Stateless apart
// from configuration; safe to call concurrently.
type Evaluator struct {
	thresholds Thresholds
	sources    []Source

	now func() time.Time
}

// New creates an evaluator over the given sources. Zero threshold fields fall
// back to DefaultThresholds values.
func New(th Thresholds, sources ...Source) *Evaluator {
	if th.MaxRetryRate <= 0 {
		th.MaxRetryRate = DefaultThresholds.MaxRetryRate
	}
	if th.MinSuccessRate <= 0 {
		th.MinSuccessRate = DefaultThresholds.MinSuccessRate
	}
	if th.MinAttempts <= 0 {
		th.MinAttempts = DefaultThresholds.MinAttempts
	}
	if th.LowBudgetUnits <= 0 {
		th.LowBudgetUnits = DefaultThresholds.LowBudgetUnits
	}

	return &Evaluator{
		thresholds: th,
		sources:    sources,
		now:        time.Now,
	}
}

// Evaluate runs one alerting pass and returns every breach found.
func (e *Evaluator) Evaluate() []Alert {
	var alerts []Alert
	now := e.now()

	for _, src := range e.sources {
		if src.Breaker != nil && src.Breaker.State() == breaker.StateOpen {
			alerts = append(alerts, Alert{
				Rule:     "breaker_open",
				Severity: SeverityCritical,
				Provider: src.Provider,
				Message:  fmt.Sprintf("circuit breaker for %s is open", src.Provider),
				Value:    1,
				At:       now,
			})
		}

		if src.Recorder != nil {
			snap := src.Recorder.Snapshot()

			if snap.Attempts > 0 && snap.RetryRate > e.thresholds.MaxRetryRate {
				alerts = append(alerts, Alert{
					Rule:     "high_retry_rate",
					Severity: SeverityWarning,
					Provider: src.Provider,
					Message:  fmt.Sprintf("retry rate %.2f exceeds %.2f", snap.RetryRate, e.thresholds.MaxRetryRate),
					Value:    snap.RetryRate,
					At:       now,
				})
			}

			if snap.Attempts > e.thresholds.MinAttempts && snap.SuccessRate < e.thresholds.MinSuccessRate {
				alerts = append(alerts, Alert{
					Rule:     "low_success_rate",
					Severity: SeverityCritical,
					Provider: src.Provider,
					Message:  fmt.Sprintf("success rate %.2f below %.2f", snap.SuccessRate, e.thresholds.MinSuccessRate),
					Value:    snap.SuccessRate,
					At:       now,
				})
			}
		}

		if src.Throttle != nil {
			budget := src.Throttle.Snapshot()
			if budget.AvailableUnits < e.thresholds.LowBudgetUnits {
				alerts = append(alerts, Alert{
					Rule:     "budget_low",
					Severity: SeverityWarning,
					Provider: src.Provider,
					Message:  fmt.Sprintf("cost budget %.0f below %.0f units", budget.AvailableUnits, e.thresholds.LowBudgetUnits),
					Value:    budget.AvailableUnits,
					At:       now,
				})
			}
		}
	}

	return alerts
}
