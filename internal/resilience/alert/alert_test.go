package alert

import (
	"testing"
	"time"

	"github.com/dtnghia/merchgate/internal/resilience/breaker"
	"github.com/dtnghia/merchgate/internal/resilience/classify"
	"github.com/dtnghia/merchgate/internal/resilience/metrics"
	"github.com/dtnghia/merchgate/internal/resilience/throttle"
)

func hasRule(alerts []Alert, rule string) bool {
	for _, a := range alerts {
		if a.Rule == rule {
			return true
		}
	}
	return false
}

func TestHealthySystemRaisesNothing(t *testing.T) {
	rec := metrics.NewRecorder("shopify")
	for i := 0; i < 20; i++ {
		rec.RecordAttempt()
		rec.RecordSuccess()
	}

	e := New(Thresholds{}, Source{
		Provider: "shopify",
		Recorder: rec,
		Breaker:  breaker.New("shopify", breaker.Config{}),
		Throttle: throttle.New(throttle.Config{}),
	})

	if alerts := e.Evaluate(); len(alerts) != 0 {
		t.Errorf("got %d alerts from a healthy system: %+v", len(alerts), alerts)
	}
}

func TestHighRetryRate(t *testing.T) {
	rec := metrics.NewRecorder("shopify")
	for i := 0; i < 10; i++ {
		rec.RecordAttempt()
	}
	for i := 0; i < 6; i++ {
		rec.RecordRetry(time.Second)
	}
	for i := 0; i < 10; i++ {
		rec.RecordSuccess()
	}

	e := New(Thresholds{}, Source{Provider: "shopify", Recorder: rec})
	alerts := e.Evaluate()
	if !hasRule(alerts, "high_retry_rate") {
		t.Errorf("expected high_retry_rate at 0.6, got %+v", alerts)
	}
}

func TestLowSuccessRateNeedsMinAttempts(t *testing.T) {
	rec := metrics.NewRecorder("shopify")
	for i := 0; i < 5; i++ {
		rec.RecordAttempt()
		rec.RecordFailure(classify.Retryable)
	}

	e := New(Thresholds{}, Source{Provider: "shopify", Recorder: rec})
	if hasRule(e.Evaluate(), "low_success_rate") {
		t.Error("low_success_rate raised under the minimum sample size")
	}

	for i := 0; i < 6; i++ {
		rec.RecordAttempt()
		rec.RecordFailure(classify.Retryable)
	}
	if !hasRule(e.Evaluate(), "low_success_rate") {
		t.Error("expected low_success_rate with 11 failed attempts")
	}
}

func TestOpenBreakerIsCritical(t *testing.T) {
	b := breaker.New("shopify", breaker.Config{FailureThreshold: 1})
	b.RecordFailure()

	e := New(Thresholds{}, Source{Provider: "shopify", Breaker: b})
	alerts := e.Evaluate()
	if !hasRule(alerts, "breaker_open") {
		t.Fatalf("expected breaker_open, got %+v", alerts)
	}
	for _, a := range alerts {
		if a.Rule == "breaker_open" && a.Severity != SeverityCritical {
			t.Errorf("breaker_open severity = %v, want critical", a.Severity)
		}
	}
}

func TestLowBudget(t *testing.T) {
	th := throttle.New(throttle.Config{MaxUnits: 1000, RestoreRate: 50})
	th.Settle(0, throttle.Usage{Remaining: 10, Authoritative: true})

	e := New(Thresholds{}, Source{Provider: "shopify", Throttle: th})
	if !hasRule(e.Evaluate(), "budget_low") {
		t.Error("expected budget_low at 10 units")
	}
}
