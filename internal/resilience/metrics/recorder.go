package metrics

import (
	"sync"
	"time"

	"github.com/dtnghia/merchgate/internal/resilience/classify"
)

// Snapshot is a read-only aggregate of the recorder counters with derived
// rates. Rates are zero when no attempts were recorded.
type Snapshot struct {
	Provider        string
	Attempts        int64
	Retries         int64
	Successes       int64
	Failures        map[string]int64
	TotalRetryDelay time.Duration

	RetryRate     float64
	SuccessRate   float64
	AvgRetryDelay time.Duration
}

// Recorder aggregates per-provider call counters. It is fed by the retry
// orchestrator's lifecycle hooks and mirrors everything into the Prometheus
// vectors above. Safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	provider        string
	attempts        int64
	retries         int64
	successes       int64
	failures        map[string]int64
	totalRetryDelay time.Duration
}

// NewRecorder creates a recorder labelled with the provider name.
func NewRecorder(provider string) *Recorder {
	return &Recorder{
		provider: provider,
		failures: make(map[string]int64),
	}
}

// Provider returns the provider label.
func (r *Recorder) Provider() string {
	return r.provider
}

// RecordAttempt counts one call attempt.
func (r *Recorder) RecordAttempt() {
	r.mu.Lock()
	r.attempts++
	r.mu.Unlock()

	AttemptsTotal.WithLabelValues(r.provider).Inc()
}

// RecordRetry counts one scheduled retry and its backoff delay.
func (r *Recorder) RecordRetry(delay time.Duration) {
	r.mu.Lock()
	r.retries++
	r.totalRetryDelay += delay
	r.mu.Unlock()

	RetriesTotal.WithLabelValues(r.provider).Inc()
	RetryDelaySeconds.WithLabelValues(r.provider).Observe(delay.Seconds())
}

// RecordSuccess counts one successful call.
func (r *Recorder) RecordSuccess() {
	r.mu.Lock()
	r.successes++
	r.mu.Unlock()

	SuccessesTotal.WithLabelValues(r.provider).Inc()
}

// RecordFailure counts one failed call by category.
func (r *Recorder) RecordFailure(category classify.Category) {
	r.mu.Lock()
	r.failures[category.String()]++
	r.mu.Unlock()

	FailuresTotal.WithLabelValues(r.provider, category.String()).Inc()
}

// Snapshot returns a copy of the counters with derived rates.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Provider:        r.provider,
		Attempts:        r.attempts,
		Retries:         r.retries,
		Successes:       r.successes,
		Failures:        make(map[string]int64, len(r.failures)),
		TotalRetryDelay: r.totalRetryDelay,
	}
	for k, v := range r.failures {
		s.Failures[k] = v
	}

	if r.attempts > 0 {
		s.RetryRate = float64(r.retries) / float64(r.attempts)
		s.SuccessRate = float64(r.successes) / float64(r.attempts)
	}
	if r.retries > 0 {
		s.AvgRetryDelay = r.totalRetryDelay / time.Duration(r.retries)
	}
	return s
}

// Reset clears the local counters. Prometheus series are cumulative by
// contract and are left alone; this exists for test isolation.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts = 0
	r.retries = 0
	r.successes = 0
	r.failures = make(map[string]int64)
	r.totalRetryDelay = 0
}
