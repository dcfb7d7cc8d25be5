package control

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dtnghia/merchgate/internal/resilience/breaker"
	"github.com/dtnghia/merchgate/internal/resilience/metrics"
	"github.com/dtnghia/merchgate/internal/resilience/throttle"
)

// ProviderStatus is the per-provider view exposed on /status.
type ProviderStatus struct {
	Provider string           `json:"provider"`
	Breaker  BreakerStatus    `json:"breaker"`
	Throttle throttle.Budget  `json:"throttle"`
	Metrics  metrics.Snapshot `json:"metrics"`
}

// BreakerStatus is the JSON shape of a breaker snapshot.
type BreakerStatus struct {
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	HalfOpenSuccesses   int       `json:"half_open_successes"`
	LastFailureAt       time.Time `json:"last_failure_at"`
	LastStateChangeAt   time.Time `json:"last_state_change_at"`
}

func newServer(s *Service, port int) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/alerts", s.handleAlerts)
	mux.HandleFunc("/events", s.handleEvents)
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Worst case wins: an open breaker is critical, a probing one degraded.
	status := "healthy"
	for _, p := range s.providers {
		switch p.Breaker.State() {
		case breaker.StateOpen:
			status = "critical"
		case breaker.StateHalfOpen:
			if status == "healthy" {
				status = "degraded"
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status == "critical" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses := make([]ProviderStatus, 0, len(s.providers))
	for name, p := range s.providers {
		snap := p.Breaker.Snapshot()
		statuses = append(statuses, ProviderStatus{
			Provider: name,
			Breaker: BreakerStatus{
				State:               snap.State.String(),
				ConsecutiveFailures: snap.ConsecutiveFailures,
				HalfOpenSuccesses:   snap.HalfOpenSuccesses,
				LastFailureAt:       snap.LastFailureAt,
				LastStateChangeAt:   snap.LastStateChangeAt,
			},
			Throttle: p.Throttle.Snapshot(),
			Metrics:  p.Recorder.Snapshot(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statuses)
}

func (s *Service) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.eventStore == nil {
		http.Error(w, "no event store configured", http.StatusNotFound)
		return
	}

	rows, err := s.eventStore.RecentAlerts(r.Context(), 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}

func (s *Service) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.eventRing == nil {
		http.Error(w, "no event ring configured", http.StatusNotFound)
		return
	}

	events, err := s.eventRing.Recent(r.Context(), 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}
