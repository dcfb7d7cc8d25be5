// Package control wires configuration into the running service: one
// breaker/throttle/retryer bundle per provider, the event sinks, the alert
// loop and the HTTP health/metrics surface.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/dtnghia/merchgate/internal/catalog"
	"github.com/dtnghia/merchgate/internal/core/config"
	"github.com/dtnghia/merchgate/internal/core/domain"
	"github.com/dtnghia/merchgate/internal/infra/graphql"
	redisclient "github.com/dtnghia/merchgate/internal/infra/redis"
	"github.com/dtnghia/merchgate/internal/infra/storage/postgres"
	"github.com/dtnghia/merchgate/internal/resilience/alert"
	"github.com/dtnghia/merchgate/internal/resilience/breaker"
	"github.com/dtnghia/merchgate/internal/resilience/metrics"
	"github.com/dtnghia/merchgate/internal/resilience/retry"
	"github.com/dtnghia/merchgate/internal/resilience/throttle"
)

// Provider bundles everything owned per logical provider.
type Provider struct {
	Name     string
	Client   *graphql.Client
	Breaker  *breaker.Breaker
	Throttle *throttle.Throttle
	Recorder *metrics.Recorder
	Retryer  *retry.Retryer
	Catalog  *catalog.Service
}

// Service is the application: it owns the shared resilience state and the
// observability surface.
type Service struct {
	cfg *config.AppConfig
	log *slog.Logger

	db          *postgres.DB
	eventStore  *postgres.EventStore
	redisClient *redisclient.Client
	eventRing   *redisclient.EventRing
	sink        domain.EventSink

	providers map[string]*Provider
	evaluator *alert.Evaluator
	server    *http.Server
}

// NewService builds the service from config. Database and Redis are optional;
// without them the corresponding sink halves are skipped.
func NewService(cfg *config.AppConfig) (*Service, error) {
	s := &Service{
		cfg:       cfg,
		log:       slog.Default(),
		providers: make(map[string]*Provider),
	}

	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	var sinks domain.MultiSink

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		s.db = db
		s.eventStore = postgres.NewEventStore(db, s.log)
		sinks = append(sinks, s.eventStore)
		slog.Info("Using PostgreSQL event store")
	}

	var cache catalog.Cache
	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		s.redisClient = rc
		s.eventRing = redisclient.NewEventRing(rc, s.log)
		sinks = append(sinks, s.eventRing)
		cache = redisclient.NewProductCache(rc, cfg.Cache.TTL)
		slog.Info("Using Redis product cache")
	}

	if len(sinks) > 0 {
		s.sink = sinks
	} else {
		s.sink = domain.NopSink{}
	}

	policies := catalog.Policies{
		Query:    buildPolicy(cfg.Retry.Query, retry.DefaultPolicy),
		Mutation: buildPolicy(cfg.Retry.Mutation, retry.MutationPolicy),
		Bulk:     buildPolicy(cfg.Retry.Bulk, retry.BulkPolicy),
	}

	var sources []alert.Source
	for _, pc := range cfg.Providers {
		p := s.buildProvider(pc, cache, policies)
		s.providers[p.Name] = p
		sources = append(sources, alert.Source{
			Provider: p.Name,
			Recorder: p.Recorder,
			Breaker:  p.Breaker,
			Throttle: p.Throttle,
		})
	}

	s.evaluator = alert.New(alert.Thresholds{
		MaxRetryRate:   cfg.Alerts.MaxRetryRate,
		MinSuccessRate: cfg.Alerts.MinSuccessRate,
		MinAttempts:    cfg.Alerts.MinAttempts,
		LowBudgetUnits: cfg.Alerts.LowBudgetUnits,
	}, sources...)

	s.server = newServer(s, cfg.Server.Port)
	return s, nil
}

func (s *Service) buildProvider(pc graphql.Config, cache catalog.Cache, policies catalog.Policies) *Provider {
	name := pc.Name

	b := breaker.New(name, breaker.Config{
		FailureThreshold: s.cfg.Breaker.FailureThreshold,
		Window:           s.cfg.Breaker.Window,
		OpenTimeout:      s.cfg.Breaker.OpenTimeout,
		SuccessThreshold: s.cfg.Breaker.SuccessThreshold,
		OnStateChange: func(name string, from, to breaker.State) {
			s.log.Warn("Circuit breaker state changed",
				"provider", name, "from", from.String(), "to", to.String())
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			s.sink.Record(context.Background(), domain.EventBreakerState, map[string]any{
				"provider": name,
				"from":     from.String(),
				"to":       to.String(),
			})
		},
	})

	th := throttle.New(throttle.Config{
		MaxUnits:          s.cfg.Throttle.MaxUnits,
		RestoreRate:       s.cfg.Throttle.RestoreRate,
		CriticalThreshold: s.cfg.Throttle.CriticalThreshold,
		WarningThreshold:  s.cfg.Throttle.WarningThreshold,
		ProactiveDelay:    s.cfg.Throttle.ProactiveDelay,
	})

	rec := metrics.NewRecorder(name)
	r := retry.New(b, rec)
	client := graphql.NewClient(pc)

	return &Provider{
		Name:     name,
		Client:   client,
		Breaker:  b,
		Throttle: th,
		Recorder: rec,
		Retryer:  r,
		Catalog:  catalog.NewService(client, cache, r, th, s.sink, policies, s.log),
	}
}

// Catalog returns the catalog service for the named provider.
func (s *Service) Catalog(provider string) (*catalog.Service, bool) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, false
	}
	return p.Catalog, true
}

// Start launches the HTTP server and the alert loop.
func (s *Service) Start(ctx context.Context) error {
	go func() {
		slog.Info("HTTP server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "error", err)
		}
	}()

	go s.alertLoop(ctx)
	return nil
}

// Stop shuts everything down gracefully.
func (s *Service) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop http server: %w", err)
	}
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return nil
}

// alertLoop periodically evaluates thresholds and publishes gauges.
func (s *Service) alertLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Alerts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishGauges()
			for _, a := range s.evaluator.Evaluate() {
				s.raise(ctx, a)
			}
		}
	}
}

func (s *Service) publishGauges() {
	for name, p := range s.providers {
		metrics.BreakerState.WithLabelValues(name).Set(float64(p.Breaker.State()))
		metrics.ThrottleAvailableUnits.WithLabelValues(name).Set(p.Throttle.Snapshot().AvailableUnits)
	}
}

func (s *Service) raise(ctx context.Context, a alert.Alert) {
	s.log.Warn("Alert raised",
		"rule", a.Rule, "severity", string(a.Severity),
		"provider", a.Provider, "message", a.Message)

	metrics.AlertsTotal.WithLabelValues(a.Rule).Inc()
	s.sink.Record(ctx, domain.EventAlert, map[string]any{
		"provider": a.Provider,
		"rule":     a.Rule,
		"severity": string(a.Severity),
		"message":  a.Message,
		"value":    a.Value,
	})
	if s.eventStore != nil {
		if err := s.eventStore.InsertAlert(ctx, a); err != nil {
			s.log.Warn("Failed to persist alert", "rule", a.Rule, "error", err)
		}
	}
}

func buildPolicy(pc config.PolicyConfig, fallback retry.Policy) retry.Policy {
	p := fallback
	if pc.MaxRetries > 0 {
		p.MaxRetries = pc.MaxRetries
	}
	if pc.InitialDelay > 0 {
		p.InitialDelay = pc.InitialDelay
	}
	if pc.MaxDelay > 0 {
		p.MaxDelay = pc.MaxDelay
	}
	if pc.BackoffMultiple > 1 {
		p.BackoffMultiple = pc.BackoffMultiple
	}
	if pc.JitterFraction > 0 && pc.JitterFraction < 1 {
		p.JitterFraction = pc.JitterFraction
	}
	return p
}
