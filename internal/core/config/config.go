package config

import (
	"time"

	"github.com/dtnghia/merchgate/internal/infra/graphql"
	redisclient "github.com/dtnghia/merchgate/internal/infra/redis"
	"github.com/dtnghia/merchgate/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Providers []graphql.Config   `yaml:"providers"`
	Retry     RetryConfig        `yaml:"retry"`
	Breaker   BreakerConfig      `yaml:"breaker"`
	Throttle  ThrottleConfig     `yaml:"throttle"`
	Cache     CacheConfig        `yaml:"cache"`
	Redis     redisclient.Config `yaml:"redis"`
	Database  postgres.Config    `yaml:"database"`
	Alerts    AlertConfig        `yaml:"alerts"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// PolicyConfig holds one retry policy.
type PolicyConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	InitialDelay    time.Duration `yaml:"initial_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	BackoffMultiple float64       `yaml:"backoff_multiple"`
	JitterFraction  float64       `yaml:"jitter_fraction"`
}

// RetryConfig holds the per-category retry policies.
type RetryConfig struct {
	Query    PolicyConfig `yaml:"query"`
	Mutation PolicyConfig `yaml:"mutation"`
	Bulk     PolicyConfig `yaml:"bulk"`
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Window           time.Duration `yaml:"window"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
	SuccessThreshold int           `yaml:"success_threshold"`
}

// ThrottleConfig holds the cost budget model.
type ThrottleConfig struct {
	MaxUnits          float64       `yaml:"max_units"`
	RestoreRate       float64       `yaml:"restore_rate"`
	CriticalThreshold float64       `yaml:"critical_threshold"`
	WarningThreshold  float64       `yaml:"warning_threshold"`
	ProactiveDelay    time.Duration `yaml:"proactive_delay"`
}

// CacheConfig holds product cache settings.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// AlertConfig holds alert evaluation settings.
type AlertConfig struct {
	Interval       time.Duration `yaml:"interval"`
	MaxRetryRate   float64       `yaml:"max_retry_rate"`
	MinSuccessRate float64       `yaml:"min_success_rate"`
	MinAttempts    int64         `yaml:"min_attempts"`
	LowBudgetUnits float64       `yaml:"low_budget_units"`
}
