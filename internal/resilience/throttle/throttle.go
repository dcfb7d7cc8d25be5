// Package throttle implements an adaptive cost-unit budget for a rate-limited
// provider.
//
// The budget refills lazily from elapsed wall-clock time on every access;
// there is no background timer. When the provider reports its own cost and
// remaining capacity the local model is overwritten with the authoritative
// value, so bad caller estimates cannot make it drift.
package throttle

import (
	"context"
	"sync"
	"time"
)

// Config holds throttle tuning.
type Config struct {
	// MaxUnits is the budget ceiling.
	MaxUnits float64

	// RestoreRate is how many units come back per second.
	RestoreRate float64

	// CriticalThreshold is the hard wall: below it, calls block until the
	// budget restores to the threshold.
	CriticalThreshold float64

	// WarningThreshold is the soft wall: below it, calls pay a small fixed
	// proactive delay to spread load before the hard wall is ever hit.
	WarningThreshold float64

	// ProactiveDelay is the fixed delay applied under WarningThreshold.
	ProactiveDelay time.Duration
}

// DefaultConfig provides sensible defaults matching a typical GraphQL
// cost-budget provider.
var DefaultConfig = Config{
	MaxUnits:          1000,
	RestoreRate:       50,
	CriticalThreshold: 50,
	WarningThreshold:  200,
	ProactiveDelay:    500 * time.Millisecond,
}

// Usage carries the provider-reported cost of a completed call. Remaining is
// authoritative when the provider included its throttle status in the
// response.
type Usage struct {
	ActualCost    float64
	Remaining     float64
	Authoritative bool
}

// Budget is a read-only snapshot of the throttle state.
type Budget struct {
	AvailableUnits float64
	MaxUnits       float64
	RestoreRate    float64
	LastRefillAt   time.Time
}

// Throttle tracks a replenishing budget of cost units for one provider. Safe
// for concurrent use; no lock is held while sleeping.
type Throttle struct {
	mu sync.Mutex

	cfg          Config
	available    float64
	lastRefillAt time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a throttle with a full budget. Zero config fields fall back to
// DefaultConfig values.
func New(cfg Config) *Throttle {
	if cfg.MaxUnits <= 0 {
		cfg.MaxUnits = DefaultConfig.MaxUnits
	}
	if cfg.RestoreRate <= 0 {
		cfg.RestoreRate = DefaultConfig.RestoreRate
	}
	if cfg.CriticalThreshold <= 0 {
		cfg.CriticalThreshold = DefaultConfig.CriticalThreshold
	}
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = DefaultConfig.WarningThreshold
	}
	if cfg.ProactiveDelay <= 0 {
		cfg.ProactiveDelay = DefaultConfig.ProactiveDelay
	}

	t := &Throttle{
		cfg:       cfg,
		available: cfg.MaxUnits,
		now:       time.Now,
		sleep:     sleepContext,
	}
	t.lastRefillAt = t.now()
	return t
}

// Execute runs op under budget admission: it waits out the hard/soft
// thresholds first, runs op, then settles the budget from the usage op
// reports. The error from op is returned unchanged.
func (t *Throttle) Execute(ctx context.Context, estimatedCost float64, op func(ctx context.Context) (Usage, error)) error {
	if err := t.Acquire(ctx, estimatedCost); err != nil {
		return err
	}

	usage, err := op(ctx)
	t.Settle(estimatedCost, usage)
	return err
}

// Acquire applies admission delay for a call of estimatedCost. It blocks
// while the budget is under the critical threshold and applies the proactive
// delay under the warning threshold. The wait respects ctx cancellation.
func (t *Throttle) Acquire(ctx context.Context, estimatedCost float64) error {
	t.mu.Lock()
	t.refill()
	available := t.available
	t.mu.Unlock()

	if available < t.cfg.CriticalThreshold {
		wait := t.timeToRestore(t.cfg.CriticalThreshold - available)
		if err := t.sleep(ctx, wait); err != nil {
			return err
		}
		t.mu.Lock()
		t.refill()
		t.mu.Unlock()
	} else if available < t.cfg.WarningThreshold {
		if err := t.sleep(ctx, t.cfg.ProactiveDelay); err != nil {
			return err
		}
	}

	return nil
}

// Settle records a completed call. An authoritative usage overwrites the
// local model with the server's remaining capacity; otherwise the estimate is
// decremented as a best-effort local model.
func (t *Throttle) Settle(estimatedCost float64, usage Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refill()
	if usage.Authoritative {
		t.available = clamp(usage.Remaining, 0, t.cfg.MaxUnits)
		return
	}
	t.available = clamp(t.available-estimatedCost, 0, t.cfg.MaxUnits)
}

// Snapshot returns a copy of the current budget.
func (t *Throttle) Snapshot() Budget {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refill()
	return Budget{
		AvailableUnits: t.available,
		MaxUnits:       t.cfg.MaxUnits,
		RestoreRate:    t.cfg.RestoreRate,
		LastRefillAt:   t.lastRefillAt,
	}
}

// refill advances the budget from elapsed time. Caller holds the lock.
func (t *Throttle) refill() {
	now := t.now()
	elapsed := now.Sub(t.lastRefillAt).Seconds()
	if elapsed > 0 {
		t.available = clamp(t.available+elapsed*t.cfg.RestoreRate, 0, t.cfg.MaxUnits)
	}
	t.lastRefillAt = now
}

// timeToRestore returns how long the provider needs to restore the given
// number of units.
func (t *Throttle) timeToRestore(units float64) time.Duration {
	if units <= 0 {
		return 0
	}
	return time.Duration(units / t.cfg.RestoreRate * float64(time.Second))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
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
