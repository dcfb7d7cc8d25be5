package throttle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestThrottle wires a fake clock and a sleep recorder. Sleeping also
// advances the clock so refill math stays consistent.
func newTestThrottle(cfg Config) (*Throttle, *fakeClock, *[]time.Duration) {
	t := New(cfg)
	clock := newFakeClock()
	slept := &[]time.Duration{}
	t.now = clock.Now
	t.lastRefillAt = clock.Now()
	t.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		*slept = append(*slept, d)
		clock.Advance(d)
		return nil
	}
	return t, clock, slept
}

func TestBudgetNeverExceedsMax(t *testing.T) {
	th, clock, _ := newTestThrottle(Config{MaxUnits: 100, RestoreRate: 10})

	clock.Advance(time.Hour)
	if got := th.Snapshot().AvailableUnits; got != 100 {
		t.Errorf("AvailableUnits = %v after long idle, want 100", got)
	}
}

func TestBudgetNeverNegative(t *testing.T) {
	th, _, _ := newTestThrottle(Config{MaxUnits: 100, RestoreRate: 10})

	th.Settle(500, Usage{})
	if got := th.Snapshot().AvailableUnits; got < 0 {
		t.Errorf("AvailableUnits = %v, want >= 0", got)
	}
}

func TestAuthoritativeUsageOverwritesLocalModel(t *testing.T) {
	th, _, _ := newTestThrottle(Config{MaxUnits: 1000, RestoreRate: 50})

	th.Settle(10, Usage{ActualCost: 400, Remaining: 130, Authoritative: true})
	if got := th.Snapshot().AvailableUnits; got != 130 {
		t.Errorf("AvailableUnits = %v, want server-reported 130", got)
	}

	// Server value above the ceiling is clamped.
	th.Settle(0, Usage{Remaining: 5000, Authoritative: true})
	if got := th.Snapshot().AvailableUnits; got != 1000 {
		t.Errorf("AvailableUnits = %v, want clamped 1000", got)
	}
}

func TestLocalEstimateDecrements(t *testing.T) {
	th, _, _ := newTestThrottle(Config{MaxUnits: 1000, RestoreRate: 50})

	th.Settle(40, Usage{})
	if got := th.Snapshot().AvailableUnits; got != 960 {
		t.Errorf("AvailableUnits = %v, want 960", got)
	}
}

func TestCriticalThresholdBlocks(t *testing.T) {
	th, _, slept := newTestThrottle(Config{
		MaxUnits:          1000,
		RestoreRate:       50,
		CriticalThreshold: 50,
		WarningThreshold:  200,
	})

	// Drain to 10 units: restoring to 50 at 50 units/s needs at least 800ms.
	th.Settle(0, Usage{Remaining: 10, Authoritative: true})

	if err := th.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(*slept) != 1 {
		t.Fatalf("slept %d times, want 1", len(*slept))
	}
	if (*slept)[0] < 800*time.Millisecond {
		t.Errorf("hard wait = %v, want >= 800ms", (*slept)[0])
	}
}

func TestWarningThresholdAppliesProactiveDelay(t *testing.T) {
	th, _, slept := newTestThrottle(Config{
		MaxUnits:          1000,
		RestoreRate:       50,
		CriticalThreshold: 50,
		WarningThreshold:  200,
		ProactiveDelay:    500 * time.Millisecond,
	})

	th.Settle(0, Usage{Remaining: 100, Authoritative: true})

	if err := th.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != 500*time.Millisecond {
		t.Errorf("slept %v, want one 500ms proactive delay", *slept)
	}
}

func TestHealthyBudgetDoesNotDelay(t *testing.T) {
	th, _, slept := newTestThrottle(Config{MaxUnits: 1000, RestoreRate: 50})

	if err := th.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v with a full budget, want no delay", *slept)
	}
}

func TestAcquireRespectsCancellation(t *testing.T) {
	th, _, _ := newTestThrottle(Config{
		MaxUnits:          1000,
		RestoreRate:       50,
		CriticalThreshold: 50,
	})
	th.Settle(0, Usage{Remaining: 1, Authoritative: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := th.Acquire(ctx, 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire = %v, want context.Canceled", err)
	}
}

func TestExecuteSettlesFromOperation(t *testing.T) {
	th, _, _ := newTestThrottle(Config{MaxUnits: 1000, RestoreRate: 50})

	err := th.Execute(context.Background(), 25, func(ctx context.Context) (Usage, error) {
		return Usage{ActualCost: 80, Remaining: 700, Authoritative: true}, nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := th.Snapshot().AvailableUnits; got != 700 {
		t.Errorf("AvailableUnits = %v, want 700", got)
	}
}

func TestExecutePropagatesOperationError(t *testing.T) {
	th, _, _ := newTestThrottle(Config{MaxUnits: 1000, RestoreRate: 50})

	opErr := errors.New("boom")
	err := th.Execute(context.Background(), 25, func(ctx context.Context) (Usage, error) {
		return Usage{}, opErr
	})
	if !errors.Is(err, opErr) {
		t.Errorf("Execute = %v, want the operation error", err)
	}
	// A failed call still spends the local estimate.
	if got := th.Snapshot().AvailableUnits; got != 975 {
		t.Errorf("AvailableUnits = %v, want 975", got)
	}
}

func TestConcurrentSettle(t *testing.T) {
	th, _, _ := newTestThrottle(Config{MaxUnits: 1000, RestoreRate: 50})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			th.Settle(1, Usage{})
			th.Snapshot()
		}()
	}
	wg.Wait()

	got := th.Snapshot().AvailableUnits
	if got < 0 || got > 1000 {
		t.Errorf("AvailableUnits = %v, want within [0, 1000]", got)
	}
}
