// Package breaker implements a three-state circuit breaker guarding calls to
// one logical provider.
//
// State transitions happen lazily on access: the OPEN -> HALF_OPEN move is
// performed by the next CanExecute call once the open timeout has elapsed,
// never by a background timer. The clock is injectable for deterministic
// tests.
package breaker

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed State = iota // requests flow, failures are tracked
	StateOpen                // requests are rejected
	StateHalfOpen            // limited probing for recovery
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures within Window
	// that trips the breaker open.
	FailureThreshold int

	// Window bounds how old the failure streak may be; a failure older than
	// Window resets the streak before counting.
	Window time.Duration

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration

	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the breaker again.
	SuccessThreshold int

	// OnStateChange, if set, is called after every state transition.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	FailureThreshold: 5,
	Window:           120 * time.Second,
	OpenTimeout:      60 * time.Second,
	SuccessThreshold: 2,
}

// Metrics is a read-only snapshot of breaker counters.
type Metrics struct {
	State               State
	ConsecutiveFailures int
	HalfOpenSuccesses   int
	LastFailureAt       time.Time
	LastStateChangeAt   time.Time
}

// Breaker tracks aggregate health of calls to one logical provider. All
// methods are safe for concurrent use; transitions are linearizable with
// respect to CanExecute/RecordSuccess/RecordFailure on one instance.
type Breaker struct {
	mu sync.Mutex

	name string
	cfg  Config

	state               State
	consecutiveFailures int
	halfOpenSuccesses   int
	lastFailureAt       time.Time
	lastStateChangeAt   time.Time

	now     func() time.Time
	pending pendingChange
}

// New creates a breaker in the closed state. Zero config fields fall back to
// DefaultConfig values.
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig.Window
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultConfig.OpenTimeout
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultConfig.SuccessThreshold
	}

	b := &Breaker{
		name: name,
		cfg:  cfg,
		now:  time.Now,
	}
	b.lastStateChangeAt = b.now()
	return b
}

// Name returns the breaker identifier.
func (b *Breaker) Name() string {
	return b.name
}

// CanExecute reports whether a new attempt is admitted. It is a
// side-effecting read: when the open timeout has elapsed it performs the
// OPEN -> HALF_OPEN transition before answering.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()

	if b.state == StateOpen && b.now().Sub(b.lastStateChangeAt) >= b.cfg.OpenTimeout {
		b.transition(StateHalfOpen)
	}

	admitted := b.state != StateOpen
	notify := b.takeNotification()
	b.mu.Unlock()

	notify()
	return admitted
}

// RecordSuccess records a successful call. In half-open state enough
// consecutive successes close the breaker; in closed state it clears the
// failure streak.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()

	switch b.state {
	case StateHalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
		}
	case StateClosed:
		b.consecutiveFailures = 0
	}

	notify := b.takeNotification()
	b.mu.Unlock()

	notify()
}

// RecordFailure records a failed call. In closed state it advances the
// failure streak, discarding streaks older than the monitoring window; in
// half-open state a single failure reopens the breaker immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()

	now := b.now()
	switch b.state {
	case StateClosed:
		if !b.lastFailureAt.IsZero() && now.Sub(b.lastFailureAt) > b.cfg.Window {
			b.consecutiveFailures = 0
		}
		b.consecutiveFailures++
		b.lastFailureAt = now
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.lastFailureAt = now
		b.transition(StateOpen)
	}

	notify := b.takeNotification()
	b.mu.Unlock()

	notify()
}

// State returns the current state without performing lazy transitions.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a copy of the breaker counters.
func (b *Breaker) Snapshot() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Metrics{
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		HalfOpenSuccesses:   b.halfOpenSuccesses,
		LastFailureAt:       b.lastFailureAt,
		LastStateChangeAt:   b.lastStateChangeAt,
	}
}

// pendingChange carries a transition out of the critical section so the
// OnStateChange callback never runs under the lock.
type pendingChange struct {
	fired    bool
	from, to State
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}

	b.state = to
	ts := b.now()
	// Transition timestamps are monotonic.
	if ts.After(b.lastStateChangeAt) {
		b.lastStateChangeAt = ts
	}

	if to == StateClosed {
		b.consecutiveFailures = 0
	}
	// halfOpenSuccesses resets whenever the state enters or leaves HALF_OPEN.
	b.halfOpenSuccesses = 0

	b.pending = pendingChange{fired: true, from: from, to: to}
}

func (b *Breaker) takeNotification() func() {
	if !b.pending.fired || b.cfg.OnStateChange == nil {
		b.pending = pendingChange{}
		return func() {}
	}
	p := b.pending
	b.pending = pendingChange{}
	name := b.name
	cb := b.cfg.OnStateChange
	return func() { cb(name, p.from, p.to) }
}
