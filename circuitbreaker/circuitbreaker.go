package circuitbreaker

import (
	"sync"
	"time"

	"transitions-api-go/logcolors"

	log "github.com/sirupsen/logrus"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed   State = iota // provider is tried normally
	StateOpen                  // provider is skipped until the cooldown passes
	StateHalfOpen              // one probe request is in flight
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// Transition is reported whenever a breaker changes state
type Transition struct {
	Name     string
	From     State
	To       State
	Failures int
	Cooldown time.Duration
	Reason   string
}

// Config holds circuit breaker configuration
type Config struct {
	Name            string
	Threshold       int           // consecutive failures before opening
	Cooldown        time.Duration // time spent OPEN before a probe is let through
	HalfOpenTimeout time.Duration // a probe that takes longer than this reopens the breaker

	// OnTransition and OnWarning run after the breaker lock is released
	OnTransition func(Transition)
	// OnWarning fires once per failure streak when it reaches 60% of the threshold
	OnWarning func(name string, failures, threshold int)
}

// CircuitBreaker guards one generation provider. While OPEN the router skips
// the provider and moves on to the next candidate.
type CircuitBreaker struct {
	name            string
	threshold       int
	cooldown        time.Duration
	halfOpenTimeout time.Duration
	onTransition    func(Transition)
	onWarning       func(name string, failures, threshold int)

	mu              sync.RWMutex
	state           State
	failures        int
	lastFailureTime time.Time
	halfOpenStart   time.Time
	now             func() time.Time
}

// New creates a new circuit breaker
func New(cfg Config) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.HalfOpenTimeout <= 0 {
		cfg.HalfOpenTimeout = 30 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.OnTransition == nil {
		cfg.OnTransition = func(Transition) {}
	}
	if cfg.OnWarning == nil {
		cfg.OnWarning = func(string, int, int) {}
	}

	return &CircuitBreaker{
		name:            cfg.Name,
		threshold:       cfg.Threshold,
		cooldown:        cfg.Cooldown,
		halfOpenTimeout: cfg.HalfOpenTimeout,
		onTransition:    cfg.OnTransition,
		onWarning:       cfg.OnWarning,
		state:           StateClosed,
		now:             time.Now,
	}
}

// moveTo changes state with cb.mu held and returns the transition to report
func (cb *CircuitBreaker) moveTo(to State, reason string) *Transition {
	from := cb.state
	cb.state = to
	return &Transition{
		Name:     cb.name,
		From:     from,
		To:       to,
		Failures: cb.failures,
		Cooldown: cb.cooldown,
		Reason:   reason,
	}
}

func (cb *CircuitBreaker) report(t *Transition) {
	if t == nil {
		return
	}
	prefix := logcolors.CircuitBreakerPrefix(t.Name)
	if t.To == StateOpen {
		log.Warnf("%s %s -> %s: %s (cooldown %v)", prefix, t.From, t.To, t.Reason, t.Cooldown)
	} else {
		log.Infof("%s %s -> %s: %s", prefix, t.From, t.To, t.Reason)
	}
	cb.onTransition(*t)
}

// Allow reports whether the provider may be called now.
// After the cooldown exactly one probe is let through.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	var t *Transition
	allowed := false

	switch cb.state {
	case StateClosed:
		allowed = true
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) >= cb.cooldown {
			cb.halfOpenStart = cb.now()
			t = cb.moveTo(StateHalfOpen, "cooldown passed, probing")
			allowed = true
		}
	case StateHalfOpen:
		if cb.now().Sub(cb.halfOpenStart) >= cb.halfOpenTimeout {
			cb.lastFailureTime = cb.now()
			t = cb.moveTo(StateOpen, "probe timed out")
		}
	default:
		allowed = true
	}
	cb.mu.Unlock()

	cb.report(t)
	return allowed
}

// RecordSuccess closes a probing breaker and clears the failure streak
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	var t *Transition
	cb.failures = 0
	if cb.state == StateHalfOpen {
		t = cb.moveTo(StateClosed, "probe succeeded")
	}
	cb.mu.Unlock()

	cb.report(t)
}

// RecordFailure extends the failure streak, opening the breaker at the threshold
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	var t *Transition
	warn := false

	cb.failures++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateHalfOpen:
		t = cb.moveTo(StateOpen, "probe failed")
	case StateClosed:
		warn = cb.failures == cb.warningThreshold()
		if cb.failures >= cb.threshold {
			t = cb.moveTo(StateOpen, "failure threshold reached")
		}
	}
	failures := cb.failures
	cb.mu.Unlock()

	if warn && t == nil {
		cb.onWarning(cb.name, failures, cb.threshold)
	}
	cb.report(t)
}

func (cb *CircuitBreaker) warningThreshold() int {
	w := (cb.threshold * 3) / 5
	if w < 2 {
		w = 2
	}
	return w
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Failures returns the current consecutive failure count
func (cb *CircuitBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// Name returns the guarded provider name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Threshold returns the configured failure threshold
func (cb *CircuitBreaker) Threshold() int {
	return cb.threshold
}

// IsHalfOpen returns true while a probe is in flight
func (cb *CircuitBreaker) IsHalfOpen() bool {
	return cb.State() == StateHalfOpen
}

// Snapshot is the JSON view of a breaker used by the health and admin endpoints
type Snapshot struct {
	Name           string     `json:"name"`
	State          string     `json:"state"`
	Failures       int        `json:"failures"`
	Threshold      int        `json:"threshold"`
	Cooldown       string     `json:"cooldown"`
	LastFailure    *time.Time `json:"lastFailure,omitempty"`
	RetryInSeconds int        `json:"retryInSeconds,omitempty"`
}

// Snapshot captures the breaker state at this instant
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	snap := Snapshot{
		Name:           cb.name,
		State:          cb.state.String(),
		Failures:       cb.failures,
		Threshold:      cb.threshold,
		Cooldown:       cb.cooldown.String(),
		RetryInSeconds: int(cb.untilRetry().Seconds()),
	}
	if !cb.lastFailureTime.IsZero() {
		last := cb.lastFailureTime
		snap.LastFailure = &last
	}
	return snap
}

// Reset closes the breaker and forgets its history
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	var t *Transition
	cb.failures = 0
	cb.lastFailureTime = time.Time{}
	cb.halfOpenStart = time.Time{}
	if cb.state != StateClosed {
		t = cb.moveTo(StateClosed, "manual reset")
	}
	cb.mu.Unlock()

	cb.report(t)
}

// TimeUntilRetry returns the remaining cooldown while OPEN, the remaining
// probe window while HALF-OPEN, and 0 while CLOSED
func (cb *CircuitBreaker) TimeUntilRetry() time.Duration {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.untilRetry()
}

func (cb *CircuitBreaker) untilRetry() time.Duration {
	var start time.Time
	var window time.Duration
	switch cb.state {
	case StateOpen:
		start, window = cb.lastFailureTime, cb.cooldown
	case StateHalfOpen:
		start, window = cb.halfOpenStart, cb.halfOpenTimeout
	default:
		return 0
	}

	if elapsed := cb.now().Sub(start); elapsed < window {
		return window - elapsed
	}
	return 0
}
