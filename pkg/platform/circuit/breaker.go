// Package circuit provides a failure-rate circuit breaker shared by every
// caller of a single dependency.
//
// The breaker keeps a rolling window of the most recent call outcomes. Once
// the window holds at least the minimum number of calls and the failure rate
// reaches the threshold, the circuit opens for a fixed cooldown. After the
// cooldown a single probe is let through (half-open); enough successful
// probes close the circuit, a failed probe reopens it.
package circuit

import (
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

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

// StateChange reports a transition caused by a recorded outcome.
type StateChange struct {
	Opened bool
	Closed bool
}

// Counts is a point-in-time view of the rolling window.
type Counts struct {
	Calls    int
	Failures int
}

// Listener is notified after every state transition, outside the lock.
type Listener func(name string, from, to State)

// Breaker is safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	name             string
	windowSize       int
	minimumCalls     int
	failureRate      float64
	cooldown         time.Duration
	successThreshold int
	now              func() time.Time
	listener         Listener

	state             State
	outcomes          []bool // true = failure
	pos               int
	calls             int
	failures          int
	openedAt          time.Time
	probeInFlight     bool
	halfOpenSuccesses int
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithWindowSize sets how many recent outcomes are considered.
func WithWindowSize(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.windowSize = n
		}
	}
}

// WithMinimumCalls sets how many outcomes the window needs before the rate is evaluated.
func WithMinimumCalls(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.minimumCalls = n
		}
	}
}

// WithFailureRate sets the failure ratio in [0,1) above which the circuit
// opens. A rate of 0 opens on any failure.
func WithFailureRate(rate float64) Option {
	return func(b *Breaker) {
		if rate >= 0 && rate < 1 {
			b.failureRate = rate
		}
	}
}

// WithCooldown sets how long the circuit stays open before probing.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithSuccessThreshold sets how many successful probes close the circuit.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithListener registers a transition callback.
func WithListener(l Listener) Option {
	return func(b *Breaker) {
		b.listener = l
	}
}

// New creates a closed breaker. Defaults: window 20, minimum 10 calls,
// 50% failure rate, 30s cooldown, 1 probe success to close.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		windowSize:       20,
		minimumCalls:     10,
		failureRate:      0.5,
		cooldown:         30 * time.Second,
		successThreshold: 1,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.minimumCalls > b.windowSize {
		b.minimumCalls = b.windowSize
	}
	b.outcomes = make([]bool, b.windowSize)
	return b
}

// Name returns the dependency name the breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current position. An open circuit whose cooldown has
// elapsed still reports StateOpen until the next Allow.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsOpen reports whether calls are currently being short-circuited.
func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// Counts returns the rolling window totals.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counts{Calls: b.calls, Failures: b.failures}
}

// Allow reports whether a call may proceed. In half-open only one probe is
// admitted at a time; the caller must report its outcome with RecordSuccess,
// RecordFailure or Release.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	var from State
	transitioned := false
	allowed := false

	switch b.state {
	case StateClosed:
		allowed = true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			from = b.state
			b.state = StateHalfOpen
			b.halfOpenSuccesses = 0
			b.probeInFlight = true
			transitioned = true
			allowed = true
		}
	case StateHalfOpen:
		if !b.probeInFlight {
			b.probeInFlight = true
			allowed = true
		}
	}
	b.mu.Unlock()

	if transitioned {
		b.notify(from, StateHalfOpen)
	}
	return allowed
}

// RecordSuccess records a successful call. usePrimary is true when the
// circuit is closed after recording.
func (b *Breaker) RecordSuccess() (usePrimary bool, change StateChange) {
	b.mu.Lock()
	var from State
	switch b.state {
	case StateClosed:
		b.record(false)
		b.mu.Unlock()
		return true, StateChange{}
	case StateHalfOpen:
		b.probeInFlight = false
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses < b.successThreshold {
			b.mu.Unlock()
			return false, StateChange{}
		}
		from = b.state
		b.state = StateClosed
		b.resetWindow()
		b.mu.Unlock()
		b.notify(from, StateClosed)
		return true, StateChange{Closed: true}
	default:
		// A call admitted before the circuit opened finished late.
		b.mu.Unlock()
		return false, StateChange{}
	}
}

// RecordFailure records a failed call. useFallback is true when the circuit
// is open after recording.
func (b *Breaker) RecordFailure() (useFallback bool, change StateChange) {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case StateClosed:
		b.record(true)
		if b.calls < b.minimumCalls || float64(b.failures)/float64(b.calls) <= b.failureRate {
			b.mu.Unlock()
			return false, StateChange{}
		}
		b.open()
	case StateHalfOpen:
		b.open()
	default:
		b.mu.Unlock()
		return true, StateChange{}
	}
	b.mu.Unlock()
	b.notify(from, StateOpen)
	return true, StateChange{Opened: true}
}

// Release frees a half-open probe slot without recording an outcome, for
// calls abandoned by their caller.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.probeInFlight = false
	}
}

// Reset closes the circuit and clears the window.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.probeInFlight = false
	b.halfOpenSuccesses = 0
	b.resetWindow()
	b.mu.Unlock()
	if from != StateClosed {
		b.notify(from, StateClosed)
	}
}

// open must be called with b.mu held.
func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.probeInFlight = false
	b.halfOpenSuccesses = 0
}

// record must be called with b.mu held.
func (b *Breaker) record(failed bool) {
	if b.calls == b.windowSize {
		if b.outcomes[b.pos] {
			b.failures--
		}
	} else {
		b.calls++
	}
	b.outcomes[b.pos] = failed
	if failed {
		b.failures++
	}
	b.pos = (b.pos + 1) % b.windowSize
}

// resetWindow must be called with b.mu held.
func (b *Breaker) resetWindow() {
	for i := range b.outcomes {
		b.outcomes[i] = false
	}
	b.pos = 0
	b.calls = 0
	b.failures = 0
}

func (b *Breaker) notify(from, to State) {
	if b.listener != nil {
		b.listener(b.name, from, to)
	}
}
