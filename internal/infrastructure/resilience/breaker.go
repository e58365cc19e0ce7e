package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// Failures is the number of consecutive failures that opens the breaker
	Failures int
	// Cooldown is how long the breaker stays open before probing again
	Cooldown time.Duration
	// OnStateChange is called whenever the state changes, with the lock released
	OnStateChange func(name string, from State, to State)
}

// Counts holds the statistics for the circuit breaker
type Counts struct {
	Requests            uint32
	TotalFailures       uint32
	ConsecutiveFailures uint32
}

// Breaker guards a peer that may stop answering. In half-open state a single
// probe request is let through; its outcome decides between closed and open.
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu         sync.Mutex
	state      State
	counts     Counts
	openedAt   time.Time
	probing    bool
	generation uint64
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	if settings.Failures <= 0 {
		settings.Failures = 3
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 10 * time.Second
	}

	return &Breaker{
		name:     name,
		settings: settings,
		now:      time.Now,
		state:    StateClosed,
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	state, notify := b.currentState()
	b.mu.Unlock()

	notify()
	return state
}

// Counts returns a copy of the internal counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts
}

// Allow reserves a request slot. The returned generation must be passed back
// to Record once the outcome is known.
func (b *Breaker) Allow() (uint64, error) {
	b.mu.Lock()
	state, notify := b.currentState()

	var err error
	switch {
	case state == StateOpen:
		err = ErrCircuitOpen
	case state == StateHalfOpen && b.probing:
		err = ErrTooManyRequests
	default:
		if state == StateHalfOpen {
			b.probing = true
		}
		b.counts.Requests++
	}
	gen := b.generation
	b.mu.Unlock()

	notify()
	return gen, err
}

// Record reports the outcome of a request admitted by Allow. Outcomes from a
// previous generation are ignored.
func (b *Breaker) Record(generation uint64, failed bool) {
	b.mu.Lock()
	if generation != b.generation {
		b.mu.Unlock()
		return
	}

	notify := func() {}
	switch b.state {
	case StateClosed:
		if failed {
			b.counts.TotalFailures++
			b.counts.ConsecutiveFailures++
			if int(b.counts.ConsecutiveFailures) >= b.settings.Failures {
				notify = b.setState(StateOpen)
			}
		} else {
			b.counts.ConsecutiveFailures = 0
		}
	case StateHalfOpen:
		b.probing = false
		if failed {
			notify = b.setState(StateOpen)
		} else {
			notify = b.setState(StateClosed)
		}
	}
	b.mu.Unlock()

	notify()
}

// Do runs fn through the breaker. isFailure classifies the returned error;
// a nil classifier counts every non-nil error.
func (b *Breaker) Do(fn func() error, isFailure func(error) bool) error {
	gen, err := b.Allow()
	if err != nil {
		return err
	}

	failed := true
	defer func() {
		b.Record(gen, failed)
	}()

	err = fn()
	if isFailure == nil {
		failed = err != nil
	} else {
		failed = err != nil && isFailure(err)
	}
	return err
}

// currentState moves an expired open breaker to half-open. Caller holds mu.
func (b *Breaker) currentState() (State, func()) {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		return StateHalfOpen, b.setState(StateHalfOpen)
	}
	return b.state, func() {}
}

// setState changes the state and returns the deferred change notification.
// Caller holds mu.
func (b *Breaker) setState(state State) func() {
	if b.state == state {
		return func() {}
	}

	prev := b.state
	b.state = state
	b.generation++
	b.counts = Counts{}
	b.probing = false
	if state == StateOpen {
		b.openedAt = b.now()
	}

	if b.settings.OnStateChange == nil {
		return func() {}
	}
	name, hook := b.name, b.settings.OnStateChange
	return func() { hook(name, prev, state) }
}
