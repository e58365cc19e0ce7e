package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTimeout = errors.New("timeout")

// fakeClock lets tests move the breaker past its cooldown without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(settings Settings) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	b := New("test", settings)
	b.now = clock.Now
	return b, clock
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		failures      int
		outcomes      []bool // true = failure
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			failures:      2,
			outcomes:      []bool{false, false, false},
			expectedState: StateClosed,
		},
		{
			name:          "opens after consecutive failures",
			failures:      3,
			outcomes:      []bool{true, true, true},
			expectedState: StateOpen,
		},
		{
			name:          "success resets the streak",
			failures:      2,
			outcomes:      []bool{true, false, true},
			expectedState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker, _ := newTestBreaker(Settings{Failures: tt.failures, Cooldown: time.Minute})

			for _, failed := range tt.outcomes {
				gen, err := breaker.Allow()
				require.NoError(t, err)
				breaker.Record(gen, failed)
			}

			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	breaker, _ := newTestBreaker(Settings{Failures: 5})

	require.NoError(t, breaker.Do(func() error { return nil }, nil))

	counts := breaker.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(0), counts.TotalFailures)

	err := breaker.Do(func() error { return errTimeout }, nil)
	assert.ErrorIs(t, err, errTimeout)

	counts = breaker.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
}

func TestBreakerClassifier(t *testing.T) {
	breaker, _ := newTestBreaker(Settings{Failures: 1})
	onlyTimeouts := func(err error) bool { return errors.Is(err, errTimeout) }

	err := breaker.Do(func() error { return errors.New("remote exception") }, onlyTimeouts)
	assert.Error(t, err)
	assert.Equal(t, StateClosed, breaker.State())

	err = breaker.Do(func() error { return errTimeout }, onlyTimeouts)
	assert.ErrorIs(t, err, errTimeout)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerOpenState(t *testing.T) {
	breaker, _ := newTestBreaker(Settings{Failures: 2, Cooldown: time.Minute})

	for i := 0; i < 2; i++ {
		_ = breaker.Do(func() error { return errTimeout }, nil)
	}
	assert.Equal(t, StateOpen, breaker.State())

	called := false
	err := breaker.Do(func() error {
		called = true
		return nil
	}, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenState(t *testing.T) {
	breaker, clock := newTestBreaker(Settings{Failures: 1, Cooldown: time.Second})

	_ = breaker.Do(func() error { return errTimeout }, nil)
	assert.Equal(t, StateOpen, breaker.State())

	clock.Advance(2 * time.Second)
	assert.Equal(t, StateHalfOpen, breaker.State())

	// Only one probe at a time
	gen, err := breaker.Allow()
	require.NoError(t, err)
	_, err = breaker.Allow()
	assert.ErrorIs(t, err, ErrTooManyRequests)

	breaker.Record(gen, false)
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	breaker, clock := newTestBreaker(Settings{Failures: 1, Cooldown: time.Second})

	_ = breaker.Do(func() error { return errTimeout }, nil)
	clock.Advance(2 * time.Second)

	err := breaker.Do(func() error { return errTimeout }, nil)
	assert.ErrorIs(t, err, errTimeout)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerStaleGeneration(t *testing.T) {
	breaker, _ := newTestBreaker(Settings{Failures: 1, Cooldown: time.Minute})

	stale, err := breaker.Allow()
	require.NoError(t, err)

	_ = breaker.Do(func() error { return errTimeout }, nil)
	require.Equal(t, StateOpen, breaker.State())

	// A late success from before the trip must not close the breaker
	breaker.Record(stale, false)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerCallbacks(t *testing.T) {
	var transitions []string

	breaker, clock := newTestBreaker(Settings{
		Failures: 2,
		Cooldown: time.Second,
		OnStateChange: func(name string, from State, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	for i := 0; i < 2; i++ {
		_ = breaker.Do(func() error { return errTimeout }, nil)
	}

	clock.Advance(time.Second)
	require.NoError(t, breaker.Do(func() error { return nil }, nil))

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}
