/*
Package resilience provides a circuit breaker for peers that stop answering.

# Overview

A bridge endpoint blocks its script thread on every synchronous request. When
the peer hangs, each request would wait for the full timeout. The breaker
counts consecutive failures (the caller decides what a failure is, typically
only timeouts) and, once tripped, fails requests immediately until a cooldown
has passed.

# Usage

	breaker := resilience.New("endpoint", resilience.Settings{
		Failures: 3,
		Cooldown: 10 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state changed", zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	err := breaker.Do(func() error {
		return roundTrip(ctx)
	}, func(err error) bool {
		return errors.Is(err, context.DeadlineExceeded)
	})

# States

	Closed --[failures]-> Open --[cooldown]-> Half-Open --[probe ok]-> Closed
	                                             |
	                                      [probe failed]
	                                             |
	                                             v
	                                            Open
*/
package resilience
