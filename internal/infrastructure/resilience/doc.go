/*
Package resilience provides a circuit breaker for calls into the rendering
platform.

The surface pool constructs providers through a breaker so that a browser
that refuses to start new targets fails create requests fast instead of
stalling the multiplexer loop on every attempt.

# Usage

	breaker := resilience.New("provider-factory", resilience.Settings{
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	prov, err := resilience.Call(breaker, func() (surface.Provider, error) {
		return factory(ctx)
	})

Context cancellation is not counted as a failure unless Settings.IsFailure
says otherwise.
*/
package resilience
