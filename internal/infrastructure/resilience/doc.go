/*
Package resilience provides the circuit breaker guarding calls to the remote
workspace backend.

When the backend is down, every file open and save would otherwise wait out
its full retry budget. The breaker fails those calls fast after a run of
failures and lets a few probes through once its timeout elapses.

# Usage

	breaker := resilience.New("workspace-backend", resilience.Settings{
		MaxRequests: 2,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsFailure: func(err error) bool {
			return errors.Is(err, types.ErrNetworkFailure)
		},
	})

	err := breaker.Do(func() error {
		return fetch(ctx)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                             |
	                                         [failure]
	                                             v
	                                           Open
*/
package resilience
