package node

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// newEndpointBreaker builds a single-endpoint circuit breaker tuned to node
// RPC failure codes, adapted from the teacher's CircuitBreakerManager
// (internal/infrastructure/providers/circuitbreakers.go) — trimmed from a
// multi-provider fallback-chain map down to one breaker per node endpoint,
// since NodeClient's own round-robin already supplies the fallback.
func newEndpointBreaker(name string, log zerolog.Logger) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(n string, from, to gobreaker.State) {
			log.Warn().Str("endpoint", n).Str("from", from.String()).Str("to", to.String()).Msg("node circuit breaker state change")
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}
