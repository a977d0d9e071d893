package checks

import (
	"context"

	"github.com/sony/gobreaker"

	"github.com/charlesng35/bitebell/internal/monitoring"
)

// BreakerReporter exposes the state of a circuit breaker.
type BreakerReporter interface {
	BreakerState() gobreaker.State
}

// Functions reports the remote functions breaker. An open breaker means reads are served
// from the local store, so the service is degraded but still usable.
func Functions(client BreakerReporter) monitoring.Check {
	return monitoring.NewCheck("functions", func(context.Context) monitoring.ProbeResult {
		if client == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "remote functions not configured"}
		}
		switch state := client.BreakerState(); state {
		case gobreaker.StateOpen:
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "circuit open, serving local data"}
		default:
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "circuit " + state.String()}
		}
	})
}
