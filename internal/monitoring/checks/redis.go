package checks

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/charlesng35/bitebell/internal/monitoring"
)

// Redis probes the Redis server backing the local store and refresh relay. A nil client
// means Redis is not in use and reports up.
func Redis(client redis.UniversalClient) monitoring.Check {
	return monitoring.NewCheck("redis", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if client == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "redis disabled"}
		}

		if err := client.Ping(ctx).Err(); err != nil {
			// Redis only carries the fallback path, so an outage degrades rather than fails.
			result := monitoring.ResultFromError("redis", err, time.Since(start))
			result.Status = monitoring.StatusDegraded
			return result
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Duration: time.Since(start)}
	})
}
