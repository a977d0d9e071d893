package checks

import (
	"context"
	"fmt"

	"github.com/charlesng35/bitebell/internal/monitoring"
	"github.com/charlesng35/bitebell/internal/realtime"
)

// SubscriberCounter exposes how many clients listen on a stream.
type SubscriberCounter interface {
	Subscribers(stream string) int
}

// Realtime reports the number of clients waiting for refresh signals.
func Realtime(hub SubscriberCounter) monitoring.Check {
	return monitoring.NewCheck("realtime", func(context.Context) monitoring.ProbeResult {
		if hub == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "realtime hub unavailable"}
		}
		return monitoring.ProbeResult{
			Status:  monitoring.StatusUp,
			Details: fmt.Sprintf("%d subscribers", hub.Subscribers(realtime.StreamNotifications)),
		}
	})
}
