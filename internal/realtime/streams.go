package realtime

// Named realtime streams and events.
const (
	StreamNotifications = "notifications"

	// EventRefreshNotifications tells open clients to re-poll their notification list. It has no payload.
	EventRefreshNotifications = "refreshNotifications"
)
