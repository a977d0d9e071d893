package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRefreshSignalerImmediate(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "user-1", StreamNotifications)

	NewRefreshSignaler(hub, 0).EmitRefresh()

	require.Equal(t, EventRefreshNotifications, readMessage(t, conn).Event)
}

func TestRefreshSignalerCoalescesBursts(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "user-1", StreamNotifications)

	signaler := NewRefreshSignaler(hub, 50*time.Millisecond)
	t.Cleanup(signaler.Stop)

	for i := 0; i < 5; i++ {
		signaler.EmitRefresh()
	}

	require.Equal(t, EventRefreshNotifications, readMessage(t, conn).Event)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	var extra Message
	require.Error(t, conn.ReadJSON(&extra), "burst should produce a single signal")
}

func TestRefreshSignalerStopCancelsPending(t *testing.T) {
	signaler := NewRefreshSignaler(nil, time.Hour)
	signaler.EmitRefresh()
	signaler.Stop()
	signaler.EmitRefresh()

	signaler.mu.Lock()
	defer signaler.mu.Unlock()
	require.Nil(t, signaler.pending)
}

func TestRefreshSignalerRelaysRemoteSignals(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hub := NewHub()
	conn := dialHub(t, hub, "user-1", StreamNotifications)

	local := NewRefreshSignaler(hub, 0, WithRedisChannel(client, "bitebell:refresh"))
	remote := NewRefreshSignaler(nil, 0, WithRedisChannel(client, "bitebell:refresh"))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- local.Relay(ctx) }()

	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("bitebell:*")) > 0
	}, time.Second, 10*time.Millisecond)

	remote.EmitRefresh()
	require.Equal(t, EventRefreshNotifications, readMessage(t, conn).Event)

	cancel()
	require.NoError(t, <-done)
}

func TestNopEmitter(t *testing.T) {
	var emitter RefreshEmitter = NopEmitter{}
	emitter.EmitRefresh()
}
