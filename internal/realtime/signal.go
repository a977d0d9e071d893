package realtime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/charlesng35/bitebell/pkg/logger"
)

// RefreshEmitter is implemented by anything that can tell clients to re-poll notifications.
type RefreshEmitter interface {
	EmitRefresh()
}

// NopEmitter discards refresh signals.
type NopEmitter struct{}

// EmitRefresh implements RefreshEmitter.
func (NopEmitter) EmitRefresh() {}

// RefreshSignaler emits refreshNotifications on the hub after a short delay. Bursts of
// writes inside one delay window collapse into a single signal. When a Redis client
// is configured the signal is also published so other instances relay it to their
// own subscribers.
type RefreshSignaler struct {
	hub      *Hub
	delay    time.Duration
	redis    redis.UniversalClient
	channel  string
	instance string
	log      *zap.Logger

	mu      sync.Mutex
	pending *time.Timer
	stopped bool
}

// SignalerOption customises a RefreshSignaler.
type SignalerOption func(*RefreshSignaler)

// WithRedisChannel publishes every signal on channel.
func WithRedisChannel(client redis.UniversalClient, channel string) SignalerOption {
	return func(s *RefreshSignaler) {
		if client != nil && channel != "" {
			s.redis = client
			s.channel = channel
		}
	}
}

// NewRefreshSignaler constructs a signaler. A zero delay emits synchronously.
func NewRefreshSignaler(hub *Hub, delay time.Duration, opts ...SignalerOption) *RefreshSignaler {
	s := &RefreshSignaler{
		hub:      hub,
		delay:    delay,
		instance: uuid.NewString(),
		log:      logger.WithModule("realtime.signal"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EmitRefresh schedules a refresh signal.
func (s *RefreshSignaler) EmitRefresh() {
	if s == nil {
		return
	}
	if s.delay <= 0 {
		s.fire()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.pending != nil {
		return
	}
	s.pending = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()
		s.fire()
	})
}

func (s *RefreshSignaler) fire() {
	s.broadcastLocal()

	if s.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.redis.Publish(ctx, s.channel, EventRefreshNotifications+":"+s.instance).Err(); err != nil {
		s.log.Warn("publish refresh signal failed", zap.String("channel", s.channel), zap.Error(err))
	}
}

func (s *RefreshSignaler) broadcastLocal() {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastStream(StreamNotifications, Message{Event: EventRefreshNotifications})
}

// Relay forwards signals published by other instances to local subscribers until
// ctx is cancelled. It returns immediately when no Redis channel is configured.
func (s *RefreshSignaler) Relay(ctx context.Context) error {
	if s == nil || s.redis == nil {
		return nil
	}

	sub := s.redis.Subscribe(ctx, s.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			event, origin, _ := strings.Cut(msg.Payload, ":")
			if event == EventRefreshNotifications && origin != s.instance {
				s.broadcastLocal()
			}
		}
	}
}

// Stop cancels a pending signal and ignores later ones.
func (s *RefreshSignaler) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
}
