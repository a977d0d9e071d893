package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/bitebell/internal/cache"
)

func rateLimitedRouter(store cache.Store, limit int, window time.Duration) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(store, limit, window))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func ping(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware(t *testing.T) {
	r := rateLimitedRouter(cache.NewMemoryStore(), 2, 100*time.Millisecond)

	w := ping(r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	w = ping(r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = ping(r)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))

	time.Sleep(120 * time.Millisecond)
	require.Equal(t, http.StatusOK, ping(r).Code)
}

func TestRateLimitSharedThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := cache.NewRedisStore(client)

	first := rateLimitedRouter(store, 1, time.Minute)
	second := rateLimitedRouter(store, 1, time.Minute)

	require.Equal(t, http.StatusOK, ping(first).Code)
	require.Equal(t, http.StatusTooManyRequests, ping(second).Code)
}

type failingStore struct{ cache.Store }

func (failingStore) IncrementWithTTL(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("store down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	r := rateLimitedRouter(failingStore{}, 1, time.Minute)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, ping(r).Code)
	}
}
