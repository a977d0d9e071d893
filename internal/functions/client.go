// Package functions is the HTTP client for the hosted notification functions.
package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/charlesng35/bitebell/pkg/logger"
	"github.com/charlesng35/bitebell/pkg/metrics"
)

// ErrLogicalFailure is returned when the function answered with success=false.
var ErrLogicalFailure = errors.New("functions: request reported failure")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("functions: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("functions: status %d", e.StatusCode)
}

// BreakerConfig tunes the circuit breaker guarding the remote functions.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// Config describes how to reach the functions endpoint. ServiceKey authenticates the
// staff-only calls (analytics, scheduling, segments, A/B tests); without it they go out
// with the publishable AnonKey and are refused.
type Config struct {
	BaseURL    string
	AnonKey    string
	ServiceKey string
	Timeout    time.Duration
	Breaker    BreakerConfig
}

// Client calls the /notifications family of functions.
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
	http       *http.Client
	cb         *gobreaker.CircuitBreaker
	log        *zap.Logger
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient constructs a Client. BaseURL should point at the functions root, e.g.
// https://api.example.com/functions/v1.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("functions: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("functions: invalid base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:    base,
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceKey,
		http:       &http.Client{Timeout: cfg.Timeout},
		log:        logger.WithModule("functions"),
	}
	c.cb = newBreaker("notification-functions", cfg.Breaker, c.log)
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newBreaker(name string, cfg BreakerConfig, log *zap.Logger) *gobreaker.CircuitBreaker {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 3
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.TotalFailures >= cfg.FailureThreshold
		},
		// a reachable function that rejects the request is not an outage
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, ErrLogicalFailure) {
				return true
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.StatusCode < http.StatusInternalServerError
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.FunctionsBreakerState.Set(float64(to))
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// BreakerState exposes the breaker state for health reporting.
func (c *Client) BreakerState() gobreaker.State {
	return c.cb.State()
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	return c.call(ctx, c.anonKey, method, path, query, body, out)
}

// doStaff authenticates with the service key, falling back to the anon key.
func (c *Client) doStaff(ctx context.Context, method, path string, query url.Values, body, out any) error {
	key := c.serviceKey
	if key == "" {
		key = c.anonKey
	}
	return c.call(ctx, key, method, path, query, body, out)
}

func (c *Client) call(ctx context.Context, key, method, path string, query url.Values, body, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, key, method, path, query, body, out)
	})
	if err != nil {
		c.log.Debug("function call failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, key, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("functions: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("functions: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("functions: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("functions: read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		if decodeErr == nil && env.Error != nil {
			statusErr.Code = env.Error.Code
			statusErr.Message = env.Error.Message
		}
		return statusErr
	}
	if decodeErr != nil {
		return fmt.Errorf("functions: decode response: %w", decodeErr)
	}
	if !env.Success {
		if env.Error != nil && env.Error.Message != "" {
			return fmt.Errorf("%w: %s", ErrLogicalFailure, env.Error.Message)
		}
		return ErrLogicalFailure
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("functions: decode data: %w", err)
	}
	return nil
}

// ListNotifications fetches notifications visible to userID.
func (c *Client) ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error) {
	query := url.Values{}
	if userID != "" {
		query.Set("user_id", userID)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var out []Notification
	if err := c.do(ctx, http.MethodGet, "/notifications", query, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Notification{}
	}
	return out, nil
}

// Stats fetches notification counters for userID.
func (c *Client) Stats(ctx context.Context, userID string) (Stats, error) {
	query := url.Values{}
	if userID != "" {
		query.Set("user_id", userID)
	}

	var out Stats
	err := c.do(ctx, http.MethodGet, "/notifications/stats", query, nil, &out)
	return out, err
}

// Analytics fetches the admin summary.
func (c *Client) Analytics(ctx context.Context) (Analytics, error) {
	var out Analytics
	err := c.doStaff(ctx, http.MethodGet, "/notifications/analytics", nil, nil, &out)
	return out, err
}

// Bulk applies a bulk operation on behalf of userID. An empty userID needs the service
// key and is not scoped to any user.
func (c *Client) Bulk(ctx context.Context, userID string, req BulkRequest) (BulkResult, error) {
	var out BulkResult
	if userID == "" {
		err := c.doStaff(ctx, http.MethodPost, "/notifications/bulk", nil, req, &out)
		return out, err
	}
	query := url.Values{}
	query.Set("user_id", userID)
	err := c.do(ctx, http.MethodPost, "/notifications/bulk", query, req, &out)
	return out, err
}

// Schedule creates or schedules a notification.
func (c *Client) Schedule(ctx context.Context, req ScheduleRequest) (ScheduleResult, error) {
	var out ScheduleResult
	err := c.doStaff(ctx, http.MethodPost, "/notifications", nil, req, &out)
	return out, err
}

// Segments resolves a user segment.
func (c *Client) Segments(ctx context.Context, req SegmentRequest) (SegmentResult, error) {
	var out SegmentResult
	err := c.doStaff(ctx, http.MethodPost, "/notifications/segments", nil, req, &out)
	return out, err
}

// ABTest starts an A/B test.
func (c *Client) ABTest(ctx context.Context, req ABTestRequest) (ABTestResult, error) {
	var out ABTestResult
	err := c.doStaff(ctx, http.MethodPost, "/notifications/ab-test", nil, req, &out)
	return out, err
}
