package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/bitebell/internal/api"
	"github.com/charlesng35/bitebell/internal/app"
	iauth "github.com/charlesng35/bitebell/internal/auth"
	"github.com/charlesng35/bitebell/internal/cache"
	sharedtestutil "github.com/charlesng35/bitebell/internal/database/testutil"
	"github.com/charlesng35/bitebell/internal/functions"
	"github.com/charlesng35/bitebell/internal/localstore"
	"github.com/charlesng35/bitebell/internal/realtime"
	"github.com/charlesng35/bitebell/internal/services"
	"github.com/charlesng35/bitebell/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	JWT      *iauth.JWTService
	Services *services.Registry
	Local    *localstore.Store
	Hub      *realtime.Hub
	Now      time.Time

	// Remote is the functions client wired by WithLoopbackRemote.
	Remote *functions.Client
}

// EnvOption customises NewEnv.
type EnvOption func(*envOptions)

type envOptions struct {
	remote   services.RemoteFunctions
	loopback bool
	config   func(*app.Config)
}

// WithRemote points the facade at remote instead of serving everything locally.
func WithRemote(remote services.RemoteFunctions) EnvOption {
	return func(o *envOptions) { o.remote = remote }
}

// WithLoopbackRemote points the facade at a functions client that calls this
// environment's own router over HTTP, authenticated the way the server wires it.
func WithLoopbackRemote() EnvOption {
	return func(o *envOptions) { o.loopback = true }
}

// WithConfig adjusts the router configuration before the router is built.
func WithConfig(fn func(*app.Config)) EnvOption {
	return func(o *envOptions) { o.config = fn }
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	var options envOptions
	for _, opt := range opts {
		opt(&options)
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "test-suite-super-secret-key-32-bytes!!",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	local, err := localstore.New(cache.NewMemoryStore())
	require.NoError(t, err)

	var (
		loopback http.Handler
		client   *functions.Client
	)
	remote := options.remote
	if options.loopback {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loopback.ServeHTTP(w, r)
		}))
		t.Cleanup(srv.Close)

		anon, err := jwtSvc.GeneratePublishableKey()
		require.NoError(t, err)
		service, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: "facade", Role: iauth.RoleService, TTL: -1})
		require.NoError(t, err)
		client, err = functions.NewClient(functions.Config{
			BaseURL:    srv.URL + "/functions/v1",
			AnonKey:    anon,
			ServiceKey: service,
			Timeout:    5 * time.Second,
		})
		require.NoError(t, err)
		remote = client
	}

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	registry, err := services.NewRegistry(db, services.RegistryConfig{
		Local:  local,
		Remote: remote,
		Clock:  func() time.Time { return now },
	})
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Monitoring.Health.Enabled = true
	cfg.Monitoring.Prometheus.Enabled = true
	cfg.Monitoring.Prometheus.Endpoint = "/metrics"
	if options.config != nil {
		options.config(cfg)
	}

	hub := realtime.NewHub()
	router, err := api.NewRouter(api.Dependencies{
		Config:    cfg,
		JWT:       jwtSvc,
		Services:  registry,
		Hub:       hub,
		RateStore: cache.NewMemoryStore(),
	})
	require.NoError(t, err)
	loopback = router

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		JWT:      jwtSvc,
		Services: registry,
		Local:    local,
		Hub:      hub,
		Now:      now,
		Remote:   client,
	}
}

// Token issues an access token for userID with role.
func (e *Env) Token(userID, role string) string {
	e.T.Helper()
	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{UserID: userID, Role: role})
	require.NoError(e.T, err)
	return token
}

// AdminToken issues an admin token.
func (e *Env) AdminToken() string {
	return e.Token("admin-1", iauth.RoleAdmin)
}

// PublishableKey issues the anonymous storefront key.
func (e *Env) PublishableKey() string {
	e.T.Helper()
	key, err := e.JWT.GeneratePublishableKey()
	require.NoError(e.T, err)
	return key
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// MustSucceed asserts a successful envelope with the expected status and decodes its data.
func MustSucceed[T any](t *testing.T, w *httptest.ResponseRecorder, status int) (T, APIResponse) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	resp := DecodeResponse(t, w)
	require.True(t, resp.Success, w.Body.String())
	var out T
	if len(resp.Data) > 0 {
		DecodeInto(t, resp.Data, &out)
	}
	return out, resp
}
