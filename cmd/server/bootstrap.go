package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/bitebell/internal/api"
	"github.com/charlesng35/bitebell/internal/app"
	"github.com/charlesng35/bitebell/internal/app/maintenance"
	iauth "github.com/charlesng35/bitebell/internal/auth"
	"github.com/charlesng35/bitebell/internal/cache"
	"github.com/charlesng35/bitebell/internal/database"
	"github.com/charlesng35/bitebell/internal/functions"
	"github.com/charlesng35/bitebell/internal/localstore"
	"github.com/charlesng35/bitebell/internal/monitoring"
	"github.com/charlesng35/bitebell/internal/monitoring/checks"
	"github.com/charlesng35/bitebell/internal/realtime"
	"github.com/charlesng35/bitebell/internal/services"
	"github.com/charlesng35/bitebell/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     *redis.Client
	JWT       *iauth.JWTService
	Local     *localstore.Store
	Hub       *realtime.Hub
	Signaler  *realtime.RefreshSignaler
	Functions *functions.Client
	Services  *services.Registry
	Health    *monitoring.HealthManager
	Scheduler *maintenance.Scheduler
	Router    *gin.Engine

	relayCancel context.CancelFunc
}

// bootstrapRuntime initialises the database, caches, services, background jobs and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	stack.JWT, err = iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	backend, err := localStoreBackend(cfg, stack.DB, stack.Redis)
	if err != nil {
		return nil, err
	}
	stack.Local, err = localstore.New(backend, localstore.WithKey(cfg.LocalStore.Key))
	if err != nil {
		return nil, fmt.Errorf("initialise local store: %w", err)
	}

	stack.Hub = realtime.NewHub(cfg.Realtime.AllowedOrigins...)
	var signalOpts []realtime.SignalerOption
	if stack.Redis != nil && strings.TrimSpace(cfg.Realtime.RedisChannel) != "" {
		signalOpts = append(signalOpts, realtime.WithRedisChannel(stack.Redis, cfg.Realtime.RedisChannel))
	}
	stack.Signaler = realtime.NewRefreshSignaler(stack.Hub, cfg.Notifications.RefreshDelay, signalOpts...)

	relayCtx, cancel := context.WithCancel(context.Background())
	stack.relayCancel = cancel
	go func() {
		if err := stack.Signaler.Relay(relayCtx); err != nil {
			log.Warn("refresh relay stopped", zap.Error(err))
		}
	}()

	registryCfg := services.RegistryConfig{
		Emitter:   stack.Signaler,
		Local:     stack.Local,
		ListLimit: cfg.Functions.ListLimit,
	}
	if cfg.Functions.Enabled() {
		clientCfg, err := functionsClientConfig(cfg, stack.JWT)
		if err != nil {
			return nil, err
		}
		stack.Functions, err = functions.NewClient(clientCfg)
		if err != nil {
			return nil, fmt.Errorf("initialise functions client: %w", err)
		}
		registryCfg.Remote = stack.Functions
		log.Info("remote functions configured", zap.String("base_url", cfg.Functions.BaseURL))
	} else {
		log.Info("remote functions not configured; serving notifications locally")
	}

	stack.Services, err = services.NewRegistry(stack.DB, registryCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise services: %w", err)
	}

	stack.Health = buildHealthManager(cfg, stack)

	if cfg.Scheduler.Enabled {
		opts := []maintenance.Option{
			maintenance.WithCampaignSchedule(cfg.Scheduler.CampaignSpec),
			maintenance.WithPurgeSchedule(cfg.Scheduler.PurgeSpec),
			maintenance.WithPurger(cache.NewDatabaseStore(stack.DB)),
		}
		stack.Scheduler = maintenance.NewScheduler(stack.Services.Campaigns, opts...)
		if err := stack.Scheduler.Start(); err != nil {
			stack.Scheduler = nil
			return nil, fmt.Errorf("start scheduler: %w", err)
		}
	}

	var rateStore cache.Store
	if stack.Redis != nil {
		rateStore = cache.NewRedisStore(stack.Redis)
	} else {
		rateStore = cache.NewDatabaseStore(stack.DB)
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:    cfg,
		JWT:       stack.JWT,
		Services:  stack.Services,
		Hub:       stack.Hub,
		Health:    stack.Health,
		RateStore: rateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// localStoreBackend picks the cache.Store holding the local notification blob.
func localStoreBackend(cfg *app.Config, db *gorm.DB, client *redis.Client) (cache.Store, error) {
	switch backend := cfg.LocalStore.BackendName(); backend {
	case "memory":
		return cache.NewMemoryStore(), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("local_store.backend is redis but redis is not available")
		}
		return cache.NewRedisStore(client), nil
	case "database":
		return cache.NewDatabaseStore(db), nil
	case "file":
		store, err := cache.NewFileStore(cfg.LocalStore.Path)
		if err != nil {
			return nil, fmt.Errorf("initialise local file store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported local_store.backend %q", backend)
	}
}

func buildHealthManager(cfg *app.Config, stack *runtimeStack) *monitoring.HealthManager {
	manager := monitoring.NewHealthManager(cfg.Monitoring.Health.Timeout)
	manager.RegisterLiveness(checks.Realtime(stack.Hub))
	manager.RegisterReadiness(checks.Database(stack.DB))
	if stack.Redis != nil {
		manager.RegisterReadiness(checks.Redis(stack.Redis))
	}
	if stack.Functions != nil {
		manager.RegisterReadiness(checks.Functions(stack.Functions))
	} else {
		manager.RegisterReadiness(checks.Functions(nil))
	}
	return manager
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Scheduler != nil {
		select {
		case <-s.Scheduler.Stop().Done():
		case <-ctx.Done():
			log.Warn("scheduler did not stop before shutdown deadline")
		}
	}

	if s.relayCancel != nil {
		s.relayCancel()
	}
	s.Signaler.Stop()

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseOptions()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
