package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/bitebell/internal/app"
	iauth "github.com/charlesng35/bitebell/internal/auth"
	"github.com/charlesng35/bitebell/internal/cache"
	"github.com/charlesng35/bitebell/internal/handlers"
	"github.com/charlesng35/bitebell/internal/middleware"
	"github.com/charlesng35/bitebell/internal/monitoring"
	"github.com/charlesng35/bitebell/internal/realtime"
	"github.com/charlesng35/bitebell/internal/services"
)

// Dependencies lists everything the router mounts. Hub, Health and RateStore are optional.
type Dependencies struct {
	Config    *app.Config
	JWT       *iauth.JWTService
	Services  *services.Registry
	Hub       *realtime.Hub
	Health    *monitoring.HealthManager
	RateStore cache.Store
}

// NewRouter builds the Gin engine, wires middleware and registers every route group.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Services == nil {
		return nil, fmt.Errorf("service registry must be provided")
	}
	cfg := deps.Config
	svc := deps.Services

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))

	registerHealthRoutes(r, cfg, deps.Health)
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	requireAuth := middleware.Auth(deps.JWT)
	limit := middleware.RateLimit(deps.RateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window)

	// Callable notification functions (publishable key or user token)
	fn := handlers.NewFunctionsHandler(svc.Notifications, svc.Engagement)
	functionsGroup := r.Group("/functions/v1/notifications", requireAuth, limit)
	{
		functionsGroup.GET("", fn.List)
		functionsGroup.POST("", fn.Create)
		functionsGroup.GET("/stats", fn.Stats)
		functionsGroup.GET("/analytics", middleware.RequireAdmin(), fn.Analytics)
		functionsGroup.POST("/bulk", fn.Bulk)
		functionsGroup.POST("/segments", middleware.RequireAdmin(), fn.Segments)
		functionsGroup.POST("/ab-test", middleware.RequireAdmin(), fn.ABTest)
	}

	api := r.Group("/api", requireAuth, limit)

	if deps.Hub != nil {
		rt := handlers.NewRealtimeHandler(deps.Hub, deps.JWT, realtime.StreamNotifications)
		r.GET("/api/realtime", rt.Stream)
		r.GET("/api/realtime/:stream", rt.Stream)
	}

	// Storefront notifications through the facade
	if svc.Facade != nil {
		nh := handlers.NewNotificationHandler(svc.Facade)
		user := api.Group("/notifications", middleware.RequireUser())
		{
			user.GET("", nh.List)
			user.GET("/stats", nh.Stats)
			user.POST("/bulk", nh.Bulk)

			user.GET("/local", nh.LocalList)
			user.POST("/local", nh.LocalCreate)
			user.POST("/local/seed", nh.LocalSeed)
			user.PUT("/local/read-all", nh.LocalMarkAllRead)
			user.PUT("/local/:id/read", nh.LocalMarkRead)
			user.DELETE("/local/:id", nh.LocalDelete)
			user.DELETE("/local", nh.LocalClear)
		}
		staff := api.Group("/notifications", middleware.RequireAdmin())
		{
			staff.GET("/analytics", nh.Analytics)
			staff.POST("/schedule", nh.Schedule)
			staff.POST("/segments", nh.Segments)
			staff.POST("/ab-test", nh.ABTest)
		}
	}

	// Admin console
	admin := api.Group("/admin", middleware.RequireAdmin())
	{
		th := handlers.NewTemplateHandler(svc.Templates)
		admin.GET("/templates", th.List)
		admin.POST("/templates", th.Create)
		admin.POST("/templates/preview", th.Preview)
		admin.GET("/templates/default/:type", th.GetDefault)
		admin.GET("/templates/:id", th.Get)
		admin.PATCH("/templates/:id", th.Update)
		admin.DELETE("/templates/:id", th.Delete)

		ah := handlers.NewAutomationHandler(svc.Automations)
		admin.GET("/automations", ah.List)
		admin.POST("/automations", ah.Create)
		admin.GET("/automations/:id", ah.Get)
		admin.PATCH("/automations/:id", ah.Update)
		admin.PUT("/automations/:id/active", ah.SetActive)
		admin.DELETE("/automations/:id", ah.Delete)

		ch := handlers.NewCampaignHandler(svc.Campaigns)
		admin.GET("/campaigns", ch.List)
		admin.POST("/campaigns", ch.Create)
		admin.POST("/campaigns/process", ch.Process)
		admin.GET("/campaigns/:id", ch.Get)
		admin.PATCH("/campaigns/:id", ch.Update)
		admin.DELETE("/campaigns/:id", ch.Delete)
		admin.POST("/campaigns/:id/send", ch.Send)
		admin.POST("/campaigns/:id/cancel", ch.Cancel)

		admin.POST("/trigger", handlers.NewTriggerHandler(svc.Engine).Fire)

		uh := handlers.NewUserHandler(svc.Users)
		admin.GET("/users", uh.List)
		admin.POST("/users", uh.Register)
		admin.GET("/users/:id", uh.Get)
		admin.PUT("/users/:id/active", uh.SetActive)
		admin.POST("/users/:id/orders", uh.RecordOrder)
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, manager *monitoring.HealthManager) {
	if !cfg.Monitoring.Health.Enabled {
		return
	}
	if manager == nil {
		manager = monitoring.NewHealthManager(cfg.Monitoring.Health.Timeout)
	}
	h := handlers.NewHealthHandler(manager)
	r.GET("/health", h.Ready)
	r.GET("/health/live", h.Live)
	r.GET("/health/ready", h.Ready)
}
