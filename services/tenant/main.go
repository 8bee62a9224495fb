package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/gym-tenant-system/shared/clock"
	"github.com/pavitra93/gym-tenant-system/shared/config"
	"github.com/pavitra93/gym-tenant-system/shared/metrics"
	"github.com/pavitra93/gym-tenant-system/shared/middleware"
	"github.com/pavitra93/gym-tenant-system/shared/models"
	"github.com/pavitra93/gym-tenant-system/shared/store"
	"github.com/pavitra93/gym-tenant-system/shared/tenants"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

func newRouter(svc tenantService, am *middleware.AuthMiddleware, timeout gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), metrics.Middleware())
	if timeout != nil {
		router.Use(timeout)
	}

	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Tenant service is healthy", nil)
	})
	router.GET("/metrics", metrics.Handler())

	admin := am.RequireRole(models.RoleAdmin)

	gyms := router.Group("/tenants")
	gyms.Use(am.RequireAuth())
	{
		// Platform management
		gyms.POST("", admin, handleCreateGym(svc))
		gyms.GET("", admin, handleListGyms(svc))
		gyms.PUT("/:id/subscription", admin, handleChangeSubscription(svc))
		gyms.DELETE("/:id", admin, handleDeactivateGym(svc))

		// Gym owners manage their own gym
		gyms.GET("/:id", am.RequireTenantAccess(), handleGetGym(svc))
		gyms.PUT("/:id", am.RequireTenantOwnerOrAdmin(), handleUpdateGym(svc))
		gyms.GET("/:id/limits", am.RequireTenantAccess(), handleGetLimits(svc))
	}

	plans := router.Group("/subscription-plans")
	plans.Use(am.RequireAuth())
	{
		plans.GET("", handleListSubscriptionPlans(svc))
		plans.GET("/:id", handleGetSubscriptionPlan(svc))
		plans.POST("", admin, handleCreateSubscriptionPlan(svc))
		plans.PUT("/:id", admin, handleUpdateSubscriptionPlan(svc))
	}

	return router
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	if err := config.SetupLogging(cfg.Log); err != nil {
		logrus.Fatalf("Invalid logging configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zones, err := clock.NewZones(cfg.DefaultTimezone)
	if err != nil {
		logrus.Fatalf("Invalid default timezone: %v", err)
	}

	db, err := config.ConnectDatabase(cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	st := store.New(db, store.WithTimeout(cfg.StoreTimeout), store.WithLogger(logrus.StandardLogger()))
	if err := st.Migrate(); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}

	var tokenCache middleware.TokenCache
	redisClient, err := utils.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		logrus.Warnf("Failed to connect to Redis, token caching disabled: %v", err)
	} else {
		defer redisClient.Close()
		tokenCache = utils.NewCache(redisClient, "tenant")
	}

	authMiddleware, err := middleware.AuthFromConfig(cfg, tokenCache)
	if err != nil {
		logrus.Fatalf("Failed to initialize auth middleware: %v", err)
	}

	registry := tenants.NewRegistry(st, clock.System{}, zones, logrus.StandardLogger())
	router := newRouter(registry, authMiddleware, middleware.Timeout(cfg.RequestTimeout))

	if err := utils.RunServer(ctx, "Tenant service", ":"+cfg.TenantPort, router); err != nil {
		logrus.Fatalf("Failed to start tenant service: %v", err)
	}
}
