package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/gym-tenant-system/shared/config"
	"github.com/pavitra93/gym-tenant-system/shared/metrics"
	"github.com/pavitra93/gym-tenant-system/shared/middleware"
	"github.com/pavitra93/gym-tenant-system/shared/models"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

const rateLimiterTTL = 3 * time.Minute

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

	var tokenCache middleware.TokenCache
	redisClient, err := utils.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		logrus.Warnf("Failed to connect to Redis, caching disabled: %v", err)
	} else {
		defer redisClient.Close()
		tokenCache = utils.NewCache(redisClient, "gateway")
	}

	authMiddleware, err := middleware.AuthFromConfig(cfg, tokenCache)
	if err != nil {
		logrus.Fatalf("Failed to initialize auth middleware: %v", err)
	}

	clients := &ServiceClients{
		GymService:    NewServiceClient("gym_service", cfg.GymServiceURL),
		TenantService: NewServiceClient("tenant_service", cfg.TenantServiceURL),
	}
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, rateLimiterTTL)

	router := newRouter(clients, authMiddleware, limiter)
	logrus.Infof("API Gateway starting on port %s", cfg.GatewayPort)
	if err := utils.RunServer(ctx, "API Gateway", ":"+cfg.GatewayPort, router); err != nil {
		logrus.Fatalf("Failed to start API Gateway: %v", err)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

// newRouter authenticates at the edge and forwards to the owning service.
// Services verify the token again and enforce tenant and role rules.
func newRouter(clients *ServiceClients, am *middleware.AuthMiddleware, limiter *middleware.RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), metrics.Middleware(), cors())

	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "API Gateway is healthy", nil)
	})
	router.GET("/metrics", metrics.Handler())
	router.GET("/status", am.RequireAuth(), am.RequireRole(models.RoleAdmin), func(c *gin.Context) {
		utils.OKResponse(c, "Service status retrieved successfully", clients.GetServiceStatus(c.Request.Context()))
	})

	api := router.Group("")
	api.Use(am.RequireAuth(), limiter.Middleware())
	{
		api.Any("/gyms/*path", clients.GymService.ProxyRequest)

		api.Any("/tenants", clients.TenantService.ProxyRequest)
		api.Any("/tenants/*path", clients.TenantService.ProxyRequest)
		api.Any("/subscription-plans", clients.TenantService.ProxyRequest)
		api.Any("/subscription-plans/*path", clients.TenantService.ProxyRequest)
	}
	return router
}
