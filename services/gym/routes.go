package main

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/pavitra93/gym-tenant-system/shared/metrics"
	"github.com/pavitra93/gym-tenant-system/shared/middleware"
	"github.com/pavitra93/gym-tenant-system/shared/models"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

type routeDeps struct {
	auth    *middleware.AuthMiddleware
	limiter *middleware.RateLimiter
	timeout gin.HandlerFunc
	ping    func(ctx context.Context) error
}

func newRouter(h *handlers, deps routeDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), metrics.Middleware())

	router.GET("/health", func(c *gin.Context) {
		if deps.ping != nil {
			if err := deps.ping(c.Request.Context()); err != nil {
				utils.ServiceUnavailableResponse(c, "Database unreachable")
				return
			}
		}
		utils.OKResponse(c, "Gym service is healthy", nil)
	})
	router.GET("/metrics", metrics.Handler())

	am := deps.auth
	gym := router.Group("/gyms/:tenant_id")
	gym.Use(am.RequireAuth())
	if deps.limiter != nil {
		gym.Use(deps.limiter.Middleware())
	}
	if deps.timeout != nil {
		gym.Use(deps.timeout)
	}
	gym.Use(am.RequireTenantAccess())
	{
		gym.POST("/students", h.createStudent)
		gym.GET("/students", h.listStudents)
		gym.GET("/students/:id", h.getStudent)
		gym.PUT("/students/:id", h.updateStudent)
		gym.DELETE("/students/:id", h.deleteStudent)
		gym.POST("/students/:id/renew", h.renewMembership)
		gym.GET("/students/:id/checkins", h.studentCheckIns)

		gym.POST("/checkins", h.registerCheckIn)
		gym.GET("/checkins", h.listCheckIns)
		gym.GET("/checkins/peak-hours", h.peakHours)
		gym.GET("/checkins/by-method", h.checkInsByMethod)
		gym.GET("/checkins/today", h.todayAttendance)

		owner := am.RequireTenantOwnerOrAdmin()
		gym.POST("/plans", owner, h.createPlan)
		gym.GET("/plans", h.listPlans)
		gym.GET("/plans/popular", h.popularPlans)
		gym.GET("/plans/:id", h.getPlan)
		gym.PUT("/plans/:id", owner, h.updatePlan)
		gym.DELETE("/plans/:id", owner, h.retirePlan)
		gym.GET("/plans/:id/stats", h.planStats)

		gym.GET("/analytics/dashboard", h.dashboard)
		gym.GET("/analytics/range", h.analyticsRange)
		gym.POST("/analytics/snapshots", owner, h.generateSnapshot)
		gym.GET("/analytics/snapshots", h.listSnapshots)

		gym.GET("/limits", h.tenantLimits)

		gym.POST("/admin/sweep", am.RequireRole(models.RoleAdmin), h.runSweep)
	}
	return router
}
