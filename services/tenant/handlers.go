package main

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pavitra93/gym-tenant-system/shared/limits"
	"github.com/pavitra93/gym-tenant-system/shared/middleware"
	"github.com/pavitra93/gym-tenant-system/shared/models"
	"github.com/pavitra93/gym-tenant-system/shared/tenants"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

// tenantService is the subset of tenants.Registry the routes need.
type tenantService interface {
	CreateGym(ctx context.Context, in tenants.GymInput) (*models.Gym, error)
	GetGym(ctx context.Context, gymID uuid.UUID) (*models.Gym, error)
	ListGyms(ctx context.Context, activeOnly bool, page models.PageRequest) (models.Page[models.Gym], error)
	UpdateGym(ctx context.Context, gymID uuid.UUID, p tenants.GymPatch) (*models.Gym, error)
	ChangeSubscription(ctx context.Context, gymID, planID uuid.UUID) (*models.Gym, error)
	DeactivateGym(ctx context.Context, gymID uuid.UUID) (*models.Gym, error)
	Limits(ctx context.Context, gymID uuid.UUID) (limits.Evaluation, error)

	CreateSubscriptionPlan(ctx context.Context, in tenants.SubscriptionPlanInput) (*models.SubscriptionPlan, error)
	GetSubscriptionPlan(ctx context.Context, planID uuid.UUID) (*models.SubscriptionPlan, error)
	ListSubscriptionPlans(ctx context.Context, activeOnly bool) ([]models.SubscriptionPlan, error)
	UpdateSubscriptionPlan(ctx context.Context, planID uuid.UUID, p tenants.SubscriptionPlanPatch) (*models.SubscriptionPlan, error)
}

// ChangeSubscriptionRequest moves a gym to another subscription plan
type ChangeSubscriptionRequest struct {
	SubscriptionPlanID uuid.UUID `json:"subscription_plan_id" binding:"required"`
}

func idParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func activeOnlyQuery(c *gin.Context, def bool) (bool, bool) {
	raw := c.Query("active_only")
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		utils.BadRequestResponse(c, "active_only must be a boolean")
		return false, false
	}
	return v, true
}

// handleCreateGym onboards a new gym (admin only)
func handleCreateGym(svc tenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tenants.GymInput
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		gym, err := svc.CreateGym(c.Request.Context(), req)
		if err != nil {
			utils.DomainErrorResponse(c, err)
			return
		}

		utils.CreatedResponse(c, "Gym created successfully", gym)
	}
}

// handleListGyms lists gyms (admin only)
func handleListGyms(svc tenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var page models.PageRequest
		if err := c.ShouldBindQuery(&page); err != nil {
			utils.BadRequestResponse(c, "Invalid pagination parameters")
			return
		}
		activeOnly, ok := activeOnlyQuery(c, false)
		if !ok {
			return
		}

		result, err := svc.ListGyms(c.Request.Context(), activeOnly, page.Normalize())
		if err != nil {
			utils.DomainErrorResponse(c, err)
			return
		}

		utils.OKResponse(c, "Gyms retrieved successfully", result)
	}
}

// handleGetGym returns one gym with its subscription plan
func handleGetGym(svc tenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}

		gym, err := svc.GetGym(c.Request.Context(), id)
		if err != nil {
			utils.DomainErrorResponse(c, err)
			return
		}

		utils.OKResponse(c, "Gym retrieved successfully", gym)
	}
}

// handleUpdateGym updates contact details and settings
func handleUpdateGym(svc tenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var req tenants.GymPatch
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		gym, err := svc.UpdateGym(c.Request.Context(), id, req)
		if err != nil {
			utils.DomainErrorResponse(c, err)
			return
		}

		utils.OKResponse(c, "Gym updated successfully", gym)
	}
}

// handleChangeSubscription moves a gym to another plan (admin only)
func handleChangeSubscription(svc tenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var req ChangeSubscriptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		gym, err := svc.ChangeSubscription(c.Request.Context(), id, req.SubscriptionPlanID)
		if err != nil {
			utils.DomainErrorResponse(c, err)
			return
		}

		utils.OKResponse(c, "Subscription changed successfully", gym)
	}
}

// handleDeactivateGym soft-deletes a gym (admin only)
func handleDeactivateGym(svc tenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}

		gym, err := svc.DeactivateGym(c.Request.Context(), id)
		if err != nil {
			utils.DomainErrorResponse(c, err)
			return
		}

		utils.OKResponse(c, "Gym deactivated successfully", gym)
	}
}

// handleGetLimits reports the gym's student quota usage
func handleGetLimits(svc tenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}

		eval, err := svc.Limits(c.Request.Context(), id)
		if err != nil {
			utils.DomainErrorResponse(c, err)
			return
		}

		utils.OKResponse(c, "Limits retrieved successfully", gin.H{
			"current_active_students": eval.CurrentActiveStudents,
			"max_students":            eval.MaxStudents,
			"over_limit":              eval.OverLimit,
			"remaining":               eval.Remaining(),
		})
	}
}

// handleCreateSubscriptionPlan adds a platform plan (admin only)
func handleCreateSubscriptionPlan(svc tenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tenants.SubscriptionPlanInput
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		plan, err := svc.CreateSubscriptionPlan(c.Request.Context(), req)
		if err != nil {
			utils.DomainErrorResponse(c, err)
			return
		}

		utils.CreatedResponse(c, "Subscription plan created successfully", plan)
	}
}

// handleListSubscriptionPlans lists plans. Only admins see retired plans.
func handleListSubscriptionPlans(svc tenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		activeOnly, ok := activeOnlyQuery(c, true)
		if !ok {
			return
		}
		if info, ok := middleware.GetUserInfo(c); !ok || !info.IsAdmin() {
			activeOnly = true
		}

		plans, err := svc.ListSubscriptionPlans(c.Request.Context(), activeOnly)
		if err != nil {
			utils.DomainErrorResponse(c, err)
			return
		}

		utils.OKResponse(c, "Subscription plans retrieved successfully", plans)
	}
}

func handleGetSubscriptionPlan(svc tenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}

		plan, err := svc.GetSubscriptionPlan(c.Request.Context(), id)
		if err != nil {
			utils.DomainErrorResponse(c, err)
			return
		}

		utils.OKResponse(c, "Subscription plan retrieved successfully", plan)
	}
}

// handleUpdateSubscriptionPlan edits a platform plan (admin only)
func handleUpdateSubscriptionPlan(svc tenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var req tenants.SubscriptionPlanPatch
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		plan, err := svc.UpdateSubscriptionPlan(c.Request.Context(), id, req)
		if err != nil {
			utils.DomainErrorResponse(c, err)
			return
		}

		utils.OKResponse(c, "Subscription plan updated successfully", plan)
	}
}
