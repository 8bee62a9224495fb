package main

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pavitra93/gym-tenant-system/shared/plans"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

func (h *handlers) createPlan(c *gin.Context) {
	var req plans.PlanInput
	if !bindJSON(c, &req) {
		return
	}
	plan, err := h.plans.CreatePlan(c.Request.Context(), gymID(c), req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.CreatedResponse(c, "Plan created successfully", plan)
}

func (h *handlers) listPlans(c *gin.Context) {
	page, ok := bindPage(c)
	if !ok {
		return
	}
	activeOnly := false
	if raw := c.Query("active_only"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			utils.BadRequestResponse(c, "active_only must be a boolean")
			return
		}
		activeOnly = v
	}
	result, err := h.plans.ListPlans(c.Request.Context(), gymID(c), activeOnly, page)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.OKResponse(c, "Plans retrieved successfully", result)
}

func (h *handlers) getPlan(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	plan, err := h.plans.GetPlan(c.Request.Context(), gymID(c), id)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.OKResponse(c, "Plan retrieved successfully", plan)
}

func (h *handlers) updatePlan(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req plans.PlanPatch
	if !bindJSON(c, &req) {
		return
	}
	plan, err := h.plans.UpdatePlan(c.Request.Context(), gymID(c), id, req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.OKResponse(c, "Plan updated successfully", plan)
}

func (h *handlers) retirePlan(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	plan, err := h.plans.RetirePlan(c.Request.Context(), gymID(c), id)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.OKResponse(c, "Plan retired successfully", plan)
}

func (h *handlers) planStats(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	stats, err := h.plans.PlanStats(c.Request.Context(), gymID(c), id)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.OKResponse(c, "Plan statistics retrieved successfully", stats)
}

func (h *handlers) popularPlans(c *gin.Context) {
	limit, ok := intQuery(c, "limit", plans.DefaultPopularLimit)
	if !ok {
		return
	}
	result, err := h.plans.PopularPlans(c.Request.Context(), gymID(c), limit)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.OKResponse(c, "Popular plans retrieved successfully", result)
}
