package main

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pavitra93/gym-tenant-system/shared/models"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

const defaultSnapshotWindow = 90 * 24 * time.Hour

type snapshotRequest struct {
	Period models.SnapshotPeriod `json:"period" binding:"required"`
	At     *time.Time            `json:"at"`
}

func (h *handlers) dashboard(c *gin.Context) {
	stats, err := h.analytics.GetDashboardStats(c.Request.Context(), gymID(c))
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.OKResponse(c, "Dashboard statistics retrieved successfully", stats)
}

func (h *handlers) analyticsRange(c *gin.Context) {
	if c.Query("from") == "" || c.Query("to") == "" {
		utils.BadRequestResponse(c, "from and to are required")
		return
	}
	from, to, ok := h.rangeQuery(c, 0)
	if !ok {
		return
	}
	rollup, err := h.analytics.Compute(c.Request.Context(), gymID(c), from, to)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.OKResponse(c, "Analytics retrieved successfully", rollup)
}

func (h *handlers) generateSnapshot(c *gin.Context) {
	var req snapshotRequest
	if !bindJSON(c, &req) {
		return
	}
	at := h.clock.Now()
	if req.At != nil {
		at = *req.At
	}
	snap, err := h.analytics.GenerateSnapshot(c.Request.Context(), gymID(c), req.Period, at)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.CreatedResponse(c, "Snapshot generated successfully", snap)
}

func (h *handlers) listSnapshots(c *gin.Context) {
	period := models.SnapshotPeriod(c.DefaultQuery("period", string(models.PeriodDaily)))
	from, to, ok := h.rangeQuery(c, defaultSnapshotWindow)
	if !ok {
		return
	}
	snaps, err := h.analytics.ListSnapshots(c.Request.Context(), gymID(c), period, from, to)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.OKResponse(c, "Snapshots retrieved successfully", snaps)
}

func (h *handlers) tenantLimits(c *gin.Context) {
	eval, err := h.limits.Evaluate(c.Request.Context(), gymID(c))
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
