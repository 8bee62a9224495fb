package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pavitra93/gym-tenant-system/shared/checkins"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

const defaultPeakWindow = 30 * 24 * time.Hour

func (h *handlers) registerCheckIn(c *gin.Context) {
	var req checkins.RegisterInput
	if !bindJSON(c, &req) {
		return
	}
	ci, err := h.checkins.RegisterCheckIn(c.Request.Context(), gymID(c), req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.CreatedResponse(c, "Check-in registered successfully", ci)
}

func (h *handlers) listCheckIns(c *gin.Context) {
	page, ok := bindPage(c)
	if !ok {
		return
	}
	var f checkins.Filter
	if f.From, ok = timeQuery(c, "from", time.Time{}); !ok {
		return
	}
	if f.To, ok = timeQuery(c, "to", time.Time{}); !ok {
		return
	}
	if raw := c.Query("student_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid student_id")
			return
		}
		f.StudentID = id
	}
	result, err := h.checkins.ListCheckIns(c.Request.Context(), gymID(c), f, page)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.OKResponse(c, "Check-ins retrieved successfully", result)
}

// rangeQuery reads from/to, defaulting to the trailing window ending now.
func (h *handlers) rangeQuery(c *gin.Context, window time.Duration) (time.Time, time.Time, bool) {
	now := h.clock.Now()
	to, ok := timeQuery(c, "to", now)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	from, ok := timeQuery(c, "from", to.Add(-window))
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	if !from.Before(to) {
		utils.BadRequestResponse(c, "from must be before to")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (h *handlers) peakHours(c *gin.Context) {
	from, to, ok := h.rangeQuery(c, defaultPeakWindow)
	if !ok {
		return
	}
	top, ok := intQuery(c, "top", checkins.DefaultTopHours)
	if !ok {
		return
	}
	hours, err := h.checkins.GetPeakHours(c.Request.Context(), gymID(c), from, to, top)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.OKResponse(c, "Peak hours retrieved successfully", hours)
}

func (h *handlers) checkInsByMethod(c *gin.Context) {
	from, to, ok := h.rangeQuery(c, defaultPeakWindow)
	if !ok {
		return
	}
	counts, err := h.checkins.CountByMethod(c.Request.Context(), gymID(c), from, to)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.OKResponse(c, "Check-ins by method retrieved successfully", counts)
}

func (h *handlers) todayAttendance(c *gin.Context) {
	n, err := h.checkins.TodayAttendance(c.Request.Context(), gymID(c))
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.OKResponse(c, "Today's attendance retrieved successfully", gin.H{"count": n})
}
