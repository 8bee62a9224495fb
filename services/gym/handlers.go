package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pavitra93/gym-tenant-system/shared/analytics"
	"github.com/pavitra93/gym-tenant-system/shared/checkins"
	"github.com/pavitra93/gym-tenant-system/shared/clock"
	"github.com/pavitra93/gym-tenant-system/shared/limits"
	"github.com/pavitra93/gym-tenant-system/shared/middleware"
	"github.com/pavitra93/gym-tenant-system/shared/models"
	"github.com/pavitra93/gym-tenant-system/shared/plans"
	"github.com/pavitra93/gym-tenant-system/shared/students"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

type studentService interface {
	CreateStudent(ctx context.Context, gymID uuid.UUID, in students.CreateInput) (*models.Student, error)
	GetStudent(ctx context.Context, gymID, studentID uuid.UUID) (models.StudentView, error)
	ListStudents(ctx context.Context, gymID uuid.UUID, status models.MembershipStatus, search string, page models.PageRequest) (models.Page[models.StudentView], error)
	UpdateStudent(ctx context.Context, gymID, studentID uuid.UUID, in students.UpdateInput) (*models.Student, error)
	DeleteStudent(ctx context.Context, gymID, studentID uuid.UUID) (*models.Student, error)
	RenewMembership(ctx context.Context, gymID, studentID, planID uuid.UUID) (*models.Student, error)
	ProcessExpiredMemberships(ctx context.Context) (students.SweepResult, error)
}

type planService interface {
	CreatePlan(ctx context.Context, gymID uuid.UUID, in plans.PlanInput) (*models.MembershipPlan, error)
	GetPlan(ctx context.Context, gymID, planID uuid.UUID) (*models.MembershipPlan, error)
	ListPlans(ctx context.Context, gymID uuid.UUID, activeOnly bool, page models.PageRequest) (models.Page[models.MembershipPlan], error)
	UpdatePlan(ctx context.Context, gymID, planID uuid.UUID, patch plans.PlanPatch) (*models.MembershipPlan, error)
	RetirePlan(ctx context.Context, gymID, planID uuid.UUID) (*models.MembershipPlan, error)
	PlanStats(ctx context.Context, gymID, planID uuid.UUID) (*models.PlanStats, error)
	PopularPlans(ctx context.Context, gymID uuid.UUID, limit int) ([]models.MembershipPlan, error)
}

type checkInService interface {
	RegisterCheckIn(ctx context.Context, gymID uuid.UUID, in checkins.RegisterInput) (*models.CheckIn, error)
	ListCheckIns(ctx context.Context, gymID uuid.UUID, f checkins.Filter, page models.PageRequest) (models.Page[models.CheckIn], error)
	StudentHistory(ctx context.Context, gymID, studentID uuid.UUID, page models.PageRequest) (models.Page[models.CheckIn], error)
	GetPeakHours(ctx context.Context, gymID uuid.UUID, from, to time.Time, top int) ([]models.HourCount, error)
	CountByMethod(ctx context.Context, gymID uuid.UUID, from, to time.Time) (map[models.CheckInMethod]int64, error)
	TodayAttendance(ctx context.Context, gymID uuid.UUID) (int64, error)
}

type analyticsService interface {
	GetDashboardStats(ctx context.Context, gymID uuid.UUID) (*analytics.Rollup, error)
	Compute(ctx context.Context, gymID uuid.UUID, start, end time.Time) (*analytics.Rollup, error)
	GenerateSnapshot(ctx context.Context, gymID uuid.UUID, period models.SnapshotPeriod, at time.Time) (*models.AnalyticsSnapshot, error)
	ListSnapshots(ctx context.Context, gymID uuid.UUID, period models.SnapshotPeriod, from, to time.Time) ([]models.AnalyticsSnapshot, error)
}

type limitEvaluator interface {
	Evaluate(ctx context.Context, gymID uuid.UUID) (limits.Evaluation, error)
}

// handlers holds the domain components behind the gym routes.
type handlers struct {
	students  studentService
	plans     planService
	checkins  checkInService
	analytics analyticsService
	limits    limitEvaluator
	clock     clock.Clock
}

// gymID is safe to call behind RequireTenantAccess, which already parsed it.
func gymID(c *gin.Context) uuid.UUID {
	id, _ := middleware.TenantParam(c)
	return id
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, fmt.Sprintf("Invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

func bindPage(c *gin.Context) (models.PageRequest, bool) {
	var page models.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		utils.BadRequestResponse(c, "Invalid pagination parameters")
		return page, false
	}
	return page.Normalize(), true
}

// timeQuery reads an RFC 3339 timestamp, falling back to def when absent.
func timeQuery(c *gin.Context, key string, def time.Time) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		utils.BadRequestResponse(c, fmt.Sprintf("%s must be an RFC 3339 timestamp", key))
		return time.Time{}, false
	}
	return t, true
}

func intQuery(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		utils.BadRequestResponse(c, fmt.Sprintf("%s must be a positive integer", key))
		return 0, false
	}
	return n, true
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		utils.BadRequestResponse(c, "Invalid request format: "+err.Error())
		return false
	}
	return true
}
