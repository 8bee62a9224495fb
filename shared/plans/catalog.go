// Package plans owns the membership plans a gym sells and their usage
// accounting.
package plans

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/gym-tenant-system/shared/apperr"
	"github.com/pavitra93/gym-tenant-system/shared/clock"
	"github.com/pavitra93/gym-tenant-system/shared/models"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

const (
	DefaultPopularLimit = 5
	maxPopularLimit     = 50
	maxNameLength       = 100
)

// Store is the persistence the catalog needs.
type Store interface {
	GetGym(ctx context.Context, gymID uuid.UUID) (*models.Gym, error)
	// CreatePlan inserts a plan; a name collision within the gym yields
	// apperr.ErrDuplicateName.
	CreatePlan(ctx context.Context, plan *models.MembershipPlan) error
	GetPlan(ctx context.Context, gymID, planID uuid.UUID) (*models.MembershipPlan, error)
	ListPlans(ctx context.Context, gymID uuid.UUID, activeOnly bool, page models.PageRequest) ([]models.MembershipPlan, int64, error)
	// UpdatePlan locks the plan row, applies fn and saves the result in one
	// transaction. fn returning an error aborts the update.
	UpdatePlan(ctx context.Context, gymID, planID uuid.UUID, fn func(*models.MembershipPlan) error) (*models.MembershipPlan, error)
	AdjustPlanUsage(ctx context.Context, gymID, planID uuid.UUID, delta int64) error
	PlanStats(ctx context.Context, gymID, planID uuid.UUID, since time.Time, now time.Time) (*models.PlanStats, error)
	PopularPlans(ctx context.Context, gymID uuid.UUID, limit int) ([]models.MembershipPlan, error)
}

// PlanInput describes a new plan.
type PlanInput struct {
	Name         string              `json:"name" binding:"required"`
	Description  string              `json:"description"`
	Price        decimal.Decimal     `json:"price"`
	Duration     int                 `json:"duration" binding:"required"`
	DurationType models.DurationType `json:"duration_type" binding:"required"`
	Features     []string            `json:"features"`
}

func (in *PlanInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || len(in.Name) > maxNameLength {
		return apperr.Invalid("plan name must be between 1 and %d characters", maxNameLength)
	}
	return validatePricing(in.Price, in.Duration, in.DurationType)
}

func validatePricing(price decimal.Decimal, duration int, durationType models.DurationType) error {
	if price.IsNegative() {
		return apperr.Invalid("price must not be negative")
	}
	if duration < 1 {
		return apperr.Invalid("duration must be at least 1")
	}
	if !durationType.Valid() {
		return apperr.Invalid("duration_type must be 'days' or 'months'")
	}
	return nil
}

// PlanPatch is a partial update. Nil fields are left untouched.
type PlanPatch struct {
	Name         *string              `json:"name"`
	Description  *string              `json:"description"`
	Price        *decimal.Decimal     `json:"price"`
	Duration     *int                 `json:"duration"`
	DurationType *models.DurationType `json:"duration_type"`
	Features     *[]string            `json:"features"`
	IsActive     *bool                `json:"is_active"`
}

// changesPricing reports whether the patch would alter what existing
// members were charged for.
func (p PlanPatch) changesPricing(plan *models.MembershipPlan) bool {
	if p.Price != nil && !p.Price.Equal(plan.Price) {
		return true
	}
	if p.Duration != nil && *p.Duration != plan.Duration {
		return true
	}
	return p.DurationType != nil && *p.DurationType != plan.DurationType
}

func (p PlanPatch) apply(plan *models.MembershipPlan) error {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" || len(name) > maxNameLength {
			return apperr.Invalid("plan name must be between 1 and %d characters", maxNameLength)
		}
		plan.Name = name
	}
	if p.Description != nil {
		plan.Description = *p.Description
	}
	if p.Price != nil {
		plan.Price = *p.Price
	}
	if p.Duration != nil {
		plan.Duration = *p.Duration
	}
	if p.DurationType != nil {
		plan.DurationType = *p.DurationType
	}
	if p.Features != nil {
		plan.SetFeatures(*p.Features)
	}
	if p.IsActive != nil {
		plan.IsActive = *p.IsActive
	}
	return validatePricing(plan.Price, plan.Duration, plan.DurationType)
}

// Catalog manages membership plans.
type Catalog struct {
	store   Store
	clock   clock.Clock
	log     logrus.FieldLogger
	retries int
}

func NewCatalog(store Store, c clock.Clock, log logrus.FieldLogger) *Catalog {
	if c == nil {
		c = clock.System{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Catalog{store: store, clock: c, log: log, retries: utils.DefaultReadAttempts}
}

// CreatePlan adds an active plan with no students.
func (c *Catalog) CreatePlan(ctx context.Context, gymID uuid.UUID, in PlanInput) (*models.MembershipPlan, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := c.store.GetGym(ctx, gymID); err != nil {
		return nil, err
	}

	plan := &models.MembershipPlan{
		ID:           uuid.New(),
		GymID:        gymID,
		Name:         in.Name,
		Description:  in.Description,
		Price:        in.Price,
		Duration:     in.Duration,
		DurationType: in.DurationType,
		IsActive:     true,
	}
	plan.SetFeatures(in.Features)

	if err := c.store.CreatePlan(ctx, plan); err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"gym_id":  gymID,
		"plan_id": plan.ID,
		"name":    plan.Name,
	}).Info("Membership plan created")
	return plan, nil
}

// UpdatePlan applies a patch under the plan's row lock. Price and duration
// are frozen while students are assigned, and such a plan cannot be
// deactivated.
func (c *Catalog) UpdatePlan(ctx context.Context, gymID, planID uuid.UUID, patch PlanPatch) (*models.MembershipPlan, error) {
	return c.store.UpdatePlan(ctx, gymID, planID, func(plan *models.MembershipPlan) error {
		if plan.StudentsCount > 0 {
			if patch.changesPricing(plan) {
				return apperr.ErrPlanInUse.WithMessage(
					"cannot change price or duration of a plan with %d students", plan.StudentsCount)
			}
			if patch.IsActive != nil && !*patch.IsActive && plan.IsActive {
				return apperr.ErrPlanInUse.WithMessage(
					"cannot deactivate a plan with %d students", plan.StudentsCount)
			}
		}
		return patch.apply(plan)
	})
}

// RetirePlan deactivates a plan that has no students.
func (c *Catalog) RetirePlan(ctx context.Context, gymID, planID uuid.UUID) (*models.MembershipPlan, error) {
	plan, err := c.store.UpdatePlan(ctx, gymID, planID, func(plan *models.MembershipPlan) error {
		if plan.StudentsCount > 0 {
			return apperr.ErrPlanInUse.WithMessage(
				"cannot retire a plan with %d students", plan.StudentsCount)
		}
		plan.IsActive = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{"gym_id": gymID, "plan_id": planID}).Info("Membership plan retired")
	return plan, nil
}

// IncrementUsage moves a plan's student count by delta, never below zero.
func (c *Catalog) IncrementUsage(ctx context.Context, gymID, planID uuid.UUID, delta int64) error {
	if delta == 0 {
		return nil
	}
	return c.store.AdjustPlanUsage(ctx, gymID, planID, delta)
}

func (c *Catalog) GetPlan(ctx context.Context, gymID, planID uuid.UUID) (*models.MembershipPlan, error) {
	var plan *models.MembershipPlan
	err := utils.RetryRead(ctx, c.retries, func(ctx context.Context) error {
		var err error
		plan, err = c.store.GetPlan(ctx, gymID, planID)
		return err
	})
	return plan, err
}

// ListPlans returns the gym's plans ordered by price.
func (c *Catalog) ListPlans(ctx context.Context, gymID uuid.UUID, activeOnly bool, page models.PageRequest) (models.Page[models.MembershipPlan], error) {
	page = page.Normalize()
	var (
		items []models.MembershipPlan
		total int64
	)
	err := utils.RetryRead(ctx, c.retries, func(ctx context.Context) error {
		var err error
		items, total, err = c.store.ListPlans(ctx, gymID, activeOnly, page)
		return err
	})
	if err != nil {
		return models.Page[models.MembershipPlan]{}, err
	}
	return models.NewPage(items, total, page), nil
}

// PlanStats summarises the students on a plan over the last 30 days.
func (c *Catalog) PlanStats(ctx context.Context, gymID, planID uuid.UUID) (*models.PlanStats, error) {
	if _, err := c.GetPlan(ctx, gymID, planID); err != nil {
		return nil, err
	}
	now := c.clock.Now()
	var stats *models.PlanStats
	err := utils.RetryRead(ctx, c.retries, func(ctx context.Context) error {
		var err error
		stats, err = c.store.PlanStats(ctx, gymID, planID, now.AddDate(0, 0, -30), now)
		return err
	})
	return stats, err
}

// PopularPlans returns the active plans with the most students.
func (c *Catalog) PopularPlans(ctx context.Context, gymID uuid.UUID, limit int) ([]models.MembershipPlan, error) {
	if limit < 1 {
		limit = DefaultPopularLimit
	}
	if limit > maxPopularLimit {
		limit = maxPopularLimit
	}
	var out []models.MembershipPlan
	err := utils.RetryRead(ctx, c.retries, func(ctx context.Context) error {
		var err error
		out, err = c.store.PopularPlans(ctx, gymID, limit)
		return err
	})
	return out, err
}
