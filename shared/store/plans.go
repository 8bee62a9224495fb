package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pavitra93/gym-tenant-system/shared/apperr"
	"github.com/pavitra93/gym-tenant-system/shared/models"
)

func (s *Store) CreatePlan(ctx context.Context, plan *models.MembershipPlan) error {
	db, cancel := s.conn(ctx)
	defer cancel()
	return mapError(db.Create(plan).Error)
}

func (s *Store) GetPlan(ctx context.Context, gymID, planID uuid.UUID) (*models.MembershipPlan, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var plan models.MembershipPlan
	if err := db.Where("id = ? AND gym_id = ?", planID, gymID).First(&plan).Error; err != nil {
		return nil, notFound(err, apperr.ErrPlanNotFound)
	}
	return &plan, nil
}

func (s *Store) ListPlans(ctx context.Context, gymID uuid.UUID, activeOnly bool, page models.PageRequest) ([]models.MembershipPlan, int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	scope := func(q *gorm.DB) *gorm.DB {
		q = q.Where("gym_id = ?", gymID)
		if activeOnly {
			q = q.Where("is_active = ?", true)
		}
		return q
	}
	var total int64
	if err := db.Model(&models.MembershipPlan{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, mapError(err)
	}
	var plans []models.MembershipPlan
	err := db.Scopes(scope).
		Order("price ASC").
		Order("name ASC").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&plans).Error
	return plans, total, mapError(err)
}

// UpdatePlan holds the plan row lock while fn decides, so an edit cannot
// race a usage change that would make it illegal.
func (s *Store) UpdatePlan(ctx context.Context, gymID, planID uuid.UUID, fn func(*models.MembershipPlan) error) (*models.MembershipPlan, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var plan models.MembershipPlan
	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND gym_id = ?", planID, gymID).
			First(&plan).Error
		if err != nil {
			return notFound(err, apperr.ErrPlanNotFound)
		}
		if err := fn(&plan); err != nil {
			return err
		}
		return mapError(tx.Save(&plan).Error)
	})
	if err != nil {
		return nil, mapError(err)
	}
	return &plan, nil
}

func (s *Store) AdjustPlanUsage(ctx context.Context, gymID, planID uuid.UUID, delta int64) error {
	db, cancel := s.conn(ctx)
	defer cancel()
	return adjustPlanUsage(db, gymID, planID, delta)
}

type planStatsRow struct {
	Total   int64
	Active  int64
	Expired int64
	Recent  int64
	Revenue decimal.Decimal
}

const planStatsQuery = `
SELECT
	COUNT(*) AS total,
	COUNT(*) FILTER (WHERE membership_status = 'active' AND membership_expiry_date >= @now) AS active,
	COUNT(*) FILTER (WHERE membership_status = 'expired'
		OR (membership_status = 'active' AND membership_expiry_date < @now)) AS expired,
	COUNT(*) FILTER (WHERE join_date >= @since) AS recent,
	COALESCE(SUM(membership_price), 0) AS revenue
FROM students
WHERE gym_id = @gym AND membership_plan_id = @plan`

func (s *Store) PlanStats(ctx context.Context, gymID, planID uuid.UUID, since time.Time, now time.Time) (*models.PlanStats, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var row planStatsRow
	err := db.Raw(planStatsQuery, map[string]interface{}{
		"now":   now,
		"since": since,
		"gym":   gymID,
		"plan":  planID,
	}).Scan(&row).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &models.PlanStats{
		PlanID:        planID,
		Total:         row.Total,
		Active:        row.Active,
		Expired:       row.Expired,
		NewLast30Days: row.Recent,
		Revenue:       row.Revenue,
	}, nil
}

func (s *Store) PopularPlans(ctx context.Context, gymID uuid.UUID, limit int) ([]models.MembershipPlan, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var plans []models.MembershipPlan
	err := db.Where("gym_id = ? AND is_active = ?", gymID, true).
		Order("students_count DESC").
		Order("name ASC").
		Limit(limit).
		Find(&plans).Error
	return plans, mapError(err)
}
