package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pavitra93/gym-tenant-system/shared/apperr"
	"github.com/pavitra93/gym-tenant-system/shared/limits"
	"github.com/pavitra93/gym-tenant-system/shared/models"
)

func getGym(db *gorm.DB, gymID uuid.UUID) (*models.Gym, error) {
	var gym models.Gym
	if err := db.Preload("SubscriptionPlan").Where("id = ?", gymID).First(&gym).Error; err != nil {
		return nil, notFound(err, apperr.ErrTenantNotFound)
	}
	return &gym, nil
}

// lockGym takes the gym row lock for the rest of the transaction.
func lockGym(tx *gorm.DB, gymID uuid.UUID) error {
	var gym models.Gym
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", gymID).
		First(&gym).Error
	return notFound(err, apperr.ErrTenantNotFound)
}

func countActiveStudents(db *gorm.DB, gymID uuid.UUID, now time.Time) (int64, error) {
	var n int64
	err := db.Model(&models.Student{}).
		Where("gym_id = ? AND membership_status = ? AND membership_expiry_date >= ?", gymID, models.MembershipActive, now).
		Count(&n).Error
	return n, mapError(err)
}

func (s *Store) GetGym(ctx context.Context, gymID uuid.UUID) (*models.Gym, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	return getGym(db, gymID)
}

func (s *Store) CountActiveStudents(ctx context.Context, gymID uuid.UUID, now time.Time) (int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	return countActiveStudents(db, gymID, now)
}

func (s *Store) CreateGym(ctx context.Context, gym *models.Gym) error {
	db, cancel := s.conn(ctx)
	defer cancel()
	return mapError(db.Omit(clause.Associations).Create(gym).Error)
}

func (s *Store) ListGyms(ctx context.Context, activeOnly bool, page models.PageRequest) ([]models.Gym, int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	scope := func(q *gorm.DB) *gorm.DB {
		if activeOnly {
			q = q.Where("is_active = ?", true)
		}
		return q
	}
	var total int64
	if err := db.Model(&models.Gym{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, mapError(err)
	}
	var gyms []models.Gym
	err := db.Scopes(scope).
		Preload("SubscriptionPlan").
		Order("created_at DESC").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&gyms).Error
	return gyms, total, mapError(err)
}

// ListGymIDs returns the ids of all active gyms.
func (s *Store) ListGymIDs(ctx context.Context) ([]uuid.UUID, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var ids []uuid.UUID
	err := db.Model(&models.Gym{}).Where("is_active = ?", true).Order("id").Pluck("id", &ids).Error
	return ids, mapError(err)
}

func (s *Store) UpdateGym(ctx context.Context, gymID uuid.UUID, fn func(tx limits.Source, gym *models.Gym) error) (*models.Gym, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var out *models.Gym
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := lockGym(tx, gymID); err != nil {
			return err
		}
		gym, err := getGym(tx, gymID)
		if err != nil {
			return err
		}
		if err := fn(&gymTx{db: tx}, gym); err != nil {
			return err
		}
		err = tx.Model(&models.Gym{}).Where("id = ?", gymID).Updates(map[string]interface{}{
			"name":                 gym.Name,
			"address":              gym.Address,
			"phone":                gym.Phone,
			"email":                gym.Email,
			"subscription_plan_id": gym.SubscriptionPlanID,
			"subscription_status":  gym.SubscriptionStatus,
			"timezone":             gym.Timezone,
			"currency":             gym.Currency,
			"is_active":            gym.IsActive,
		}).Error
		if err != nil {
			return mapError(err)
		}
		out, err = getGym(tx, gymID)
		return err
	})
	if err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (s *Store) CreateSubscriptionPlan(ctx context.Context, plan *models.SubscriptionPlan) error {
	db, cancel := s.conn(ctx)
	defer cancel()
	return mapError(db.Create(plan).Error)
}

func (s *Store) GetSubscriptionPlan(ctx context.Context, planID uuid.UUID) (*models.SubscriptionPlan, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var plan models.SubscriptionPlan
	if err := db.Where("id = ?", planID).First(&plan).Error; err != nil {
		return nil, notFound(err, apperr.ErrSubscriptionNotFound)
	}
	return &plan, nil
}

func (s *Store) ListSubscriptionPlans(ctx context.Context, activeOnly bool) ([]models.SubscriptionPlan, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	q := db.Order("sort_order ASC").Order("price ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var plans []models.SubscriptionPlan
	return plans, mapError(q.Find(&plans).Error)
}

func (s *Store) UpdateSubscriptionPlan(ctx context.Context, planID uuid.UUID, fn func(*models.SubscriptionPlan) error) (*models.SubscriptionPlan, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var plan models.SubscriptionPlan
	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", planID).First(&plan).Error
		if err != nil {
			return notFound(err, apperr.ErrSubscriptionNotFound)
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
