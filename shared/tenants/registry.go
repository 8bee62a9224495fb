// Package tenants handles gym onboarding and the platform subscription
// plans gyms subscribe to.
package tenants

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/gym-tenant-system/shared/apperr"
	"github.com/pavitra93/gym-tenant-system/shared/clock"
	"github.com/pavitra93/gym-tenant-system/shared/limits"
	"github.com/pavitra93/gym-tenant-system/shared/models"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

// Store persists gyms and subscription plans.
type Store interface {
	limits.Source

	CreateGym(ctx context.Context, gym *models.Gym) error
	ListGyms(ctx context.Context, activeOnly bool, page models.PageRequest) ([]models.Gym, int64, error)
	// UpdateGym locks the gym row, applies fn and saves the result. Reads
	// made through the limits.Source handed to fn see the locked state.
	UpdateGym(ctx context.Context, gymID uuid.UUID, fn func(tx limits.Source, gym *models.Gym) error) (*models.Gym, error)

	CreateSubscriptionPlan(ctx context.Context, plan *models.SubscriptionPlan) error
	GetSubscriptionPlan(ctx context.Context, planID uuid.UUID) (*models.SubscriptionPlan, error)
	ListSubscriptionPlans(ctx context.Context, activeOnly bool) ([]models.SubscriptionPlan, error)
	UpdateSubscriptionPlan(ctx context.Context, planID uuid.UUID, fn func(*models.SubscriptionPlan) error) (*models.SubscriptionPlan, error)
}

type GymInput struct {
	Name               string     `json:"name" binding:"required"`
	Address            string     `json:"address"`
	Phone              string     `json:"phone"`
	Email              string     `json:"email"`
	SubscriptionPlanID *uuid.UUID `json:"subscription_plan_id"`
	Timezone           string     `json:"timezone"`
	Currency           string     `json:"currency"`
}

type GymPatch struct {
	Name     *string `json:"name"`
	Address  *string `json:"address"`
	Phone    *string `json:"phone"`
	Email    *string `json:"email"`
	Timezone *string `json:"timezone"`
	Currency *string `json:"currency"`
}

type SubscriptionPlanInput struct {
	Name            string          `json:"name" binding:"required"`
	Price           decimal.Decimal `json:"price"`
	MaxStudents     *int            `json:"max_students"`
	QRAccess        bool            `json:"qr_access"`
	CameraAccess    bool            `json:"camera_access"`
	AdvancedReports bool            `json:"advanced_reports"`
	Notifications   bool            `json:"notifications"`
	Analytics       bool            `json:"analytics"`
	SortOrder       int             `json:"sort_order"`
}

type SubscriptionPlanPatch struct {
	Price           *decimal.Decimal `json:"price"`
	MaxStudents     *int             `json:"max_students"`
	Unlimited       bool             `json:"unlimited"`
	QRAccess        *bool            `json:"qr_access"`
	CameraAccess    *bool            `json:"camera_access"`
	AdvancedReports *bool            `json:"advanced_reports"`
	Notifications   *bool            `json:"notifications"`
	Analytics       *bool            `json:"analytics"`
	IsActive        *bool            `json:"is_active"`
	SortOrder       *int             `json:"sort_order"`
}

const defaultCurrency = "ARS"

// Registry manages gyms and subscription plans.
type Registry struct {
	store   Store
	policy  *limits.Policy
	clock   clock.Clock
	zones   *clock.Zones
	log     logrus.FieldLogger
	retries int
}

func NewRegistry(store Store, c clock.Clock, zones *clock.Zones, log logrus.FieldLogger) *Registry {
	if c == nil {
		c = clock.System{}
	}
	if zones == nil {
		zones = clock.UTCZones()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		store:   store,
		policy:  limits.NewPolicy(store, c),
		clock:   c,
		zones:   zones,
		log:     log,
		retries: utils.DefaultReadAttempts,
	}
}

func validTimezone(tz string) error {
	if !clock.Valid(tz) {
		return apperr.Invalid("unknown timezone %q", tz)
	}
	return nil
}

func validCurrency(cur string) error {
	if len(cur) != 3 {
		return apperr.Invalid("currency must be a 3-letter code")
	}
	return nil
}

// CreateGym onboards a gym. The timezone defaults to the configured one.
func (r *Registry) CreateGym(ctx context.Context, in GymInput) (*models.Gym, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Invalid("gym name is required")
	}
	tz := strings.TrimSpace(in.Timezone)
	if tz == "" {
		tz = r.zones.Fallback().String()
	}
	if err := validTimezone(tz); err != nil {
		return nil, err
	}
	cur := strings.ToUpper(strings.TrimSpace(in.Currency))
	if cur == "" {
		cur = defaultCurrency
	}
	if err := validCurrency(cur); err != nil {
		return nil, err
	}

	gym := &models.Gym{
		ID:                 uuid.New(),
		Name:               name,
		Address:            in.Address,
		Phone:              in.Phone,
		Email:              in.Email,
		SubscriptionStatus: models.SubscriptionActive,
		Timezone:           tz,
		Currency:           cur,
		IsActive:           true,
	}
	if in.SubscriptionPlanID != nil {
		plan, err := r.store.GetSubscriptionPlan(ctx, *in.SubscriptionPlanID)
		if err != nil {
			return nil, err
		}
		if !plan.IsActive {
			return nil, apperr.ErrSubscriptionNotFound
		}
		gym.SubscriptionPlanID = &plan.ID
		gym.SubscriptionPlan = plan
	}

	if err := r.store.CreateGym(ctx, gym); err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{"gym_id": gym.ID, "timezone": tz}).Info("Gym created")
	return gym, nil
}

func (r *Registry) GetGym(ctx context.Context, gymID uuid.UUID) (*models.Gym, error) {
	var gym *models.Gym
	err := utils.RetryRead(ctx, r.retries, func(ctx context.Context) error {
		var err error
		gym, err = r.store.GetGym(ctx, gymID)
		return err
	})
	return gym, err
}

func (r *Registry) ListGyms(ctx context.Context, activeOnly bool, page models.PageRequest) (models.Page[models.Gym], error) {
	page = page.Normalize()
	var (
		gyms  []models.Gym
		total int64
	)
	err := utils.RetryRead(ctx, r.retries, func(ctx context.Context) error {
		var err error
		gyms, total, err = r.store.ListGyms(ctx, activeOnly, page)
		return err
	})
	if err != nil {
		return models.Page[models.Gym]{}, err
	}
	return models.NewPage(gyms, total, page), nil
}

// UpdateGym changes a gym's profile.
func (r *Registry) UpdateGym(ctx context.Context, gymID uuid.UUID, p GymPatch) (*models.Gym, error) {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return nil, apperr.Invalid("gym name must not be empty")
	}
	if p.Timezone != nil {
		if err := validTimezone(*p.Timezone); err != nil {
			return nil, err
		}
	}
	if p.Currency != nil {
		if err := validCurrency(*p.Currency); err != nil {
			return nil, err
		}
	}
	return r.store.UpdateGym(ctx, gymID, func(_ limits.Source, g *models.Gym) error {
		if p.Name != nil {
			g.Name = strings.TrimSpace(*p.Name)
		}
		if p.Address != nil {
			g.Address = *p.Address
		}
		if p.Phone != nil {
			g.Phone = *p.Phone
		}
		if p.Email != nil {
			g.Email = *p.Email
		}
		if p.Timezone != nil {
			g.Timezone = *p.Timezone
		}
		if p.Currency != nil {
			g.Currency = strings.ToUpper(*p.Currency)
		}
		return nil
	})
}

// ChangeSubscription moves a gym onto another subscription plan. The move
// is refused while the gym has more active students than the new plan
// allows.
func (r *Registry) ChangeSubscription(ctx context.Context, gymID, planID uuid.UUID) (*models.Gym, error) {
	plan, err := r.store.GetSubscriptionPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, apperr.ErrSubscriptionNotFound
	}

	gym, err := r.store.UpdateGym(ctx, gymID, func(tx limits.Source, g *models.Gym) error {
		active, err := tx.CountActiveStudents(ctx, gymID, r.clock.Now())
		if err != nil {
			return err
		}
		if limits.Exceeds(active, plan.MaxStudents) {
			return apperr.ErrQuotaExceeded.WithMessage(
				"gym has %d active students, plan %s allows %d", active, plan.Name, *plan.MaxStudents)
		}
		g.SubscriptionPlanID = &plan.ID
		g.SubscriptionPlan = plan
		g.SubscriptionStatus = models.SubscriptionActive
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindQuotaExceeded {
			r.log.WithFields(logrus.Fields{"gym_id": gymID, "plan_id": planID}).Info("Subscription change rejected by quota")
		}
		return nil, err
	}
	r.log.WithFields(logrus.Fields{"gym_id": gymID, "plan_id": planID}).Info("Subscription changed")
	return gym, nil
}

// DeactivateGym soft-deletes a gym. Its data is kept.
func (r *Registry) DeactivateGym(ctx context.Context, gymID uuid.UUID) (*models.Gym, error) {
	gym, err := r.store.UpdateGym(ctx, gymID, func(_ limits.Source, g *models.Gym) error {
		g.IsActive = false
		g.SubscriptionStatus = models.SubscriptionCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.WithField("gym_id", gymID).Info("Gym deactivated")
	return gym, nil
}

// Limits evaluates the gym's student quota.
func (r *Registry) Limits(ctx context.Context, gymID uuid.UUID) (limits.Evaluation, error) {
	var eval limits.Evaluation
	err := utils.RetryRead(ctx, r.retries, func(ctx context.Context) error {
		var err error
		eval, err = r.policy.Evaluate(ctx, gymID)
		return err
	})
	return eval, err
}

func (r *Registry) CreateSubscriptionPlan(ctx context.Context, in SubscriptionPlanInput) (*models.SubscriptionPlan, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Invalid("plan name is required")
	}
	if in.Price.IsNegative() {
		return nil, apperr.Invalid("price must not be negative")
	}
	if in.MaxStudents != nil && *in.MaxStudents < 1 {
		return nil, apperr.Invalid("max_students must be at least 1 or omitted")
	}
	plan := &models.SubscriptionPlan{
		ID:              uuid.New(),
		Name:            name,
		Price:           in.Price,
		MaxStudents:     in.MaxStudents,
		QRAccess:        in.QRAccess,
		CameraAccess:    in.CameraAccess,
		AdvancedReports: in.AdvancedReports,
		Notifications:   in.Notifications,
		Analytics:       in.Analytics,
		IsActive:        true,
		SortOrder:       in.SortOrder,
	}
	if err := r.store.CreateSubscriptionPlan(ctx, plan); err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{"plan_id": plan.ID, "name": plan.Name}).Info("Subscription plan created")
	return plan, nil
}

func (r *Registry) GetSubscriptionPlan(ctx context.Context, planID uuid.UUID) (*models.SubscriptionPlan, error) {
	var plan *models.SubscriptionPlan
	err := utils.RetryRead(ctx, r.retries, func(ctx context.Context) error {
		var err error
		plan, err = r.store.GetSubscriptionPlan(ctx, planID)
		return err
	})
	return plan, err
}

func (r *Registry) ListSubscriptionPlans(ctx context.Context, activeOnly bool) ([]models.SubscriptionPlan, error) {
	var out []models.SubscriptionPlan
	err := utils.RetryRead(ctx, r.retries, func(ctx context.Context) error {
		var err error
		out, err = r.store.ListSubscriptionPlans(ctx, activeOnly)
		return err
	})
	if out == nil {
		out = []models.SubscriptionPlan{}
	}
	return out, err
}

// UpdateSubscriptionPlan edits a subscription plan. Lowering a quota does
// not evict students; it only blocks new activations.
func (r *Registry) UpdateSubscriptionPlan(ctx context.Context, planID uuid.UUID, p SubscriptionPlanPatch) (*models.SubscriptionPlan, error) {
	if p.Price != nil && p.Price.IsNegative() {
		return nil, apperr.Invalid("price must not be negative")
	}
	if p.MaxStudents != nil && *p.MaxStudents < 1 {
		return nil, apperr.Invalid("max_students must be at least 1")
	}
	if p.MaxStudents != nil && p.Unlimited {
		return nil, apperr.Invalid("max_students and unlimited are exclusive")
	}
	return r.store.UpdateSubscriptionPlan(ctx, planID, func(plan *models.SubscriptionPlan) error {
		if p.Price != nil {
			plan.Price = *p.Price
		}
		if p.MaxStudents != nil {
			plan.MaxStudents = p.MaxStudents
		}
		if p.Unlimited {
			plan.MaxStudents = nil
		}
		if p.QRAccess != nil {
			plan.QRAccess = *p.QRAccess
		}
		if p.CameraAccess != nil {
			plan.CameraAccess = *p.CameraAccess
		}
		if p.AdvancedReports != nil {
			plan.AdvancedReports = *p.AdvancedReports
		}
		if p.Notifications != nil {
			plan.Notifications = *p.Notifications
		}
		if p.Analytics != nil {
			plan.Analytics = *p.Analytics
		}
		if p.IsActive != nil {
			plan.IsActive = *p.IsActive
		}
		if p.SortOrder != nil {
			plan.SortOrder = *p.SortOrder
		}
		return nil
	})
}
