// Package students owns the student entity and its membership state
// machine: create, renew, expire and deactivate.
package students

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/gym-tenant-system/shared/apperr"
	"github.com/pavitra93/gym-tenant-system/shared/clock"
	"github.com/pavitra93/gym-tenant-system/shared/events"
	"github.com/pavitra93/gym-tenant-system/shared/limits"
	"github.com/pavitra93/gym-tenant-system/shared/metrics"
	"github.com/pavitra93/gym-tenant-system/shared/models"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

const defaultBatchSize = 200

// Config wires the lifecycle's collaborators. Zero values get defaults.
type Config struct {
	Clock       clock.Clock
	Zones       *clock.Zones
	Publisher   events.Publisher
	Logger      logrus.FieldLogger
	ReadRetries int
	BatchSize   int
}

// Lifecycle runs membership transitions.
type Lifecycle struct {
	store     Store
	clock     clock.Clock
	zones     *clock.Zones
	publisher events.Publisher
	log       logrus.FieldLogger
	retries   int
	batchSize int
}

func NewLifecycle(store Store, cfg Config) *Lifecycle {
	l := &Lifecycle{
		store:     store,
		clock:     cfg.Clock,
		zones:     cfg.Zones,
		publisher: cfg.Publisher,
		log:       cfg.Logger,
		retries:   cfg.ReadRetries,
		batchSize: cfg.BatchSize,
	}
	if l.clock == nil {
		l.clock = clock.System{}
	}
	if l.zones == nil {
		l.zones = clock.UTCZones()
	}
	if l.publisher == nil {
		l.publisher = events.Nop{}
	}
	if l.log == nil {
		l.log = logrus.StandardLogger()
	}
	if l.retries < 1 {
		l.retries = utils.DefaultReadAttempts
	}
	if l.batchSize < 1 {
		l.batchSize = defaultBatchSize
	}
	return l
}

// CreateInput describes a new student.
type CreateInput struct {
	DNI       string    `json:"dni" binding:"required"`
	FirstName string    `json:"first_name" binding:"required"`
	LastName  string    `json:"last_name" binding:"required"`
	Email     string    `json:"email" binding:"omitempty,email"`
	Phone     string    `json:"phone"`
	PlanID    uuid.UUID `json:"plan_id" binding:"required"`
}

func (in *CreateInput) normalize() error {
	in.DNI = strings.TrimSpace(in.DNI)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)
	switch {
	case in.DNI == "" || len(in.DNI) > 20:
		return apperr.Invalid("dni must be between 1 and 20 characters")
	case in.FirstName == "" || in.LastName == "":
		return apperr.Invalid("first_name and last_name are required")
	case in.PlanID == uuid.Nil:
		return apperr.Invalid("plan_id is required")
	}
	return nil
}

// UpdateInput is a partial update. DNI and check-in token are immutable;
// they are accepted only so a request that tries to change them fails.
type UpdateInput struct {
	FirstName    *string    `json:"first_name"`
	LastName     *string    `json:"last_name"`
	Email        *string    `json:"email" binding:"omitempty,email"`
	Phone        *string    `json:"phone"`
	DNI          *string    `json:"dni"`
	CheckInToken *uuid.UUID `json:"check_in_token"`
	PlanID       *uuid.UUID `json:"plan_id"`
}

// CreateStudent registers a student on an active plan. The DNI check, the
// plan check, the quota check and the insert all run under the gym lock.
func (l *Lifecycle) CreateStudent(ctx context.Context, gymID uuid.UUID, in CreateInput) (*models.Student, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	var (
		student *models.Student
		plan    *models.MembershipPlan
	)
	err := l.store.WithGymLock(ctx, gymID, func(tx Tx) error {
		gym, err := tx.GetGym(ctx, gymID)
		if err != nil {
			return err
		}
		if !gym.IsActive {
			return apperr.ErrTenantInactive
		}

		exists, err := tx.DNIExists(ctx, gymID, in.DNI)
		if err != nil {
			return err
		}
		if exists {
			return apperr.ErrDuplicateDNI
		}

		plan, err = tx.FindActivePlan(ctx, gymID, in.PlanID)
		if err != nil {
			return err
		}

		if _, err := limits.NewPolicy(tx, l.clock).Check(ctx, gymID); err != nil {
			return err
		}

		now := l.clock.Now()
		s := &models.Student{
			ID:           uuid.New(),
			GymID:        gymID,
			DNI:          in.DNI,
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			Email:        in.Email,
			Phone:        in.Phone,
			CheckInToken: uuid.New(),
			Membership:   newMembership(plan, now, l.zones.Location(gym.Timezone)),
			JoinDate:     now,
		}
		if err := tx.InsertStudent(ctx, s); err != nil {
			return err
		}
		if err := tx.AdjustPlanUsage(ctx, gymID, plan.ID, 1); err != nil {
			return err
		}
		if err := tx.AdjustGymStats(ctx, gymID, models.StatsDelta{TotalStudents: 1, ActiveStudents: 1}); err != nil {
			return err
		}
		student = s
		return nil
	})
	if err != nil {
		l.logFailure(err, "create_student", logrus.Fields{"gym_id": gymID, "dni": in.DNI})
		return nil, err
	}

	metrics.RecordTransition("created")
	l.log.WithFields(logrus.Fields{
		"gym_id":     gymID,
		"student_id": student.ID,
		"plan_id":    plan.ID,
	}).Info("Student created")
	l.publish(ctx, events.ForStudent(events.StudentCreated, student, plan.Name, student.JoinDate))
	return student, nil
}

// RenewMembership starts a new membership period on planID from now.
// Reactivating an expired or inactive student re-checks the quota.
func (l *Lifecycle) RenewMembership(ctx context.Context, gymID, studentID, planID uuid.UUID) (*models.Student, error) {
	var (
		student *models.Student
		plan    *models.MembershipPlan
	)
	err := l.store.WithGymLock(ctx, gymID, func(tx Tx) error {
		gym, err := tx.GetGym(ctx, gymID)
		if err != nil {
			return err
		}
		s, err := tx.LockStudent(ctx, gymID, studentID)
		if err != nil {
			return err
		}
		p, err := tx.FindActivePlan(ctx, gymID, planID)
		if err != nil {
			return err
		}
		if err := l.assign(ctx, tx, gym, s, p); err != nil {
			return err
		}
		student, plan = s, p
		return nil
	})
	if err != nil {
		l.logFailure(err, "renew_membership", logrus.Fields{"gym_id": gymID, "student_id": studentID})
		return nil, err
	}

	metrics.RecordTransition("renewed")
	l.publish(ctx, events.ForStudent(events.MembershipRenewed, student, plan.Name, student.Membership.StartDate))
	return student, nil
}

// assign puts s on plan starting now and keeps plan usage and gym counters
// in step with the transition. Must run under the gym lock.
func (l *Lifecycle) assign(ctx context.Context, tx Tx, gym *models.Gym, s *models.Student, plan *models.MembershipPlan) error {
	if !gym.IsActive {
		return apperr.ErrTenantInactive
	}
	now := l.clock.Now()
	if !s.IsActiveAt(now) {
		if _, err := limits.NewPolicy(tx, l.clock).Check(ctx, gym.ID); err != nil {
			return err
		}
	}

	prev := s.Membership
	switch {
	case prev.Status == models.MembershipInactive:
		if err := tx.AdjustPlanUsage(ctx, gym.ID, plan.ID, 1); err != nil {
			return err
		}
	case prev.PlanID != plan.ID:
		if err := tx.AdjustPlanUsage(ctx, gym.ID, prev.PlanID, -1); err != nil {
			return err
		}
		if err := tx.AdjustPlanUsage(ctx, gym.ID, plan.ID, 1); err != nil {
			return err
		}
	}

	// counters follow the stored status, which is what the sweep decrements
	var delta models.StatsDelta
	if prev.Status != models.MembershipActive {
		delta.ActiveStudents = 1
	}
	if prev.Status == models.MembershipInactive {
		delta.TotalStudents = 1
	}

	s.Membership = newMembership(plan, now, l.zones.Location(gym.Timezone))
	if err := tx.SaveStudent(ctx, s); err != nil {
		return err
	}
	if delta.IsZero() {
		return nil
	}
	return tx.AdjustGymStats(ctx, gym.ID, delta)
}

// UpdateStudent changes contact fields. A different plan_id goes through
// the renewal path.
func (l *Lifecycle) UpdateStudent(ctx context.Context, gymID, studentID uuid.UUID, in UpdateInput) (*models.Student, error) {
	var (
		student *models.Student
		plan    *models.MembershipPlan
	)
	err := l.store.WithGymLock(ctx, gymID, func(tx Tx) error {
		s, err := tx.LockStudent(ctx, gymID, studentID)
		if err != nil {
			return err
		}
		if in.DNI != nil && strings.TrimSpace(*in.DNI) != s.DNI {
			return apperr.Invalid("dni cannot be changed")
		}
		if in.CheckInToken != nil && *in.CheckInToken != s.CheckInToken {
			return apperr.Invalid("check_in_token cannot be changed")
		}

		if in.FirstName != nil {
			if strings.TrimSpace(*in.FirstName) == "" {
				return apperr.Invalid("first_name cannot be empty")
			}
			s.FirstName = strings.TrimSpace(*in.FirstName)
		}
		if in.LastName != nil {
			if strings.TrimSpace(*in.LastName) == "" {
				return apperr.Invalid("last_name cannot be empty")
			}
			s.LastName = strings.TrimSpace(*in.LastName)
		}
		if in.Email != nil {
			s.Email = strings.TrimSpace(*in.Email)
		}
		if in.Phone != nil {
			s.Phone = *in.Phone
		}

		if in.PlanID != nil && *in.PlanID != s.Membership.PlanID {
			gym, err := tx.GetGym(ctx, gymID)
			if err != nil {
				return err
			}
			plan, err = tx.FindActivePlan(ctx, gymID, *in.PlanID)
			if err != nil {
				return err
			}
			if err := l.assign(ctx, tx, gym, s, plan); err != nil {
				return err
			}
		} else if err := tx.SaveStudent(ctx, s); err != nil {
			return err
		}
		student = s
		return nil
	})
	if err != nil {
		l.logFailure(err, "update_student", logrus.Fields{"gym_id": gymID, "student_id": studentID})
		return nil, err
	}

	if plan != nil {
		metrics.RecordTransition("renewed")
		l.publish(ctx, events.ForStudent(events.MembershipRenewed, student, plan.Name, student.Membership.StartDate))
	}
	return student, nil
}

// DeactivateStudent soft-deletes a student. Check-in history is kept and
// the DNI and token stay reserved. Deactivating an inactive student is a
// no-op.
func (l *Lifecycle) DeactivateStudent(ctx context.Context, gymID, studentID uuid.UUID) (*models.Student, error) {
	var (
		student *models.Student
		changed bool
	)
	err := l.store.WithGymLock(ctx, gymID, func(tx Tx) error {
		s, err := tx.LockStudent(ctx, gymID, studentID)
		if err != nil {
			return err
		}
		student = s
		if s.Membership.Status == models.MembershipInactive {
			return nil
		}

		delta := models.StatsDelta{TotalStudents: -1}
		if s.Membership.Status == models.MembershipActive {
			delta.ActiveStudents = -1
		}
		if err := tx.AdjustPlanUsage(ctx, gymID, s.Membership.PlanID, -1); err != nil {
			return err
		}
		s.Membership.Status = models.MembershipInactive
		if err := tx.SaveStudent(ctx, s); err != nil {
			return err
		}
		if err := tx.AdjustGymStats(ctx, gymID, delta); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		l.logFailure(err, "deactivate_student", logrus.Fields{"gym_id": gymID, "student_id": studentID})
		return nil, err
	}

	if changed {
		metrics.RecordTransition("deactivated")
		l.publish(ctx, events.ForStudent(events.StudentDeactivated, student, "", l.clock.Now()))
	}
	return student, nil
}

// DeleteStudent is the soft delete exposed over HTTP.
func (l *Lifecycle) DeleteStudent(ctx context.Context, gymID, studentID uuid.UUID) (*models.Student, error) {
	return l.DeactivateStudent(ctx, gymID, studentID)
}

func (l *Lifecycle) GetStudent(ctx context.Context, gymID, studentID uuid.UUID) (models.StudentView, error) {
	var s *models.Student
	err := utils.RetryRead(ctx, l.retries, func(ctx context.Context) error {
		var err error
		s, err = l.store.GetStudent(ctx, gymID, studentID)
		return err
	})
	if err != nil {
		return models.StudentView{}, err
	}
	return models.NewStudentView(s, l.clock.Now()), nil
}

// ListStudents pages through a gym's students, optionally filtered by
// effective status and a free-text search over name, DNI and email.
func (l *Lifecycle) ListStudents(ctx context.Context, gymID uuid.UUID, status models.MembershipStatus, search string, page models.PageRequest) (models.Page[models.StudentView], error) {
	if status != "" && !status.Valid() {
		return models.Page[models.StudentView]{}, apperr.Invalid("unknown status %q", status)
	}
	page = page.Normalize()
	now := l.clock.Now()
	filter := ListFilter{Status: status, Search: strings.TrimSpace(search), Now: now}

	var (
		items []models.Student
		total int64
	)
	err := utils.RetryRead(ctx, l.retries, func(ctx context.Context) error {
		var err error
		items, total, err = l.store.ListStudents(ctx, gymID, filter, page)
		return err
	})
	if err != nil {
		return models.Page[models.StudentView]{}, err
	}

	views := make([]models.StudentView, 0, len(items))
	for i := range items {
		views = append(views, models.NewStudentView(&items[i], now))
	}
	return models.NewPage(views, total, page), nil
}

func newMembership(plan *models.MembershipPlan, now time.Time, loc *time.Location) models.Membership {
	return models.Membership{
		PlanID:       plan.ID,
		Status:       models.MembershipActive,
		StartDate:    now,
		ExpiryDate:   plan.ExpiryFrom(now.In(loc)).UTC(),
		LastPayment:  now,
		Price:        plan.Price,
		Duration:     plan.Duration,
		DurationType: plan.DurationType,
	}
}

func (l *Lifecycle) publish(ctx context.Context, e events.Event) {
	if err := l.publisher.Publish(ctx, e); err != nil {
		l.log.WithFields(logrus.Fields{
			"event_type": e.Type,
			"student_id": e.StudentID,
		}).WithError(err).Warn("Failed to publish lifecycle event")
	}
}

func (l *Lifecycle) logFailure(err error, op string, fields logrus.Fields) {
	entry := l.log.WithFields(fields).WithField("op", op)
	switch apperr.KindOf(err) {
	case apperr.KindQuotaExceeded:
		metrics.RecordQuotaRejection()
		entry.Info(err.Error())
	case apperr.KindUnavailable, "":
		entry.WithError(err).Error("Student operation failed")
	default:
		entry.Info(err.Error())
	}
}
