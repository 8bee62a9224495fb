// Package store is the Postgres persistence of the gym backend, built on
// gorm. Every query is scoped by gym_id, and each atomic primitive the
// domain packages rely on runs in a single database transaction.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pavitra93/gym-tenant-system/shared/apperr"
	"github.com/pavitra93/gym-tenant-system/shared/models"
)

const uniqueViolation = "23505"

// DefaultTimeout bounds a store call when the caller's context has no
// deadline of its own.
const DefaultTimeout = 5 * time.Second

// Store implements the persistence interfaces of the domain packages.
type Store struct {
	db      *gorm.DB
	timeout time.Duration
	log     logrus.FieldLogger
}

type Option func(*Store)

func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, timeout: DefaultTimeout, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates or updates every table.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&models.SubscriptionPlan{},
		&models.Gym{},
		&models.MembershipPlan{},
		&models.Student{},
		&models.CheckIn{},
		&models.AnalyticsSnapshot{},
		&models.FailedNotification{},
	)
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return apperr.Unavailable(err)
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return mapError(sqlDB.PingContext(ctx))
}

// bound applies the store timeout unless ctx already carries a deadline.
func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// conn returns a session bound to ctx and a cancel func for the deadline.
func (s *Store) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := s.bound(ctx)
	return s.db.WithContext(ctx), cancel
}

var constraintErrors = map[string]*apperr.Error{
	"idx_students_gym_dni":          apperr.ErrDuplicateDNI,
	"idx_checkins_student_day":      apperr.ErrDuplicateCheckIn,
	"idx_membership_plans_gym_name": apperr.ErrDuplicateName,
	"idx_subscription_plans_name":   apperr.ErrDuplicateName,
}

// mapError turns driver errors into classified domain errors. Unique
// violations on known indexes become conflicts; anything else unclassified
// is reported as unavailable.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if sentinel, ok := constraintErrors[pgErr.ConstraintName]; ok {
			return sentinel.Wrap(err)
		}
	}
	return apperr.Unavailable(err)
}

// notFound maps gorm.ErrRecordNotFound to the given sentinel.
func notFound(err error, sentinel *apperr.Error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return mapError(err)
}
