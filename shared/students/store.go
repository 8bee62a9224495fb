package students

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pavitra93/gym-tenant-system/shared/limits"
	"github.com/pavitra93/gym-tenant-system/shared/models"
)

// Tx is the view of the store inside a transaction that holds the gym's
// row lock. Every read and write goes through the same transaction, so a
// quota check and the insert it guards cannot interleave with another
// mutation of the same gym.
type Tx interface {
	limits.Source

	// FindActivePlan returns a plan of the gym that is still active, or
	// apperr.ErrPlanNotFound.
	FindActivePlan(ctx context.Context, gymID, planID uuid.UUID) (*models.MembershipPlan, error)
	DNIExists(ctx context.Context, gymID uuid.UUID, dni string) (bool, error)
	// LockStudent reads a student of the gym with a row lock, or returns
	// apperr.ErrStudentNotFound.
	LockStudent(ctx context.Context, gymID, studentID uuid.UUID) (*models.Student, error)
	// InsertStudent maps a DNI collision to apperr.ErrDuplicateDNI.
	InsertStudent(ctx context.Context, s *models.Student) error
	SaveStudent(ctx context.Context, s *models.Student) error
	AdjustPlanUsage(ctx context.Context, gymID, planID uuid.UUID, delta int64) error
	AdjustGymStats(ctx context.Context, gymID uuid.UUID, delta models.StatsDelta) error
}

// ListFilter narrows a student listing. Status is matched against the
// effective status at Now.
type ListFilter struct {
	Status models.MembershipStatus
	Search string
	Now    time.Time
}

// Store is the persistence the lifecycle needs.
type Store interface {
	// WithGymLock runs fn in a transaction holding the gym row lock. An
	// error from fn rolls everything back.
	WithGymLock(ctx context.Context, gymID uuid.UUID, fn func(tx Tx) error) error

	GetStudent(ctx context.Context, gymID, studentID uuid.UUID) (*models.Student, error)
	ListStudents(ctx context.Context, gymID uuid.UUID, f ListFilter, page models.PageRequest) ([]models.Student, int64, error)

	// ExpiredActiveStudents lists students of every gym still stored as
	// active but past expiry at now, ordered by id, starting after afterID.
	ExpiredActiveStudents(ctx context.Context, now time.Time, afterID uuid.UUID, limit int) ([]models.Student, error)
	// ExpireMembership flips one student to expired only if it is still
	// active and past expiry, and decrements the gym's active counter in
	// the same transaction. It reports whether the row changed.
	ExpireMembership(ctx context.Context, gymID, studentID uuid.UUID, now time.Time) (bool, error)

	// ExpiringStudents lists effectively active students whose expiry falls
	// in [from, to) and who were not yet reminded for that expiry.
	ExpiringStudents(ctx context.Context, from, to time.Time, afterID uuid.UUID, limit int) ([]models.Student, error)
	// MarkReminderSent records the reminder for expiry unless it was
	// already recorded. It reports whether the row changed.
	MarkReminderSent(ctx context.Context, studentID uuid.UUID, expiry time.Time) (bool, error)
}
