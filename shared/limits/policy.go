// Package limits decides whether a gym is within the student quota of its
// subscription plan.
package limits

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pavitra93/gym-tenant-system/shared/apperr"
	"github.com/pavitra93/gym-tenant-system/shared/clock"
	"github.com/pavitra93/gym-tenant-system/shared/models"
)

// Source reads the live state a quota decision needs. Implementations used
// inside a mutating transaction must read through that transaction.
type Source interface {
	// GetGym returns the gym with its subscription plan loaded, or
	// apperr.ErrTenantNotFound.
	GetGym(ctx context.Context, gymID uuid.UUID) (*models.Gym, error)
	// CountActiveStudents counts students whose membership is active and
	// not yet past its expiry at now.
	CountActiveStudents(ctx context.Context, gymID uuid.UUID, now time.Time) (int64, error)
}

// Evaluation is the outcome of a quota check.
type Evaluation struct {
	CurrentActiveStudents int64 `json:"current_active_students"`
	MaxStudents           *int  `json:"max_students"`
	OverLimit             bool  `json:"over_limit"`
}

// Remaining is the number of students that can still be activated, or -1
// when the plan is unlimited.
func (e Evaluation) Remaining() int64 {
	if e.MaxStudents == nil {
		return -1
	}
	left := int64(*e.MaxStudents) - e.CurrentActiveStudents
	if left < 0 {
		return 0
	}
	return left
}

// Decide evaluates a count against a quota. A nil quota is unlimited.
func Decide(active int64, maxStudents *int) Evaluation {
	e := Evaluation{CurrentActiveStudents: active, MaxStudents: maxStudents}
	if maxStudents != nil && active >= int64(*maxStudents) {
		e.OverLimit = true
	}
	return e
}

// Exceeds reports whether active students already exceed a quota, which is
// the condition that blocks moving a gym onto a smaller plan.
func Exceeds(active int64, maxStudents *int) bool {
	return maxStudents != nil && active > int64(*maxStudents)
}

// Policy evaluates quotas against a Source.
type Policy struct {
	src   Source
	clock clock.Clock
}

func NewPolicy(src Source, c clock.Clock) *Policy {
	if c == nil {
		c = clock.System{}
	}
	return &Policy{src: src, clock: c}
}

// Evaluate recomputes the gym's active student count and compares it with
// the subscription plan quota. Cached counters are never consulted.
func (p *Policy) Evaluate(ctx context.Context, gymID uuid.UUID) (Evaluation, error) {
	gym, err := p.src.GetGym(ctx, gymID)
	if err != nil {
		return Evaluation{}, err
	}
	active, err := p.src.CountActiveStudents(ctx, gymID, p.clock.Now())
	if err != nil {
		return Evaluation{}, err
	}
	return Decide(active, gym.MaxStudents()), nil
}

// Check returns apperr.ErrQuotaExceeded when the gym cannot take another
// active student.
func (p *Policy) Check(ctx context.Context, gymID uuid.UUID) (Evaluation, error) {
	eval, err := p.Evaluate(ctx, gymID)
	if err != nil {
		return eval, err
	}
	if eval.OverLimit {
		return eval, apperr.ErrQuotaExceeded.WithMessage(
			"student limit reached: %d of %d active students", eval.CurrentActiveStudents, *eval.MaxStudents)
	}
	return eval, nil
}
