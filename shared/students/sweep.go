package students

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/gym-tenant-system/shared/events"
	"github.com/pavitra93/gym-tenant-system/shared/metrics"
	"github.com/pavitra93/gym-tenant-system/shared/models"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

// SweepFailure is a student the sweep could not expire.
type SweepFailure struct {
	StudentID uuid.UUID `json:"student_id"`
	GymID     uuid.UUID `json:"gym_id"`
	Error     string    `json:"error"`
}

// SweepResult reports one run of the expiry sweep.
type SweepResult struct {
	Affected int            `json:"affected"`
	Failures []SweepFailure `json:"failures"`
}

// ProcessExpiredMemberships persists the expiry of every active
// membership past its expiry date. Each student is flipped with its own
// conditional update, so a failure does not stop the run and running the
// sweep twice changes nothing the second time.
func (l *Lifecycle) ProcessExpiredMemberships(ctx context.Context) (SweepResult, error) {
	now := l.clock.Now()
	result := SweepResult{Failures: []SweepFailure{}}
	after := uuid.Nil

	for {
		var batch []models.Student
		err := utils.RetryRead(ctx, l.retries, func(ctx context.Context) error {
			var err error
			batch, err = l.store.ExpiredActiveStudents(ctx, now, after, l.batchSize)
			return err
		})
		if err != nil {
			metrics.RecordSweep(result.Affected, len(result.Failures))
			return result, err
		}

		for i := range batch {
			s := &batch[i]
			changed, err := l.store.ExpireMembership(ctx, s.GymID, s.ID, now)
			if err != nil {
				result.Failures = append(result.Failures, SweepFailure{
					StudentID: s.ID,
					GymID:     s.GymID,
					Error:     err.Error(),
				})
				l.log.WithFields(logrus.Fields{
					"gym_id":     s.GymID,
					"student_id": s.ID,
				}).WithError(err).Error("Failed to expire membership")
				continue
			}
			if !changed {
				continue
			}
			result.Affected++
			s.Membership.Status = models.MembershipExpired
			l.publish(ctx, events.ForStudent(events.MembershipExpired, s, "", now))
		}

		if len(batch) < l.batchSize {
			break
		}
		after = batch[len(batch)-1].ID
	}

	metrics.RecordSweep(result.Affected, len(result.Failures))
	l.log.WithFields(logrus.Fields{
		"affected": result.Affected,
		"failures": len(result.Failures),
	}).Info("Expiry sweep finished")
	return result, nil
}
