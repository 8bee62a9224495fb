package students

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/gym-tenant-system/shared/events"
	"github.com/pavitra93/gym-tenant-system/shared/models"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

// DefaultReminderWindow is how far ahead of expiry a reminder goes out.
const DefaultReminderWindow = 7 * 24 * time.Hour

// SendExpiryReminders emits a membership.expiring event for each active
// student expiring within the window. A student is reminded once per
// expiry date; renewing moves the expiry and re-arms the reminder.
func (l *Lifecycle) SendExpiryReminders(ctx context.Context, within time.Duration) (int, error) {
	if within <= 0 {
		within = DefaultReminderWindow
	}
	now := l.clock.Now()
	sent := 0
	after := uuid.Nil

	for {
		var batch []models.Student
		err := utils.RetryRead(ctx, l.retries, func(ctx context.Context) error {
			var err error
			batch, err = l.store.ExpiringStudents(ctx, now, now.Add(within), after, l.batchSize)
			return err
		})
		if err != nil {
			return sent, err
		}

		for i := range batch {
			s := &batch[i]
			marked, err := l.store.MarkReminderSent(ctx, s.ID, s.Membership.ExpiryDate)
			if err != nil {
				l.log.WithField("student_id", s.ID).WithError(err).Error("Failed to record expiry reminder")
				continue
			}
			if !marked {
				continue
			}
			sent++
			l.publish(ctx, events.ForStudent(events.MembershipExpiring, s, "", now))
		}

		if len(batch) < l.batchSize {
			break
		}
		after = batch[len(batch)-1].ID
	}

	l.log.WithFields(logrus.Fields{"sent": sent, "window": within.String()}).Info("Expiry reminders processed")
	return sent, nil
}
