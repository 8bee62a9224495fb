package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pavitra93/gym-tenant-system/shared/clock"
	"github.com/pavitra93/gym-tenant-system/shared/models"
	"github.com/pavitra93/gym-tenant-system/shared/students"
)

// Default schedules, in the default timezone. The sweep schedule comes
// from configuration.
const (
	reminderRule        = "FREQ=DAILY;BYHOUR=9;BYMINUTE=0;BYSECOND=0"
	dailySnapshotRule   = "FREQ=DAILY;BYHOUR=0;BYMINUTE=15;BYSECOND=0"
	weeklySnapshotRule  = "FREQ=WEEKLY;BYDAY=MO;BYHOUR=0;BYMINUTE=30;BYSECOND=0"
	monthlySnapshotRule = "FREQ=MONTHLY;BYMONTHDAY=1;BYHOUR=0;BYMINUTE=45;BYSECOND=0"
	checkInPurgeRule    = "FREQ=DAILY;BYHOUR=3;BYMINUTE=0;BYSECOND=0"
	snapshotPurgeRule   = "FREQ=DAILY;BYHOUR=3;BYMINUTE=30;BYSECOND=0"
)

type expirer interface {
	ProcessExpiredMemberships(ctx context.Context) (students.SweepResult, error)
	SendExpiryReminders(ctx context.Context, within time.Duration) (int, error)
}

type snapshotter interface {
	GenerateClosed(ctx context.Context, period models.SnapshotPeriod, now time.Time) (int, []error)
	PurgeSnapshots(ctx context.Context, retention time.Duration) (int64, error)
}

type checkInPurger interface {
	PurgeExpired(ctx context.Context, retention time.Duration) (int64, error)
}

type jobSettings struct {
	SweepRule         string
	ReminderWindow    time.Duration
	CheckInRetention  time.Duration
	SnapshotRetention time.Duration
}

type jobSet struct {
	students  expirer
	analytics snapshotter
	checkins  checkInPurger
	clock     clock.Clock
	settings  jobSettings
	log       logrus.FieldLogger
}

func (js *jobSet) register(s *Scheduler) error {
	entries := []struct {
		name string
		rule string
		run  func(ctx context.Context) error
	}{
		{"expiry-sweep", js.settings.SweepRule, js.sweep},
		{"expiry-reminders", reminderRule, js.reminders},
		{"snapshots-daily", dailySnapshotRule, js.snapshots(models.PeriodDaily)},
		{"snapshots-weekly", weeklySnapshotRule, js.snapshots(models.PeriodWeekly)},
		{"snapshots-monthly", monthlySnapshotRule, js.snapshots(models.PeriodMonthly)},
		{"checkin-purge", checkInPurgeRule, js.purgeCheckIns},
		{"snapshot-purge", snapshotPurgeRule, js.purgeSnapshots},
	}
	for _, e := range entries {
		if err := s.Add(e.name, e.rule, e.run); err != nil {
			return err
		}
	}
	return nil
}

func (js *jobSet) sweep(ctx context.Context) error {
	result, err := js.students.ProcessExpiredMemberships(ctx)
	if err != nil {
		return err
	}
	if len(result.Failures) > 0 {
		return fmt.Errorf("expired %d memberships, %d failed", result.Affected, len(result.Failures))
	}
	return nil
}

func (js *jobSet) reminders(ctx context.Context) error {
	_, err := js.students.SendExpiryReminders(ctx, js.settings.ReminderWindow)
	return err
}

// snapshots stores the latest period each gym has closed in its own
// timezone.
func (js *jobSet) snapshots(period models.SnapshotPeriod) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		n, errs := js.analytics.GenerateClosed(ctx, period, js.clock.Now())
		js.log.WithFields(logrus.Fields{"period": period, "generated": n, "failed": len(errs)}).Info("Snapshots generated")
		if len(errs) > 0 {
			return fmt.Errorf("%d of %d %s snapshots failed: %w", len(errs), n+len(errs), period, errs[0])
		}
		return nil
	}
}

func (js *jobSet) purgeCheckIns(ctx context.Context) error {
	n, err := js.checkins.PurgeExpired(ctx, js.settings.CheckInRetention)
	if err != nil {
		return err
	}
	js.log.WithField("deleted", n).Info("Old check-ins purged")
	return nil
}

func (js *jobSet) purgeSnapshots(ctx context.Context) error {
	n, err := js.analytics.PurgeSnapshots(ctx, js.settings.SnapshotRetention)
	if err != nil {
		return err
	}
	js.log.WithField("deleted", n).Info("Old snapshots purged")
	return nil
}
