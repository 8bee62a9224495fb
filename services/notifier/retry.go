package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pavitra93/gym-tenant-system/shared/notify"
)

type retrier interface {
	RetryDue(ctx context.Context) (notify.RetryResult, error)
}

// retryLoop re-attempts stored failures every interval until ctx is done.
type retryLoop struct {
	notifier retrier
	interval time.Duration
	log      logrus.FieldLogger
}

func (l *retryLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.pass(ctx)
		}
	}
}

func (l *retryLoop) pass(ctx context.Context) {
	result, err := l.notifier.RetryDue(ctx)
	if err != nil {
		l.log.WithError(err).Error("Error fetching failed notifications")
		return
	}
	if result.Resolved+result.Rescheduled+result.PermanentlyFailed == 0 {
		return
	}
	l.log.WithFields(logrus.Fields{
		"resolved":           result.Resolved,
		"rescheduled":        result.Rescheduled,
		"permanently_failed": result.PermanentlyFailed,
	}).Info("Processed failed notifications")
}
