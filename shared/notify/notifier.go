// Package notify delivers lifecycle events to students by email and keeps
// failed deliveries for later retries.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/pavitra93/gym-tenant-system/shared/apperr"
	"github.com/pavitra93/gym-tenant-system/shared/clock"
	"github.com/pavitra93/gym-tenant-system/shared/events"
	"github.com/pavitra93/gym-tenant-system/shared/metrics"
	"github.com/pavitra93/gym-tenant-system/shared/models"
)

const (
	DefaultMaxRetries = 8
	DefaultRetryBatch = 100
	defaultBaseDelay  = time.Minute
)

// GymLookup resolves the gym an event belongs to.
type GymLookup interface {
	GetGym(ctx context.Context, gymID uuid.UUID) (*models.Gym, error)
}

// FailureStore keeps deliveries that need another attempt.
type FailureStore interface {
	// RecordFailure stores a failed delivery once per event id.
	RecordFailure(ctx context.Context, f *models.FailedNotification) error
	DueFailures(ctx context.Context, now time.Time, limit int) ([]models.FailedNotification, error)
	SaveFailure(ctx context.Context, f *models.FailedNotification) error
	FailureStats(ctx context.Context) (map[models.NotificationStatus]int64, error)
}

type Config struct {
	Clock      clock.Clock
	Zones      *clock.Zones
	Logger     logrus.FieldLogger
	MaxRetries int
	BaseDelay  time.Duration
	BatchSize  int
}

// Notifier renders and sends lifecycle emails.
type Notifier struct {
	sender     Sender
	renderer   *Renderer
	gyms       GymLookup
	failures   FailureStore
	clock      clock.Clock
	zones      *clock.Zones
	log        logrus.FieldLogger
	maxRetries int
	baseDelay  time.Duration
	batchSize  int
}

func NewNotifier(sender Sender, renderer *Renderer, gyms GymLookup, failures FailureStore, cfg Config) *Notifier {
	n := &Notifier{
		sender:     sender,
		renderer:   renderer,
		gyms:       gyms,
		failures:   failures,
		clock:      cfg.Clock,
		zones:      cfg.Zones,
		log:        cfg.Logger,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		batchSize:  cfg.BatchSize,
	}
	if n.clock == nil {
		n.clock = clock.System{}
	}
	if n.zones == nil {
		n.zones = clock.UTCZones()
	}
	if n.log == nil {
		n.log = logrus.StandardLogger()
	}
	if n.maxRetries < 1 {
		n.maxRetries = DefaultMaxRetries
	}
	if n.baseDelay <= 0 {
		n.baseDelay = defaultBaseDelay
	}
	if n.batchSize < 1 {
		n.batchSize = DefaultRetryBatch
	}
	return n
}

// deliver sends the email for e. It reports false without error when the
// event needs no email.
func (n *Notifier) deliver(ctx context.Context, e events.Event) (bool, error) {
	if e.Email == "" || !n.renderer.Supports(e.Type) {
		return false, nil
	}
	gym, err := n.gyms.GetGym(ctx, e.GymID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !gym.IsActive || (gym.SubscriptionPlan != nil && !gym.SubscriptionPlan.Notifications) {
		return false, nil
	}
	msg, err := n.renderer.Render(e, gym.Name, n.zones.Location(gym.Timezone), n.clock.Now())
	if err != nil {
		return false, err
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return false, err
	}
	return true, nil
}

// Handle delivers one event. A failed delivery is stored for retry; the
// returned error is only set when that could not be recorded either.
func (n *Notifier) Handle(ctx context.Context, e events.Event) error {
	fields := logrus.Fields{"event_id": e.ID, "event_type": e.Type, "gym_id": e.GymID}

	sent, err := n.deliver(ctx, e)
	if err == nil {
		if sent {
			metrics.RecordNotification(string(e.Type), "sent")
			n.log.WithFields(fields).Info("Notification sent")
		} else {
			metrics.RecordNotification(string(e.Type), "skipped")
		}
		return nil
	}

	metrics.RecordNotification(string(e.Type), "failed")
	n.log.WithFields(fields).WithError(err).Warn("Notification delivery failed")

	payload, mErr := json.Marshal(e)
	if mErr != nil {
		return fmt.Errorf("failed to encode event %s: %w", e.ID, mErr)
	}
	now := n.clock.Now()
	f := &models.FailedNotification{
		ID:           uuid.New(),
		EventID:      e.ID,
		EventType:    string(e.Type),
		GymID:        e.GymID,
		Payload:      datatypes.JSON(payload),
		ErrorMessage: err.Error(),
		MaxRetries:   n.maxRetries,
		Status:       models.NotificationPending,
		NextRetryAt:  now.Add(n.baseDelay),
	}
	if IsPermanent(err) {
		f.Status = models.NotificationPermanentlyFailed
		f.ResolvedAt = &now
	}
	if rErr := n.failures.RecordFailure(ctx, f); rErr != nil {
		n.log.WithFields(fields).WithError(rErr).Error("Failed to store failed notification")
		return rErr
	}
	return nil
}

// RetryResult summarises one retry pass.
type RetryResult struct {
	Resolved          int `json:"resolved"`
	Rescheduled       int `json:"rescheduled"`
	PermanentlyFailed int `json:"permanently_failed"`
}

// backoff is 1, 2, 4, ... times the base delay for attempt 1, 2, 3, ...
func (n *Notifier) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		attempt = 16
	}
	return n.baseDelay * time.Duration(1<<(attempt-1))
}

// RetryDue re-attempts every failed delivery whose retry time has come.
func (n *Notifier) RetryDue(ctx context.Context) (RetryResult, error) {
	var res RetryResult
	now := n.clock.Now()
	due, err := n.failures.DueFailures(ctx, now, n.batchSize)
	if err != nil {
		return res, err
	}

	for i := range due {
		f := &due[i]
		var e events.Event
		if err := json.Unmarshal(f.Payload, &e); err != nil {
			n.markPermanent(f, now, fmt.Sprintf("undecodable payload: %v", err))
			res.PermanentlyFailed++
		} else if _, err := n.deliver(ctx, e); err == nil {
			f.Status = models.NotificationResolved
			f.ResolvedAt = &now
			res.Resolved++
			metrics.RecordNotification(f.EventType, "retried")
		} else {
			f.RetryCount++
			if f.RetryCount >= f.MaxRetries || IsPermanent(err) {
				n.markPermanent(f, now, fmt.Sprintf("max retries reached: %v", err))
				res.PermanentlyFailed++
			} else {
				f.ErrorMessage = err.Error()
				f.NextRetryAt = now.Add(n.backoff(f.RetryCount))
				res.Rescheduled++
			}
		}
		if err := n.failures.SaveFailure(ctx, f); err != nil {
			n.log.WithField("event_id", f.EventID).WithError(err).Error("Failed to update failed notification")
		}
	}

	if len(due) > 0 {
		n.log.WithFields(logrus.Fields{
			"resolved":           res.Resolved,
			"rescheduled":        res.Rescheduled,
			"permanently_failed": res.PermanentlyFailed,
		}).Info("Notification retry pass finished")
	}
	return res, nil
}

func (n *Notifier) markPermanent(f *models.FailedNotification, now time.Time, reason string) {
	f.Status = models.NotificationPermanentlyFailed
	f.ResolvedAt = &now
	f.ErrorMessage = reason
	metrics.RecordNotification(f.EventType, "permanently_failed")
}

// Stats counts stored failures by status.
func (n *Notifier) Stats(ctx context.Context) (map[models.NotificationStatus]int64, error) {
	return n.failures.FailureStats(ctx)
}
