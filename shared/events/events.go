// Package events carries membership lifecycle events from the core to the
// notification worker.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pavitra93/gym-tenant-system/shared/models"
)

// DefaultTopic is the Kafka topic lifecycle events are written to.
const DefaultTopic = "membership-events"

type Type string

const (
	StudentCreated     Type = "student.created"
	MembershipRenewed  Type = "membership.renewed"
	StudentDeactivated Type = "student.deactivated"
	MembershipExpired  Type = "membership.expired"
	MembershipExpiring Type = "membership.expiring"
)

// Event is a lifecycle transition of one student.
type Event struct {
	ID          uuid.UUID `json:"id"`
	Type        Type      `json:"type"`
	GymID       uuid.UUID `json:"gym_id"`
	StudentID   uuid.UUID `json:"student_id"`
	StudentName string    `json:"student_name"`
	Email       string    `json:"email,omitempty"`
	PlanID      uuid.UUID `json:"plan_id"`
	PlanName    string    `json:"plan_name,omitempty"`
	ExpiryDate  time.Time `json:"expiry_date"`
	OccurredAt  time.Time `json:"occurred_at"`
	// CheckInToken is what the student's QR card encodes.
	CheckInToken uuid.UUID `json:"check_in_token"`
}

// ForStudent builds an event describing the student's current membership.
func ForStudent(t Type, s *models.Student, planName string, at time.Time) Event {
	return Event{
		ID:          uuid.New(),
		Type:        t,
		GymID:       s.GymID,
		StudentID:   s.ID,
		StudentName: s.FullName(),
		Email:       s.Email,
		PlanID:      s.Membership.PlanID,
		PlanName:    planName,
		ExpiryDate:  s.Membership.ExpiryDate,
		OccurredAt:  at,

		CheckInToken: s.CheckInToken,
	}
}

// Publisher delivers events. Publishing is best effort: callers log
// failures and never undo the transition that produced the event.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
