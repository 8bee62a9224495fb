package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "active"
	MembershipInactive MembershipStatus = "inactive"
	MembershipExpired  MembershipStatus = "expired"
)

func (s MembershipStatus) Valid() bool {
	switch s {
	case MembershipActive, MembershipInactive, MembershipExpired:
		return true
	}
	return false
}

// Membership is the plan assignment of a student. Price and duration are
// snapshots taken when the plan was assigned.
type Membership struct {
	PlanID       uuid.UUID        `json:"plan_id" gorm:"type:uuid;not null;index"`
	Status       MembershipStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	StartDate    time.Time        `json:"start_date" gorm:"not null"`
	ExpiryDate   time.Time        `json:"expiry_date" gorm:"not null;index"`
	LastPayment  time.Time        `json:"last_payment"`
	Price        decimal.Decimal  `json:"price" gorm:"type:numeric(12,2);not null"`
	Duration     int              `json:"duration"`
	DurationType DurationType     `json:"duration_type" gorm:"type:varchar(10)"`
}

// Student is a member of a gym
type Student struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	GymID        uuid.UUID  `json:"gym_id" gorm:"type:uuid;not null;uniqueIndex:idx_students_gym_dni,priority:1"`
	DNI          string     `json:"dni" gorm:"type:varchar(20);not null;uniqueIndex:idx_students_gym_dni,priority:2"`
	FirstName    string     `json:"first_name" gorm:"not null"`
	LastName     string     `json:"last_name" gorm:"not null"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	CheckInToken uuid.UUID  `json:"check_in_token" gorm:"type:uuid;not null;uniqueIndex:idx_students_token"`
	Membership   Membership `json:"membership" gorm:"embedded;embeddedPrefix:membership_"`
	JoinDate     time.Time  `json:"join_date" gorm:"not null"`
	LastCheckIn  *time.Time `json:"last_check_in,omitempty"`

	TotalCheckIns         int64      `json:"total_check_ins" gorm:"not null"`
	ExpiryReminderSentFor *time.Time `json:"-"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// TableName returns the table name for the Student model
func (Student) TableName() string {
	return "students"
}

// FullName joins first and last name.
func (s *Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// EffectiveStatus is the membership status as of now: an active membership
// past its expiry date reads as expired even before the sweep persists it.
func (s *Student) EffectiveStatus(now time.Time) MembershipStatus {
	if s.Membership.Status == MembershipActive && now.After(s.Membership.ExpiryDate) {
		return MembershipExpired
	}
	return s.Membership.Status
}

// IsActiveAt reports whether the membership is effectively active at now.
func (s *Student) IsActiveAt(now time.Time) bool {
	return s.EffectiveStatus(now) == MembershipActive
}

// DaysUntilExpiry is the number of whole days left, rounded down, so any
// membership already past expiry reads as negative.
func (s *Student) DaysUntilExpiry(now time.Time) int {
	return int(math.Floor(s.Membership.ExpiryDate.Sub(now).Hours() / 24))
}

// StudentView is the read model returned to clients, with the status
// evaluated against the server clock.
type StudentView struct {
	Student
	EffectiveStatus MembershipStatus `json:"effective_status"`
	DaysRemaining   int              `json:"days_remaining"`
}

func NewStudentView(s *Student, now time.Time) StudentView {
	return StudentView{
		Student:         *s,
		EffectiveStatus: s.EffectiveStatus(now),
		DaysRemaining:   s.DaysUntilExpiry(now),
	}
}
