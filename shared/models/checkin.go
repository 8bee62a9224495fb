package models

import (
	"time"

	"github.com/google/uuid"
)

type CheckInMethod string

const (
	CheckInDNI    CheckInMethod = "dni"
	CheckInQR     CheckInMethod = "qr"
	CheckInCamera CheckInMethod = "camera"
)

func (m CheckInMethod) Valid() bool {
	switch m {
	case CheckInDNI, CheckInQR, CheckInCamera:
		return true
	}
	return false
}

// CheckIn is an immutable attendance record. At most one exists per
// student and local calendar day.
type CheckIn struct {
	ID        uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	GymID     uuid.UUID     `json:"gym_id" gorm:"type:uuid;not null;index:idx_checkins_gym_time,priority:1"`
	StudentID uuid.UUID     `json:"student_id" gorm:"type:uuid;not null;uniqueIndex:idx_checkins_student_day,priority:1"`
	Method    CheckInMethod `json:"method" gorm:"type:varchar(10);not null"`
	Timestamp time.Time     `json:"timestamp" gorm:"not null;index:idx_checkins_gym_time,priority:2"`
	DayBucket string        `json:"day_bucket" gorm:"type:char(10);not null;uniqueIndex:idx_checkins_student_day,priority:2"`
	Latitude  *float64      `json:"latitude,omitempty"`
	Longitude *float64      `json:"longitude,omitempty"`
	Notes     string        `json:"notes,omitempty"`
	CreatedAt time.Time     `json:"created_at"`

	Student *Student `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

// TableName returns the table name for the CheckIn model
func (CheckIn) TableName() string {
	return "check_ins"
}

// GeoPoint is an optional location attached to a check-in.
type GeoPoint struct {
	Latitude  float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude float64 `json:"longitude" binding:"min=-180,max=180"`
}

// HourCount is the number of check-ins in one local hour of the day.
type HourCount struct {
	Hour  int   `json:"hour"`
	Count int64 `json:"count"`
}

// MethodCount is the number of check-ins made with one method.
type MethodCount struct {
	Method CheckInMethod `json:"method"`
	Count  int64         `json:"count"`
}
