package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubscriptionPlan is the platform-level plan a gym subscribes to
type SubscriptionPlan struct {
	ID              uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	Name            string          `json:"name" gorm:"type:varchar(100);not null;uniqueIndex"`
	Price           decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null"`
	MaxStudents     *int            `json:"max_students"`
	QRAccess        bool            `json:"qr_access" gorm:"not null"`
	CameraAccess    bool            `json:"camera_access" gorm:"not null"`
	AdvancedReports bool            `json:"advanced_reports" gorm:"not null"`
	Notifications   bool            `json:"notifications" gorm:"not null"`
	Analytics       bool            `json:"analytics" gorm:"not null"`
	IsActive        bool            `json:"is_active" gorm:"not null"`
	SortOrder       int             `json:"sort_order"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName returns the table name for the SubscriptionPlan model
func (SubscriptionPlan) TableName() string {
	return "subscription_plans"
}

// AllowsMethod reports whether the plan enables a check-in method.
// DNI check-in is always available.
func (p *SubscriptionPlan) AllowsMethod(m CheckInMethod) bool {
	switch m {
	case CheckInDNI:
		return true
	case CheckInQR:
		return p.QRAccess
	case CheckInCamera:
		return p.CameraAccess
	}
	return false
}

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionSuspended SubscriptionStatus = "suspended"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Gym is a tenant of the system. Gyms are never hard-deleted.
type Gym struct {
	ID                 uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey"`
	Name               string             `json:"name" gorm:"not null"`
	Address            string             `json:"address"`
	Phone              string             `json:"phone"`
	Email              string             `json:"email"`
	SubscriptionPlanID *uuid.UUID         `json:"subscription_plan_id" gorm:"type:uuid;index"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status" gorm:"type:varchar(20);not null"`
	Timezone           string             `json:"timezone" gorm:"type:varchar(64)"`
	Currency           string             `json:"currency" gorm:"type:varchar(3)"`
	TotalStudents      int64              `json:"total_students" gorm:"not null"`
	ActiveStudents     int64              `json:"active_students" gorm:"not null"`
	TotalCheckIns      int64              `json:"total_check_ins" gorm:"not null"`
	IsActive           bool               `json:"is_active" gorm:"not null"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`

	SubscriptionPlan *SubscriptionPlan `json:"subscription_plan,omitempty" gorm:"foreignKey:SubscriptionPlanID"`
}

// TableName returns the table name for the Gym model
func (Gym) TableName() string {
	return "gyms"
}

// MaxStudents is the student quota of the gym's subscription plan; nil
// means unlimited.
func (g *Gym) MaxStudents() *int {
	if g.SubscriptionPlan == nil {
		return nil
	}
	return g.SubscriptionPlan.MaxStudents
}

// AllowsMethod reports whether the gym's subscription enables a check-in
// method. Gyms without a subscription plan are not restricted.
func (g *Gym) AllowsMethod(m CheckInMethod) bool {
	if !m.Valid() {
		return false
	}
	if g.SubscriptionPlan == nil {
		return true
	}
	return g.SubscriptionPlan.AllowsMethod(m)
}

// StatsDelta is an increment applied to a gym's aggregate counters.
type StatsDelta struct {
	TotalStudents  int64
	ActiveStudents int64
	TotalCheckIns  int64
}

func (d StatsDelta) IsZero() bool {
	return d == StatsDelta{}
}
