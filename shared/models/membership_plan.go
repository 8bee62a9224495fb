package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type DurationType string

const (
	DurationDays   DurationType = "days"
	DurationMonths DurationType = "months"
)

func (d DurationType) Valid() bool {
	return d == DurationDays || d == DurationMonths
}

// MembershipPlan is a plan a gym sells to its students
type MembershipPlan struct {
	ID            uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	GymID         uuid.UUID       `json:"gym_id" gorm:"type:uuid;not null;uniqueIndex:idx_membership_plans_gym_name,priority:1"`
	Name          string          `json:"name" gorm:"type:varchar(100);not null;uniqueIndex:idx_membership_plans_gym_name,priority:2"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null"`
	Duration      int             `json:"duration" gorm:"not null"`
	DurationType  DurationType    `json:"duration_type" gorm:"type:varchar(10);not null"`
	Features      datatypes.JSON  `json:"features" gorm:"type:jsonb"`
	IsActive      bool            `json:"is_active" gorm:"not null"`
	StudentsCount int64           `json:"students_count" gorm:"not null"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName returns the table name for the MembershipPlan model
func (MembershipPlan) TableName() string {
	return "membership_plans"
}

// ExpiryFrom computes the expiry of a membership starting at start. Month
// durations use calendar arithmetic in start's location.
func (p *MembershipPlan) ExpiryFrom(start time.Time) time.Time {
	if p.DurationType == DurationMonths {
		return start.AddDate(0, p.Duration, 0)
	}
	return start.AddDate(0, 0, p.Duration)
}

// FeatureList decodes the feature column.
func (p *MembershipPlan) FeatureList() []string {
	if len(p.Features) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(p.Features, &out); err != nil {
		return nil
	}
	return out
}

// SetFeatures encodes features into the JSON column.
func (p *MembershipPlan) SetFeatures(features []string) {
	if features == nil {
		features = []string{}
	}
	raw, _ := json.Marshal(features)
	p.Features = datatypes.JSON(raw)
}
