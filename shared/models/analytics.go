package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type SnapshotPeriod string

const (
	PeriodDaily   SnapshotPeriod = "daily"
	PeriodWeekly  SnapshotPeriod = "weekly"
	PeriodMonthly SnapshotPeriod = "monthly"
)

func (p SnapshotPeriod) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}

// AnalyticsSnapshot is a persisted rollup for one gym and period.
type AnalyticsSnapshot struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	GymID       uuid.UUID      `json:"gym_id" gorm:"type:uuid;not null;uniqueIndex:idx_snapshots_gym_period,priority:1"`
	Period      SnapshotPeriod `json:"period" gorm:"type:varchar(10);not null;uniqueIndex:idx_snapshots_gym_period,priority:2"`
	PeriodStart time.Time      `json:"period_start" gorm:"not null;uniqueIndex:idx_snapshots_gym_period,priority:3"`
	PeriodEnd   time.Time      `json:"period_end" gorm:"not null"`
	Data        datatypes.JSON `json:"data" gorm:"type:jsonb;not null"`
	GeneratedAt time.Time      `json:"generated_at" gorm:"not null;index"`
}

// TableName returns the table name for the AnalyticsSnapshot model
func (AnalyticsSnapshot) TableName() string {
	return "analytics_snapshots"
}

// StudentCounts are the gym's students grouped by effective status.
type StudentCounts struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Expired  int64 `json:"expired"`
	Inactive int64 `json:"inactive"`
}

// PlanRevenue is revenue from memberships started with one plan.
type PlanRevenue struct {
	PlanID   uuid.UUID       `json:"plan_id"`
	PlanName string          `json:"plan_name"`
	Students int64           `json:"students"`
	Total    decimal.Decimal `json:"total"`
}

// PlanStats summarises the students assigned to a plan.
type PlanStats struct {
	PlanID        uuid.UUID       `json:"plan_id"`
	Total         int64           `json:"total"`
	Active        int64           `json:"active"`
	Expired       int64           `json:"expired"`
	NewLast30Days int64           `json:"new_last_30_days"`
	Revenue       decimal.Decimal `json:"revenue"`
}
