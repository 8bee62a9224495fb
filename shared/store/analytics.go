package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/pavitra93/gym-tenant-system/shared/models"
)

const studentCountsQuery = `
SELECT
	COUNT(*) FILTER (WHERE membership_status <> 'inactive') AS total,
	COUNT(*) FILTER (WHERE membership_status = 'active' AND membership_expiry_date >= @at) AS active,
	COUNT(*) FILTER (WHERE membership_status = 'expired'
		OR (membership_status = 'active' AND membership_expiry_date < @at)) AS expired,
	COUNT(*) FILTER (WHERE membership_status = 'inactive') AS inactive
FROM students
WHERE gym_id = @gym`

// CountStudentsByStatus counts students by their effective status at at.
// Total excludes deactivated students.
func (s *Store) CountStudentsByStatus(ctx context.Context, gymID uuid.UUID, at time.Time) (models.StudentCounts, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var counts models.StudentCounts
	err := db.Raw(studentCountsQuery, map[string]interface{}{"at": at, "gym": gymID}).Scan(&counts).Error
	return counts, mapError(err)
}

func (s *Store) CountStudentsJoined(ctx context.Context, gymID uuid.UUID, from, to time.Time) (int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var n int64
	err := db.Model(&models.Student{}).
		Where("gym_id = ? AND join_date >= ? AND join_date < ?", gymID, from, to).
		Count(&n).Error
	return n, mapError(err)
}

// RevenueByPlan sums the price snapshots of memberships started in
// [from, to), grouped by plan.
func (s *Store) RevenueByPlan(ctx context.Context, gymID uuid.UUID, from, to time.Time) ([]models.PlanRevenue, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var out []models.PlanRevenue
	err := db.Raw(`
SELECT s.membership_plan_id AS plan_id, p.name AS plan_name,
	COUNT(*) AS students, COALESCE(SUM(s.membership_price), 0) AS total
FROM students s
JOIN membership_plans p ON p.id = s.membership_plan_id
WHERE s.gym_id = ? AND s.membership_start_date >= ? AND s.membership_start_date < ?
GROUP BY s.membership_plan_id, p.name
ORDER BY total DESC, p.name ASC`, gymID, from, to).Scan(&out).Error
	return out, mapError(err)
}

func (s *Store) UpsertSnapshot(ctx context.Context, snap *models.AnalyticsSnapshot) error {
	db, cancel := s.conn(ctx)
	defer cancel()
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gym_id"}, {Name: "period"}, {Name: "period_start"}},
		DoUpdates: clause.AssignmentColumns([]string{"period_end", "data", "generated_at"}),
	}).Create(snap).Error
	return mapError(err)
}

func (s *Store) ListSnapshots(ctx context.Context, gymID uuid.UUID, period models.SnapshotPeriod, from, to time.Time) ([]models.AnalyticsSnapshot, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	q := db.Where("gym_id = ? AND period = ?", gymID, period)
	if !from.IsZero() {
		q = q.Where("period_start >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("period_start < ?", to)
	}
	var out []models.AnalyticsSnapshot
	return out, mapError(q.Order("period_start ASC").Find(&out).Error)
}

func (s *Store) PurgeSnapshots(ctx context.Context, before time.Time) (int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	res := db.Where("generated_at < ?", before).Delete(&models.AnalyticsSnapshot{})
	return res.RowsAffected, mapError(res.Error)
}
