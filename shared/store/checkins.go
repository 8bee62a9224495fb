package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pavitra93/gym-tenant-system/shared/apperr"
	"github.com/pavitra93/gym-tenant-system/shared/checkins"
	"github.com/pavitra93/gym-tenant-system/shared/models"
)

func (s *Store) FindStudentByDNI(ctx context.Context, gymID uuid.UUID, dni string) (*models.Student, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var st models.Student
	if err := db.Where("gym_id = ? AND dni = ?", gymID, dni).First(&st).Error; err != nil {
		return nil, notFound(err, apperr.ErrStudentNotFound)
	}
	return &st, nil
}

func (s *Store) FindStudentByToken(ctx context.Context, gymID, token uuid.UUID) (*models.Student, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var st models.Student
	if err := db.Where("gym_id = ? AND check_in_token = ?", gymID, token).First(&st).Error; err != nil {
		return nil, notFound(err, apperr.ErrStudentNotFound)
	}
	return &st, nil
}

func (s *Store) TokenOwner(ctx context.Context, token uuid.UUID) (uuid.UUID, bool, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var ids []uuid.UUID
	err := db.Model(&models.Student{}).Where("check_in_token = ?", token).Limit(1).Pluck("gym_id", &ids).Error
	if err != nil {
		return uuid.Nil, false, mapError(err)
	}
	if len(ids) == 0 {
		return uuid.Nil, false, nil
	}
	return ids[0], true, nil
}

// RecordCheckIn inserts the check-in and bumps the counters in one
// transaction holding the gym row lock and then the student row lock, the
// same order WithGymLock callers use. The unique index on
// (student_id, day_bucket) is the final word on duplicates.
func (s *Store) RecordCheckIn(ctx context.Context, gymID, studentID uuid.UUID, build func(*models.Student) (*models.CheckIn, error)) (*models.CheckIn, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var out *models.CheckIn
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := lockGym(tx, gymID); err != nil {
			return err
		}
		var st models.Student
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND gym_id = ?", studentID, gymID).
			First(&st).Error
		if err != nil {
			return notFound(err, apperr.ErrStudentNotFound)
		}

		ci, err := build(&st)
		if err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(ci).Error; err != nil {
			return mapError(err)
		}

		err = tx.Model(&models.Student{}).Where("id = ?", st.ID).UpdateColumns(map[string]interface{}{
			"total_check_ins": gorm.Expr("total_check_ins + 1"),
			"last_check_in":   ci.Timestamp,
		}).Error
		if err != nil {
			return mapError(err)
		}
		if err := adjustGymStats(tx, gymID, models.StatsDelta{TotalCheckIns: 1}); err != nil {
			return err
		}
		out = ci
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (s *Store) ListCheckIns(ctx context.Context, gymID uuid.UUID, f checkins.Filter, page models.PageRequest) ([]models.CheckIn, int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	scope := func(q *gorm.DB) *gorm.DB {
		q = q.Where("gym_id = ?", gymID)
		if !f.From.IsZero() {
			q = q.Where(`"timestamp" >= ?`, f.From)
		}
		if !f.To.IsZero() {
			q = q.Where(`"timestamp" < ?`, f.To)
		}
		if f.StudentID != uuid.Nil {
			q = q.Where("student_id = ?", f.StudentID)
		}
		return q
	}
	var total int64
	if err := db.Model(&models.CheckIn{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, mapError(err)
	}
	var out []models.CheckIn
	err := db.Scopes(scope).
		Order(`"timestamp" DESC`).
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&out).Error
	return out, total, mapError(err)
}

// CountCheckInsByHour groups by the hour of day in the given timezone.
func (s *Store) CountCheckInsByHour(ctx context.Context, gymID uuid.UUID, from, to time.Time, timezone string) ([]models.HourCount, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var out []models.HourCount
	err := db.Raw(`
SELECT EXTRACT(HOUR FROM check_ins."timestamp" AT TIME ZONE ?)::int AS hour, COUNT(*) AS count
FROM check_ins
WHERE gym_id = ? AND "timestamp" >= ? AND "timestamp" < ?
GROUP BY 1
ORDER BY 1`, timezone, gymID, from, to).Scan(&out).Error
	return out, mapError(err)
}

func (s *Store) CountCheckInsByMethod(ctx context.Context, gymID uuid.UUID, from, to time.Time) ([]models.MethodCount, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var out []models.MethodCount
	err := db.Model(&models.CheckIn{}).
		Select("method, COUNT(*) AS count").
		Where(`gym_id = ? AND "timestamp" >= ? AND "timestamp" < ?`, gymID, from, to).
		Group("method").
		Scan(&out).Error
	return out, mapError(err)
}

func (s *Store) CountCheckInsOnDay(ctx context.Context, gymID uuid.UUID, day string) (int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var n int64
	err := db.Model(&models.CheckIn{}).Where("gym_id = ? AND day_bucket = ?", gymID, day).Count(&n).Error
	return n, mapError(err)
}

func (s *Store) PurgeCheckIns(ctx context.Context, before time.Time) (int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	res := db.Where(`"timestamp" < ?`, before).Delete(&models.CheckIn{})
	return res.RowsAffected, mapError(res.Error)
}
