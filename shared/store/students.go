package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pavitra93/gym-tenant-system/shared/apperr"
	"github.com/pavitra93/gym-tenant-system/shared/models"
	"github.com/pavitra93/gym-tenant-system/shared/students"
)

// gymTx is the store as seen from inside a transaction that holds a gym
// row lock. Its db already carries the request context.
type gymTx struct {
	db *gorm.DB
}

func (t *gymTx) GetGym(ctx context.Context, gymID uuid.UUID) (*models.Gym, error) {
	return getGym(t.db, gymID)
}

func (t *gymTx) CountActiveStudents(ctx context.Context, gymID uuid.UUID, now time.Time) (int64, error) {
	return countActiveStudents(t.db, gymID, now)
}

func (t *gymTx) FindActivePlan(ctx context.Context, gymID, planID uuid.UUID) (*models.MembershipPlan, error) {
	var plan models.MembershipPlan
	err := t.db.Where("id = ? AND gym_id = ? AND is_active = ?", planID, gymID, true).First(&plan).Error
	if err != nil {
		return nil, notFound(err, apperr.ErrPlanNotFound)
	}
	return &plan, nil
}

func (t *gymTx) DNIExists(ctx context.Context, gymID uuid.UUID, dni string) (bool, error) {
	var n int64
	err := t.db.Model(&models.Student{}).Where("gym_id = ? AND dni = ?", gymID, dni).Count(&n).Error
	return n > 0, mapError(err)
}

func (t *gymTx) LockStudent(ctx context.Context, gymID, studentID uuid.UUID) (*models.Student, error) {
	var s models.Student
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND gym_id = ?", studentID, gymID).
		First(&s).Error
	if err != nil {
		return nil, notFound(err, apperr.ErrStudentNotFound)
	}
	return &s, nil
}

func (t *gymTx) InsertStudent(ctx context.Context, s *models.Student) error {
	return mapError(t.db.Create(s).Error)
}

func (t *gymTx) SaveStudent(ctx context.Context, s *models.Student) error {
	return mapError(t.db.Save(s).Error)
}

func (t *gymTx) AdjustPlanUsage(ctx context.Context, gymID, planID uuid.UUID, delta int64) error {
	return adjustPlanUsage(t.db, gymID, planID, delta)
}

func (t *gymTx) AdjustGymStats(ctx context.Context, gymID uuid.UUID, delta models.StatsDelta) error {
	return adjustGymStats(t.db, gymID, delta)
}

func adjustPlanUsage(db *gorm.DB, gymID, planID uuid.UUID, delta int64) error {
	if delta == 0 {
		return nil
	}
	res := db.Model(&models.MembershipPlan{}).
		Where("id = ? AND gym_id = ?", planID, gymID).
		UpdateColumn("students_count", gorm.Expr("GREATEST(students_count + ?, 0)", delta))
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrPlanNotFound
	}
	return nil
}

func adjustGymStats(db *gorm.DB, gymID uuid.UUID, delta models.StatsDelta) error {
	if delta.IsZero() {
		return nil
	}
	cols := map[string]interface{}{}
	if delta.TotalStudents != 0 {
		cols["total_students"] = gorm.Expr("GREATEST(total_students + ?, 0)", delta.TotalStudents)
	}
	if delta.ActiveStudents != 0 {
		cols["active_students"] = gorm.Expr("GREATEST(active_students + ?, 0)", delta.ActiveStudents)
	}
	if delta.TotalCheckIns != 0 {
		cols["total_check_ins"] = gorm.Expr("total_check_ins + ?", delta.TotalCheckIns)
	}
	err := db.Model(&models.Gym{}).Where("id = ?", gymID).UpdateColumns(cols).Error
	return mapError(err)
}

// WithGymLock runs fn in a transaction that first locks the gym row, so
// concurrent mutations of one gym are serialized.
func (s *Store) WithGymLock(ctx context.Context, gymID uuid.UUID, fn func(tx students.Tx) error) error {
	db, cancel := s.conn(ctx)
	defer cancel()
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := lockGym(tx, gymID); err != nil {
			return err
		}
		return fn(&gymTx{db: tx})
	})
	return mapError(err)
}

func (s *Store) GetStudent(ctx context.Context, gymID, studentID uuid.UUID) (*models.Student, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var st models.Student
	if err := db.Where("id = ? AND gym_id = ?", studentID, gymID).First(&st).Error; err != nil {
		return nil, notFound(err, apperr.ErrStudentNotFound)
	}
	return &st, nil
}

// escapeLike escapes the LIKE wildcards of a user supplied search term.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *Store) ListStudents(ctx context.Context, gymID uuid.UUID, f students.ListFilter, page models.PageRequest) ([]models.Student, int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	now := f.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	scope := func(q *gorm.DB) *gorm.DB {
		q = q.Where("gym_id = ?", gymID)
		switch f.Status {
		case models.MembershipActive:
			q = q.Where("membership_status = ? AND membership_expiry_date >= ?", models.MembershipActive, now)
		case models.MembershipExpired:
			q = q.Where("(membership_status = ? OR (membership_status = ? AND membership_expiry_date < ?))",
				models.MembershipExpired, models.MembershipActive, now)
		case models.MembershipInactive:
			q = q.Where("membership_status = ?", models.MembershipInactive)
		}
		if term := strings.TrimSpace(f.Search); term != "" {
			like := "%" + escapeLike(term) + "%"
			q = q.Where("(first_name ILIKE ? OR last_name ILIKE ? OR dni ILIKE ? OR email ILIKE ?)", like, like, like, like)
		}
		return q
	}

	var total int64
	if err := db.Model(&models.Student{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, mapError(err)
	}
	var out []models.Student
	err := db.Scopes(scope).
		Order("last_name ASC").
		Order("first_name ASC").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&out).Error
	return out, total, mapError(err)
}

func (s *Store) ExpiredActiveStudents(ctx context.Context, now time.Time, afterID uuid.UUID, limit int) ([]models.Student, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var out []models.Student
	err := db.Where("membership_status = ? AND membership_expiry_date < ? AND id > ?", models.MembershipActive, now, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, mapError(err)
}

// ExpireMembership is conditional on the row still being active and past
// expiry, so a concurrent renewal or a second sweep leaves it alone. The
// gym row is locked before the student row is touched.
func (s *Store) ExpireMembership(ctx context.Context, gymID, studentID uuid.UUID, now time.Time) (bool, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	changed := false
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := lockGym(tx, gymID); err != nil {
			return err
		}
		res := tx.Model(&models.Student{}).
			Where("id = ? AND gym_id = ? AND membership_status = ? AND membership_expiry_date < ?",
				studentID, gymID, models.MembershipActive, now).
			Update("membership_status", models.MembershipExpired)
		if res.Error != nil {
			return mapError(res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true
		return adjustGymStats(tx, gymID, models.StatsDelta{ActiveStudents: -1})
	})
	if err != nil {
		return false, mapError(err)
	}
	return changed, nil
}

func (s *Store) ExpiringStudents(ctx context.Context, from, to time.Time, afterID uuid.UUID, limit int) ([]models.Student, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var out []models.Student
	err := db.Where("membership_status = ? AND membership_expiry_date >= ? AND membership_expiry_date < ?", models.MembershipActive, from, to).
		Where("(expiry_reminder_sent_for IS NULL OR expiry_reminder_sent_for <> membership_expiry_date)").
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, mapError(err)
}

func (s *Store) MarkReminderSent(ctx context.Context, studentID uuid.UUID, expiry time.Time) (bool, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	res := db.Model(&models.Student{}).
		Where("id = ? AND (expiry_reminder_sent_for IS NULL OR expiry_reminder_sent_for <> ?)", studentID, expiry).
		UpdateColumn("expiry_reminder_sent_for", expiry)
	if res.Error != nil {
		return false, mapError(res.Error)
	}
	return res.RowsAffected > 0, nil
}
