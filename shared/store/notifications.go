package store

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/pavitra93/gym-tenant-system/shared/models"
)

// RecordFailure ignores a second failure for the same event.
func (s *Store) RecordFailure(ctx context.Context, f *models.FailedNotification) error {
	db, cancel := s.conn(ctx)
	defer cancel()
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(f).Error
	return mapError(err)
}

func (s *Store) DueFailures(ctx context.Context, now time.Time, limit int) ([]models.FailedNotification, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var out []models.FailedNotification
	err := db.Where("status = ? AND next_retry_at <= ?", models.NotificationPending, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, mapError(err)
}

func (s *Store) SaveFailure(ctx context.Context, f *models.FailedNotification) error {
	db, cancel := s.conn(ctx)
	defer cancel()
	return mapError(db.Save(f).Error)
}

type statusCount struct {
	Status models.NotificationStatus
	Count  int64
}

func (s *Store) FailureStats(ctx context.Context) (map[models.NotificationStatus]int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var rows []statusCount
	err := db.Model(&models.FailedNotification{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, mapError(err)
	}
	out := map[models.NotificationStatus]int64{
		models.NotificationPending:           0,
		models.NotificationResolved:          0,
		models.NotificationPermanentlyFailed: 0,
	}
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}
