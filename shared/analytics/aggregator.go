// Package analytics derives read-only rollups of attendance, students and
// revenue. It never mutates students, check-ins or plans.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/pavitra93/gym-tenant-system/shared/apperr"
	"github.com/pavitra93/gym-tenant-system/shared/clock"
	"github.com/pavitra93/gym-tenant-system/shared/metrics"
	"github.com/pavitra93/gym-tenant-system/shared/models"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

const (
	DefaultDashboardTTL      = 2 * time.Minute
	DefaultSnapshotRetention = 365 * 24 * time.Hour
)

// Store is the read side the aggregator needs, plus snapshot storage.
type Store interface {
	GetGym(ctx context.Context, gymID uuid.UUID) (*models.Gym, error)
	ListGymIDs(ctx context.Context) ([]uuid.UUID, error)
	CountCheckInsByMethod(ctx context.Context, gymID uuid.UUID, from, to time.Time) ([]models.MethodCount, error)
	CountCheckInsByHour(ctx context.Context, gymID uuid.UUID, from, to time.Time, timezone string) ([]models.HourCount, error)
	CountStudentsByStatus(ctx context.Context, gymID uuid.UUID, at time.Time) (models.StudentCounts, error)
	CountStudentsJoined(ctx context.Context, gymID uuid.UUID, from, to time.Time) (int64, error)
	RevenueByPlan(ctx context.Context, gymID uuid.UUID, from, to time.Time) ([]models.PlanRevenue, error)

	// UpsertSnapshot replaces the snapshot for (gym, period, period start).
	UpsertSnapshot(ctx context.Context, snap *models.AnalyticsSnapshot) error
	ListSnapshots(ctx context.Context, gymID uuid.UUID, period models.SnapshotPeriod, from, to time.Time) ([]models.AnalyticsSnapshot, error)
	PurgeSnapshots(ctx context.Context, before time.Time) (int64, error)
}

// Cache is a JSON read-through cache.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type CheckInStats struct {
	Total    int64                          `json:"total"`
	ByMethod map[models.CheckInMethod]int64 `json:"by_method"`
	ByHour   [24]int64                      `json:"by_hour"`
}

type StudentStats struct {
	models.StudentCounts
	New int64 `json:"new"`
}

type RevenueStats struct {
	Total  decimal.Decimal      `json:"total"`
	ByPlan []models.PlanRevenue `json:"by_plan"`
}

// Rollup summarises one gym over [Start, End).
type Rollup struct {
	GymID       uuid.UUID    `json:"gym_id"`
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
	Timezone    string       `json:"timezone"`
	CheckIns    CheckInStats `json:"check_ins"`
	Students    StudentStats `json:"students"`
	Revenue     RevenueStats `json:"revenue"`
	GeneratedAt time.Time    `json:"generated_at"`
}

type Config struct {
	Clock        clock.Clock
	Zones        *clock.Zones
	Logger       logrus.FieldLogger
	DashboardTTL time.Duration
}

// Aggregator computes and stores rollups.
type Aggregator struct {
	store    Store
	cache    Cache
	clock    clock.Clock
	zones    *clock.Zones
	log      logrus.FieldLogger
	cacheTTL time.Duration
	retries  int
}

// NewAggregator builds an aggregator. cache may be nil.
func NewAggregator(store Store, cache Cache, cfg Config) *Aggregator {
	a := &Aggregator{
		store:    store,
		cache:    cache,
		clock:    cfg.Clock,
		zones:    cfg.Zones,
		log:      cfg.Logger,
		cacheTTL: cfg.DashboardTTL,
		retries:  utils.DefaultReadAttempts,
	}
	if a.clock == nil {
		a.clock = clock.System{}
	}
	if a.zones == nil {
		a.zones = clock.UTCZones()
	}
	if a.log == nil {
		a.log = logrus.StandardLogger()
	}
	if a.cacheTTL <= 0 {
		a.cacheTTL = DefaultDashboardTTL
	}
	return a
}

// Compute builds the rollup for [start, end).
func (a *Aggregator) Compute(ctx context.Context, gymID uuid.UUID, start, end time.Time) (*Rollup, error) {
	if !start.Before(end) {
		return nil, apperr.Invalid("start must be before end")
	}
	gym, err := a.store.GetGym(ctx, gymID)
	if err != nil {
		return nil, err
	}
	loc := a.zones.Location(gym.Timezone)
	now := a.clock.Now()
	asOf := end
	if now.Before(asOf) {
		asOf = now
	}

	r := &Rollup{
		GymID:       gymID,
		Start:       start,
		End:         end,
		Timezone:    loc.String(),
		GeneratedAt: now,
	}

	err = utils.RetryRead(ctx, a.retries, func(ctx context.Context) error {
		r.CheckIns = CheckInStats{ByMethod: map[models.CheckInMethod]int64{
			models.CheckInDNI: 0, models.CheckInQR: 0, models.CheckInCamera: 0,
		}}
		r.Revenue = RevenueStats{Total: decimal.Zero, ByPlan: []models.PlanRevenue{}}

		methods, err := a.store.CountCheckInsByMethod(ctx, gymID, start, end)
		if err != nil {
			return err
		}
		for _, m := range methods {
			r.CheckIns.ByMethod[m.Method] += m.Count
			r.CheckIns.Total += m.Count
		}

		hours, err := a.store.CountCheckInsByHour(ctx, gymID, start, end, loc.String())
		if err != nil {
			return err
		}
		for _, h := range hours {
			if h.Hour >= 0 && h.Hour < 24 {
				r.CheckIns.ByHour[h.Hour] = h.Count
			}
		}

		counts, err := a.store.CountStudentsByStatus(ctx, gymID, asOf)
		if err != nil {
			return err
		}
		joined, err := a.store.CountStudentsJoined(ctx, gymID, start, end)
		if err != nil {
			return err
		}
		r.Students = StudentStats{StudentCounts: counts, New: joined}

		revenue, err := a.store.RevenueByPlan(ctx, gymID, start, end)
		if err != nil {
			return err
		}
		for _, p := range revenue {
			r.Revenue.Total = r.Revenue.Total.Add(p.Total)
		}
		if revenue != nil {
			r.Revenue.ByPlan = revenue
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Window returns the local calendar period containing at. Weeks start on
// Monday.
func Window(period models.SnapshotPeriod, at time.Time, loc *time.Location) (time.Time, time.Time, error) {
	switch period {
	case models.PeriodDaily:
		start := clock.StartOfDay(at, loc)
		return start, start.AddDate(0, 0, 1), nil
	case models.PeriodWeekly:
		start := clock.StartOfWeek(at, loc)
		return start, start.AddDate(0, 0, 7), nil
	case models.PeriodMonthly:
		start := clock.StartOfMonth(at, loc)
		return start, start.AddDate(0, 1, 0), nil
	}
	return time.Time{}, time.Time{}, apperr.Invalid("period must be daily, weekly or monthly")
}

func dashboardKey(gymID uuid.UUID) string {
	return fmt.Sprintf("analytics:dashboard:%s", gymID)
}

// GetDashboardStats returns the month-to-date rollup in the gym's
// timezone, served from the cache when fresh.
func (a *Aggregator) GetDashboardStats(ctx context.Context, gymID uuid.UUID) (*Rollup, error) {
	key := dashboardKey(gymID)
	if a.cache != nil {
		var cached Rollup
		hit, err := a.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			a.log.WithError(err).Warn("Dashboard cache read failed")
		}
		metrics.RecordDashboardCache(hit)
		if hit {
			return &cached, nil
		}
	}

	gym, err := a.store.GetGym(ctx, gymID)
	if err != nil {
		return nil, err
	}
	now := a.clock.Now()
	start := clock.StartOfMonth(now, a.zones.Location(gym.Timezone))
	r, err := a.Compute(ctx, gymID, start, now)
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		if err := a.cache.SetJSON(ctx, key, r, a.cacheTTL); err != nil {
			a.log.WithError(err).Warn("Dashboard cache write failed")
		}
	}
	return r, nil
}

// GenerateSnapshot computes and stores the rollup of the period containing
// at. Regenerating a period overwrites its snapshot.
func (a *Aggregator) GenerateSnapshot(ctx context.Context, gymID uuid.UUID, period models.SnapshotPeriod, at time.Time) (*models.AnalyticsSnapshot, error) {
	gym, err := a.store.GetGym(ctx, gymID)
	if err != nil {
		return nil, err
	}
	return a.snapshot(ctx, gym, period, at)
}

func (a *Aggregator) snapshot(ctx context.Context, gym *models.Gym, period models.SnapshotPeriod, at time.Time) (*models.AnalyticsSnapshot, error) {
	start, end, err := Window(period, at, a.zones.Location(gym.Timezone))
	if err != nil {
		return nil, err
	}
	r, err := a.Compute(ctx, gym.ID, start, end)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rollup: %w", err)
	}

	snap := &models.AnalyticsSnapshot{
		ID:          uuid.New(),
		GymID:       gym.ID,
		Period:      period,
		PeriodStart: start.UTC(),
		PeriodEnd:   end.UTC(),
		Data:        datatypes.JSON(data),
		GeneratedAt: r.GeneratedAt,
	}
	if err := a.store.UpsertSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// ClosedPeriodAt returns an instant inside the latest period that has fully
// ended in loc as of now.
func ClosedPeriodAt(period models.SnapshotPeriod, now time.Time, loc *time.Location) (time.Time, error) {
	start, _, err := Window(period, now, loc)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(-time.Nanosecond), nil
}

// GenerateClosed snapshots, for every gym, the latest period that has
// ended in that gym's timezone as of now. One gym failing does not stop
// the others.
func (a *Aggregator) GenerateClosed(ctx context.Context, period models.SnapshotPeriod, now time.Time) (int, []error) {
	if !period.Valid() {
		return 0, []error{apperr.Invalid("period must be daily, weekly or monthly")}
	}
	var ids []uuid.UUID
	err := utils.RetryRead(ctx, a.retries, func(ctx context.Context) error {
		var err error
		ids, err = a.store.ListGymIDs(ctx)
		return err
	})
	if err != nil {
		return 0, []error{err}
	}

	var (
		done int
		errs []error
	)
	for _, id := range ids {
		err := func() error {
			gym, err := a.store.GetGym(ctx, id)
			if err != nil {
				return err
			}
			at, err := ClosedPeriodAt(period, now, a.zones.Location(gym.Timezone))
			if err != nil {
				return err
			}
			_, err = a.snapshot(ctx, gym, period, at)
			return err
		}()
		if err != nil {
			a.log.WithFields(logrus.Fields{"gym_id": id, "period": period}).WithError(err).Error("Snapshot generation failed")
			errs = append(errs, fmt.Errorf("gym %s: %w", id, err))
			continue
		}
		done++
	}
	a.log.WithFields(logrus.Fields{"period": period, "generated": done, "failed": len(errs)}).Info("Snapshots generated")
	return done, errs
}

func (a *Aggregator) ListSnapshots(ctx context.Context, gymID uuid.UUID, period models.SnapshotPeriod, from, to time.Time) ([]models.AnalyticsSnapshot, error) {
	if !period.Valid() {
		return nil, apperr.Invalid("period must be daily, weekly or monthly")
	}
	var out []models.AnalyticsSnapshot
	err := utils.RetryRead(ctx, a.retries, func(ctx context.Context) error {
		var err error
		out, err = a.store.ListSnapshots(ctx, gymID, period, from, to)
		return err
	})
	return out, err
}

// PurgeSnapshots drops snapshots generated before now minus retention.
func (a *Aggregator) PurgeSnapshots(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = DefaultSnapshotRetention
	}
	cutoff := a.clock.Now().Add(-retention)
	n, err := a.store.PurgeSnapshots(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	a.log.WithFields(logrus.Fields{"deleted": n, "cutoff": cutoff}).Info("Purged old snapshots")
	return n, nil
}
