// Package checkins records attendance. A student checks in at most once
// per local calendar day of the gym, and only with an active membership.
package checkins

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/gym-tenant-system/shared/apperr"
	"github.com/pavitra93/gym-tenant-system/shared/clock"
	"github.com/pavitra93/gym-tenant-system/shared/metrics"
	"github.com/pavitra93/gym-tenant-system/shared/models"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

const (
	// DefaultRetention is how long check-ins are kept.
	DefaultRetention = 90 * 24 * time.Hour
	DefaultTopHours  = 5
)

// Filter narrows a check-in listing. Zero values are ignored.
type Filter struct {
	From      time.Time
	To        time.Time
	StudentID uuid.UUID
}

// Store is the persistence the ledger needs.
type Store interface {
	GetGym(ctx context.Context, gymID uuid.UUID) (*models.Gym, error)
	FindStudentByDNI(ctx context.Context, gymID uuid.UUID, dni string) (*models.Student, error)
	FindStudentByToken(ctx context.Context, gymID, token uuid.UUID) (*models.Student, error)
	// TokenOwner returns only the gym a token belongs to, so a foreign
	// token can be told apart from an unknown one without loading the
	// other gym's student.
	TokenOwner(ctx context.Context, token uuid.UUID) (uuid.UUID, bool, error)
	GetStudent(ctx context.Context, gymID, studentID uuid.UUID) (*models.Student, error)

	// RecordCheckIn locks the student row, lets build decide on the locked
	// row, inserts the check-in and bumps the student and gym counters in
	// one transaction. A second check-in for the same day yields
	// apperr.ErrDuplicateCheckIn and nothing is persisted.
	RecordCheckIn(ctx context.Context, gymID, studentID uuid.UUID, build func(*models.Student) (*models.CheckIn, error)) (*models.CheckIn, error)

	ListCheckIns(ctx context.Context, gymID uuid.UUID, f Filter, page models.PageRequest) ([]models.CheckIn, int64, error)
	CountCheckInsByHour(ctx context.Context, gymID uuid.UUID, from, to time.Time, timezone string) ([]models.HourCount, error)
	CountCheckInsByMethod(ctx context.Context, gymID uuid.UUID, from, to time.Time) ([]models.MethodCount, error)
	CountCheckInsOnDay(ctx context.Context, gymID uuid.UUID, day string) (int64, error)
	PurgeCheckIns(ctx context.Context, before time.Time) (int64, error)
}

// RegisterInput identifies the student by DNI or by check-in token.
type RegisterInput struct {
	Method   models.CheckInMethod `json:"method" binding:"required"`
	DNI      string               `json:"dni"`
	Token    string               `json:"token"`
	Location *models.GeoPoint     `json:"location"`
	Notes    string               `json:"notes"`
}

// Ledger registers and queries check-ins.
type Ledger struct {
	store   Store
	clock   clock.Clock
	zones   *clock.Zones
	log     logrus.FieldLogger
	retries int
}

func NewLedger(store Store, c clock.Clock, zones *clock.Zones, log logrus.FieldLogger) *Ledger {
	if c == nil {
		c = clock.System{}
	}
	if zones == nil {
		zones = clock.UTCZones()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Ledger{store: store, clock: c, zones: zones, log: log, retries: utils.DefaultReadAttempts}
}

// RegisterCheckIn records today's attendance for a student.
func (l *Ledger) RegisterCheckIn(ctx context.Context, gymID uuid.UUID, in RegisterInput) (*models.CheckIn, error) {
	ci, err := l.register(ctx, gymID, in)
	if err != nil {
		metrics.RecordCheckIn(string(in.Method), resultLabel(err))
		entry := l.log.WithFields(logrus.Fields{"gym_id": gymID, "method": in.Method})
		if k := apperr.KindOf(err); k == apperr.KindUnavailable || k == "" {
			entry.WithError(err).Error("Check-in failed")
		} else {
			entry.Info(err.Error())
		}
		return nil, err
	}
	metrics.RecordCheckIn(string(in.Method), "ok")
	return ci, nil
}

func (l *Ledger) register(ctx context.Context, gymID uuid.UUID, in RegisterInput) (*models.CheckIn, error) {
	if !in.Method.Valid() {
		return nil, apperr.Invalid("method must be one of dni, qr, camera")
	}
	gym, err := l.store.GetGym(ctx, gymID)
	if err != nil {
		return nil, err
	}
	if !gym.IsActive {
		return nil, apperr.ErrTenantInactive
	}
	if !gym.AllowsMethod(in.Method) {
		return nil, apperr.ErrMethodNotAllowed.WithMessage("%s check-in is not enabled for this gym", in.Method)
	}

	student, err := l.resolve(ctx, gymID, in)
	if err != nil {
		return nil, err
	}

	loc := l.zones.Location(gym.Timezone)
	return l.store.RecordCheckIn(ctx, gymID, student.ID, func(s *models.Student) (*models.CheckIn, error) {
		now := l.clock.Now()
		if !s.IsActiveAt(now) {
			return nil, apperr.ErrMembershipInactive.WithMessage(
				"membership is %s", s.EffectiveStatus(now))
		}
		ci := &models.CheckIn{
			ID:        uuid.New(),
			GymID:     gymID,
			StudentID: s.ID,
			Method:    in.Method,
			Timestamp: now,
			DayBucket: clock.DayBucket(now, loc),
			Notes:     strings.TrimSpace(in.Notes),
		}
		if in.Location != nil {
			lat, lng := in.Location.Latitude, in.Location.Longitude
			ci.Latitude, ci.Longitude = &lat, &lng
		}
		return ci, nil
	})
}

func (l *Ledger) resolve(ctx context.Context, gymID uuid.UUID, in RegisterInput) (*models.Student, error) {
	dni := strings.TrimSpace(in.DNI)
	token := strings.TrimSpace(in.Token)
	switch {
	case dni != "":
		return l.store.FindStudentByDNI(ctx, gymID, dni)
	case token != "":
		tok, err := uuid.Parse(token)
		if err != nil {
			return nil, apperr.ErrStudentNotFound
		}
		s, err := l.store.FindStudentByToken(ctx, gymID, tok)
		if err == nil || !errors.Is(err, apperr.ErrStudentNotFound) {
			return s, err
		}
		owner, found, ownerErr := l.store.TokenOwner(ctx, tok)
		if ownerErr != nil {
			return nil, ownerErr
		}
		if found && owner != gymID {
			return nil, apperr.ErrTenantMismatch
		}
		return nil, err
	}
	return nil, apperr.Invalid("dni or token is required")
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, apperr.ErrDuplicateCheckIn):
		return "duplicate"
	case errors.Is(err, apperr.ErrMembershipInactive):
		return "inactive"
	case errors.Is(err, apperr.ErrTenantMismatch):
		return "mismatch"
	}
	return string(apperr.KindOf(err))
}

// ListCheckIns pages through check-ins, newest first.
func (l *Ledger) ListCheckIns(ctx context.Context, gymID uuid.UUID, f Filter, page models.PageRequest) (models.Page[models.CheckIn], error) {
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return models.Page[models.CheckIn]{}, apperr.Invalid("from must be before to")
	}
	page = page.Normalize()
	var (
		items []models.CheckIn
		total int64
	)
	err := utils.RetryRead(ctx, l.retries, func(ctx context.Context) error {
		var err error
		items, total, err = l.store.ListCheckIns(ctx, gymID, f, page)
		return err
	})
	if err != nil {
		return models.Page[models.CheckIn]{}, err
	}
	return models.NewPage(items, total, page), nil
}

// StudentHistory pages through one student's check-ins.
func (l *Ledger) StudentHistory(ctx context.Context, gymID, studentID uuid.UUID, page models.PageRequest) (models.Page[models.CheckIn], error) {
	if _, err := l.store.GetStudent(ctx, gymID, studentID); err != nil {
		return models.Page[models.CheckIn]{}, err
	}
	return l.ListCheckIns(ctx, gymID, Filter{StudentID: studentID}, page)
}

// GetPeakHours returns the busiest local hours in [from, to), busiest
// first, ties broken by the earlier hour.
func (l *Ledger) GetPeakHours(ctx context.Context, gymID uuid.UUID, from, to time.Time, top int) ([]models.HourCount, error) {
	if !from.Before(to) {
		return nil, apperr.Invalid("from must be before to")
	}
	if top < 1 {
		top = DefaultTopHours
	}
	gym, err := l.store.GetGym(ctx, gymID)
	if err != nil {
		return nil, err
	}
	tz := l.zones.Location(gym.Timezone).String()

	var counts []models.HourCount
	err = utils.RetryRead(ctx, l.retries, func(ctx context.Context) error {
		var err error
		counts, err = l.store.CountCheckInsByHour(ctx, gymID, from, to, tz)
		return err
	})
	if err != nil {
		return nil, err
	}
	return RankHours(counts, top), nil
}

// RankHours orders hour counts by count desc then hour asc and keeps top.
func RankHours(counts []models.HourCount, top int) []models.HourCount {
	out := make([]models.HourCount, 0, len(counts))
	for _, c := range counts {
		if c.Count > 0 {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Hour < out[j].Hour
	})
	if len(out) > top {
		out = out[:top]
	}
	return out
}

// CountByMethod returns check-ins per method in [from, to). Every method
// is present, with zero when unused.
func (l *Ledger) CountByMethod(ctx context.Context, gymID uuid.UUID, from, to time.Time) (map[models.CheckInMethod]int64, error) {
	var counts []models.MethodCount
	err := utils.RetryRead(ctx, l.retries, func(ctx context.Context) error {
		var err error
		counts, err = l.store.CountCheckInsByMethod(ctx, gymID, from, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := map[models.CheckInMethod]int64{
		models.CheckInDNI:    0,
		models.CheckInQR:     0,
		models.CheckInCamera: 0,
	}
	for _, c := range counts {
		out[c.Method] += c.Count
	}
	return out, nil
}

// TodayAttendance counts check-ins in the gym's current local day.
func (l *Ledger) TodayAttendance(ctx context.Context, gymID uuid.UUID) (int64, error) {
	gym, err := l.store.GetGym(ctx, gymID)
	if err != nil {
		return 0, err
	}
	day := clock.DayBucket(l.clock.Now(), l.zones.Location(gym.Timezone))
	var n int64
	err = utils.RetryRead(ctx, l.retries, func(ctx context.Context) error {
		var err error
		n, err = l.store.CountCheckInsOnDay(ctx, gymID, day)
		return err
	})
	return n, err
}

// PurgeExpired deletes check-ins older than retention.
func (l *Ledger) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := l.clock.Now().Add(-retention)
	n, err := l.store.PurgeCheckIns(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	l.log.WithFields(logrus.Fields{"deleted": n, "cutoff": cutoff}).Info("Purged old check-ins")
	return n, nil
}
