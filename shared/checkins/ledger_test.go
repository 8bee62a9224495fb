package checkins

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/gym-tenant-system/shared/apperr"
	"github.com/pavitra93/gym-tenant-system/shared/clock"
	"github.com/pavitra93/gym-tenant-system/shared/models"
)

type memStore struct {
	mu       sync.Mutex
	gyms     map[uuid.UUID]models.Gym
	students map[uuid.UUID]models.Student
	checkIns []models.CheckIn
	byHour   []models.HourCount
	byMethod []models.MethodCount

	purgedBefore time.Time
}

func newMemStore() *memStore {
	return &memStore{gyms: map[uuid.UUID]models.Gym{}, students: map[uuid.UUID]models.Student{}}
}

func (s *memStore) GetGym(ctx context.Context, gymID uuid.UUID) (*models.Gym, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gyms[gymID]
	if !ok {
		return nil, apperr.ErrTenantNotFound
	}
	return &g, nil
}

func (s *memStore) FindStudentByDNI(ctx context.Context, gymID uuid.UUID, dni string) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.students {
		if st.GymID == gymID && st.DNI == dni {
			return &st, nil
		}
	}
	return nil, apperr.ErrStudentNotFound
}

func (s *memStore) FindStudentByToken(ctx context.Context, gymID, token uuid.UUID) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.students {
		if st.GymID == gymID && st.CheckInToken == token {
			return &st, nil
		}
	}
	return nil, apperr.ErrStudentNotFound
}

func (s *memStore) TokenOwner(ctx context.Context, token uuid.UUID) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.students {
		if st.CheckInToken == token {
			return st.GymID, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (s *memStore) GetStudent(ctx context.Context, gymID, studentID uuid.UUID) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[studentID]
	if !ok || st.GymID != gymID {
		return nil, apperr.ErrStudentNotFound
	}
	return &st, nil
}

func (s *memStore) RecordCheckIn(ctx context.Context, gymID, studentID uuid.UUID, build func(*models.Student) (*models.CheckIn, error)) (*models.CheckIn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[studentID]
	if !ok || st.GymID != gymID {
		return nil, apperr.ErrStudentNotFound
	}
	ci, err := build(&st)
	if err != nil {
		return nil, err
	}
	for _, existing := range s.checkIns {
		if existing.StudentID == ci.StudentID && existing.DayBucket == ci.DayBucket {
			return nil, apperr.ErrDuplicateCheckIn
		}
	}
	s.checkIns = append(s.checkIns, *ci)
	st.TotalCheckIns++
	ts := ci.Timestamp
	st.LastCheckIn = &ts
	s.students[studentID] = st
	g := s.gyms[gymID]
	g.TotalCheckIns++
	s.gyms[gymID] = g
	return ci, nil
}

func (s *memStore) ListCheckIns(ctx context.Context, gymID uuid.UUID, f Filter, page models.PageRequest) ([]models.CheckIn, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CheckIn
	for i := len(s.checkIns) - 1; i >= 0; i-- {
		ci := s.checkIns[i]
		if ci.GymID != gymID || (f.StudentID != uuid.Nil && ci.StudentID != f.StudentID) {
			continue
		}
		out = append(out, ci)
	}
	return out, int64(len(out)), nil
}

func (s *memStore) CountCheckInsByHour(ctx context.Context, gymID uuid.UUID, from, to time.Time, timezone string) ([]models.HourCount, error) {
	return s.byHour, nil
}

func (s *memStore) CountCheckInsByMethod(ctx context.Context, gymID uuid.UUID, from, to time.Time) ([]models.MethodCount, error) {
	return s.byMethod, nil
}

func (s *memStore) CountCheckInsOnDay(ctx context.Context, gymID uuid.UUID, day string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, ci := range s.checkIns {
		if ci.GymID == gymID && ci.DayBucket == day {
			n++
		}
	}
	return n, nil
}

func (s *memStore) PurgeCheckIns(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgedBefore = before
	kept := s.checkIns[:0]
	var n int64
	for _, ci := range s.checkIns {
		if ci.Timestamp.Before(before) {
			n++
			continue
		}
		kept = append(kept, ci)
	}
	s.checkIns = kept
	return n, nil
}

type fixture struct {
	store   *memStore
	clock   *clock.Manual
	ledger  *Ledger
	gymID   uuid.UUID
	student models.Student
}

// 23:00 on March 9 in Buenos Aires
var t0 = time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	zones, err := clock.NewZones("")
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()

	f := &fixture{store: newMemStore(), clock: clock.NewManual(t0), gymID: uuid.New()}
	f.store.gyms[f.gymID] = models.Gym{
		ID:               f.gymID,
		IsActive:         true,
		SubscriptionPlan: &models.SubscriptionPlan{QRAccess: true},
	}
	f.student = models.Student{
		ID:           uuid.New(),
		GymID:        f.gymID,
		DNI:          "30111222",
		CheckInToken: uuid.New(),
		Membership: models.Membership{
			Status:     models.MembershipActive,
			ExpiryDate: t0.AddDate(0, 1, 0),
		},
	}
	f.store.students[f.student.ID] = f.student
	f.ledger = NewLedger(f.store, f.clock, zones, logger)
	return f
}

func TestRegisterCheckInByDNI(t *testing.T) {
	f := newFixture(t)

	ci, err := f.ledger.RegisterCheckIn(context.Background(), f.gymID, RegisterInput{
		Method:   models.CheckInDNI,
		DNI:      "30111222",
		Location: &models.GeoPoint{Latitude: -34.6, Longitude: -58.4},
	})
	require.NoError(t, err)

	assert.Equal(t, "2024-03-09", ci.DayBucket)
	assert.Equal(t, t0, ci.Timestamp)
	require.NotNil(t, ci.Latitude)
	assert.Equal(t, -34.6, *ci.Latitude)

	st := f.store.students[f.student.ID]
	assert.Equal(t, int64(1), st.TotalCheckIns)
	assert.Equal(t, t0, *st.LastCheckIn)
	assert.Equal(t, int64(1), f.store.gyms[f.gymID].TotalCheckIns)
}

func TestOneCheckInPerLocalDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := RegisterInput{Method: models.CheckInQR, Token: f.student.CheckInToken.String()}

	_, err := f.ledger.RegisterCheckIn(ctx, f.gymID, in)
	require.NoError(t, err)

	f.clock.Advance(30 * time.Minute)
	_, err = f.ledger.RegisterCheckIn(ctx, f.gymID, in)
	assert.ErrorIs(t, err, apperr.ErrDuplicateCheckIn)
	assert.Len(t, f.store.checkIns, 1)

	// past local midnight, although still the same UTC day
	f.clock.Advance(time.Hour)
	ci, err := f.ledger.RegisterCheckIn(ctx, f.gymID, in)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", ci.DayBucket)
	assert.Equal(t, int64(2), f.store.students[f.student.ID].TotalCheckIns)
}

func TestConcurrentCheckInsOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.RegisterCheckIn(context.Background(), f.gymID, RegisterInput{Method: models.CheckInDNI, DNI: "30111222"})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperr.ErrDuplicateCheckIn)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, int64(1), f.store.students[f.student.ID].TotalCheckIns)
}

func TestCheckInRequiresActiveMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := RegisterInput{Method: models.CheckInDNI, DNI: "30111222"}

	f.clock.Set(f.student.Membership.ExpiryDate.Add(time.Second))
	_, err := f.ledger.RegisterCheckIn(ctx, f.gymID, in)
	assert.ErrorIs(t, err, apperr.ErrMembershipInactive)

	f.clock.Set(t0)
	st := f.store.students[f.student.ID]
	st.Membership.Status = models.MembershipInactive
	f.store.students[f.student.ID] = st
	_, err = f.ledger.RegisterCheckIn(ctx, f.gymID, in)
	assert.ErrorIs(t, err, apperr.ErrMembershipInactive)
	assert.Empty(t, f.store.checkIns)
}

func TestCheckInResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	otherGym := uuid.New()
	f.store.gyms[otherGym] = models.Gym{ID: otherGym, IsActive: true}
	foreign := models.Student{ID: uuid.New(), GymID: otherGym, DNI: "1", CheckInToken: uuid.New()}
	f.store.students[foreign.ID] = foreign

	_, err := f.ledger.RegisterCheckIn(ctx, f.gymID, RegisterInput{Method: models.CheckInQR, Token: foreign.CheckInToken.String()})
	assert.ErrorIs(t, err, apperr.ErrTenantMismatch)

	_, err = f.ledger.RegisterCheckIn(ctx, f.gymID, RegisterInput{Method: models.CheckInQR, Token: uuid.NewString()})
	assert.ErrorIs(t, err, apperr.ErrStudentNotFound)

	_, err = f.ledger.RegisterCheckIn(ctx, f.gymID, RegisterInput{Method: models.CheckInQR, Token: "not-a-token"})
	assert.ErrorIs(t, err, apperr.ErrStudentNotFound)

	// DNI lookups are scoped to the gym
	_, err = f.ledger.RegisterCheckIn(ctx, f.gymID, RegisterInput{Method: models.CheckInDNI, DNI: "1"})
	assert.ErrorIs(t, err, apperr.ErrStudentNotFound)

	_, err = f.ledger.RegisterCheckIn(ctx, f.gymID, RegisterInput{Method: models.CheckInDNI})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestCheckInMethodRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.RegisterCheckIn(ctx, f.gymID, RegisterInput{Method: models.CheckInCamera, DNI: "30111222"})
	assert.ErrorIs(t, err, apperr.ErrMethodNotAllowed)

	_, err = f.ledger.RegisterCheckIn(ctx, f.gymID, RegisterInput{Method: "nfc", DNI: "30111222"})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestRankHours(t *testing.T) {
	ranked := RankHours([]models.HourCount{
		{Hour: 7, Count: 4},
		{Hour: 19, Count: 9},
		{Hour: 18, Count: 9},
		{Hour: 12, Count: 0},
		{Hour: 6, Count: 4},
	}, 3)
	assert.Equal(t, []models.HourCount{{Hour: 18, Count: 9}, {Hour: 19, Count: 9}, {Hour: 6, Count: 4}}, ranked)
}

func TestPeakHoursAndMethods(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.byHour = []models.HourCount{{Hour: 8, Count: 2}, {Hour: 18, Count: 5}}
	f.store.byMethod = []models.MethodCount{{Method: models.CheckInQR, Count: 3}}

	peaks, err := f.ledger.GetPeakHours(ctx, f.gymID, t0.AddDate(0, 0, -7), t0, 1)
	require.NoError(t, err)
	assert.Equal(t, []models.HourCount{{Hour: 18, Count: 5}}, peaks)

	_, err = f.ledger.GetPeakHours(ctx, f.gymID, t0, t0, 1)
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	byMethod, err := f.ledger.CountByMethod(ctx, f.gymID, t0.AddDate(0, 0, -7), t0)
	require.NoError(t, err)
	assert.Equal(t, map[models.CheckInMethod]int64{"dni": 0, "qr": 3, "camera": 0}, byMethod)
}

func TestHistoryTodayAndPurge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.RegisterCheckIn(ctx, f.gymID, RegisterInput{Method: models.CheckInDNI, DNI: "30111222"})
	require.NoError(t, err)

	history, err := f.ledger.StudentHistory(ctx, f.gymID, f.student.ID, models.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), history.Total)

	_, err = f.ledger.StudentHistory(ctx, uuid.New(), f.student.ID, models.PageRequest{})
	assert.ErrorIs(t, err, apperr.ErrStudentNotFound)

	today, err := f.ledger.TodayAttendance(ctx, f.gymID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), today)

	f.clock.Advance(91 * 24 * time.Hour)
	n, err := f.ledger.PurgeExpired(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, f.clock.Now().Add(-DefaultRetention), f.store.purgedBefore)
}

func TestListCheckInsRejectsInvertedRange(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.ListCheckIns(context.Background(), f.gymID, Filter{From: t0, To: t0.Add(-time.Hour)}, models.PageRequest{})
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}
