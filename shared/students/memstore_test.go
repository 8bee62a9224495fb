package students

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavitra93/gym-tenant-system/shared/apperr"
	"github.com/pavitra93/gym-tenant-system/shared/models"
)

// memStore is an in-memory Store. WithGymLock serialises per gym and rolls
// back the gym's rows when fn fails.
type memStore struct {
	mu       sync.Mutex
	locks    map[uuid.UUID]*sync.Mutex
	gyms     map[uuid.UUID]models.Gym
	plans    map[uuid.UUID]models.MembershipPlan
	students map[uuid.UUID]models.Student

	failExpire map[uuid.UUID]error
}

func newMemStore() *memStore {
	return &memStore{
		locks:      map[uuid.UUID]*sync.Mutex{},
		gyms:       map[uuid.UUID]models.Gym{},
		plans:      map[uuid.UUID]models.MembershipPlan{},
		students:   map[uuid.UUID]models.Student{},
		failExpire: map[uuid.UUID]error{},
	}
}

func (s *memStore) addGym(g models.Gym) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gyms[g.ID] = g
}

func (s *memStore) addPlan(p models.MembershipPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = p
}

func (s *memStore) addStudent(st models.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[st.ID] = st
}

func (s *memStore) gym(id uuid.UUID) models.Gym {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gyms[id]
}

func (s *memStore) plan(id uuid.UUID) models.MembershipPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plans[id]
}

func (s *memStore) student(id uuid.UUID) models.Student {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.students[id]
}

func (s *memStore) lockFor(gymID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[gymID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[gymID] = l
	}
	return l
}

func (s *memStore) WithGymLock(ctx context.Context, gymID uuid.UUID, fn func(tx Tx) error) error {
	l := s.lockFor(gymID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	if _, ok := s.gyms[gymID]; !ok {
		s.mu.Unlock()
		return apperr.ErrTenantNotFound
	}
	gymSnap := s.gyms[gymID]
	planSnap := map[uuid.UUID]models.MembershipPlan{}
	for id, p := range s.plans {
		if p.GymID == gymID {
			planSnap[id] = p
		}
	}
	studentSnap := map[uuid.UUID]models.Student{}
	for id, st := range s.students {
		if st.GymID == gymID {
			studentSnap[id] = st
		}
	}
	s.mu.Unlock()

	if err := fn(&memTx{s: s}); err != nil {
		s.mu.Lock()
		s.gyms[gymID] = gymSnap
		for id, p := range s.plans {
			if p.GymID == gymID {
				delete(s.plans, id)
			}
		}
		for id, p := range planSnap {
			s.plans[id] = p
		}
		for id, st := range s.students {
			if st.GymID == gymID {
				delete(s.students, id)
			}
		}
		for id, st := range studentSnap {
			s.students[id] = st
		}
		s.mu.Unlock()
		return err
	}
	return nil
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

func (s *memStore) ListStudents(ctx context.Context, gymID uuid.UUID, f ListFilter, page models.PageRequest) ([]models.Student, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Student
	for _, st := range s.students {
		if st.GymID != gymID {
			continue
		}
		if f.Status != "" && st.EffectiveStatus(f.Now) != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(st.FullName()+" "+st.DNI), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, st)
	}
	return out, int64(len(out)), nil
}

func (s *memStore) sortedStudents() []models.Student {
	out := make([]models.Student, 0, len(s.students))
	for _, st := range s.students {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func (s *memStore) ExpiredActiveStudents(ctx context.Context, now time.Time, afterID uuid.UUID, limit int) ([]models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Student
	for _, st := range s.sortedStudents() {
		if afterID != uuid.Nil && st.ID.String() <= afterID.String() {
			continue
		}
		if st.Membership.Status == models.MembershipActive && st.Membership.ExpiryDate.Before(now) {
			out = append(out, st)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) ExpireMembership(ctx context.Context, gymID, studentID uuid.UUID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failExpire[studentID]; err != nil {
		return false, err
	}
	st, ok := s.students[studentID]
	if !ok || st.GymID != gymID || st.Membership.Status != models.MembershipActive || !st.Membership.ExpiryDate.Before(now) {
		return false, nil
	}
	st.Membership.Status = models.MembershipExpired
	s.students[studentID] = st
	g := s.gyms[gymID]
	if g.ActiveStudents > 0 {
		g.ActiveStudents--
	}
	s.gyms[gymID] = g
	return true, nil
}

func (s *memStore) ExpiringStudents(ctx context.Context, from, to time.Time, afterID uuid.UUID, limit int) ([]models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Student
	for _, st := range s.sortedStudents() {
		if afterID != uuid.Nil && st.ID.String() <= afterID.String() {
			continue
		}
		exp := st.Membership.ExpiryDate
		if st.Membership.Status != models.MembershipActive || exp.Before(from) || !exp.Before(to) {
			continue
		}
		if st.ExpiryReminderSentFor != nil && st.ExpiryReminderSentFor.Equal(exp) {
			continue
		}
		out = append(out, st)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) MarkReminderSent(ctx context.Context, studentID uuid.UUID, expiry time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[studentID]
	if !ok {
		return false, nil
	}
	if st.ExpiryReminderSentFor != nil && st.ExpiryReminderSentFor.Equal(expiry) {
		return false, nil
	}
	e := expiry
	st.ExpiryReminderSentFor = &e
	s.students[studentID] = st
	return true, nil
}

type memTx struct {
	s *memStore
}

func (t *memTx) GetGym(ctx context.Context, gymID uuid.UUID) (*models.Gym, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	g, ok := t.s.gyms[gymID]
	if !ok {
		return nil, apperr.ErrTenantNotFound
	}
	return &g, nil
}

func (t *memTx) CountActiveStudents(ctx context.Context, gymID uuid.UUID, now time.Time) (int64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var n int64
	for _, st := range t.s.students {
		if st.GymID == gymID && st.IsActiveAt(now) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) FindActivePlan(ctx context.Context, gymID, planID uuid.UUID) (*models.MembershipPlan, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.plans[planID]
	if !ok || p.GymID != gymID || !p.IsActive {
		return nil, apperr.ErrPlanNotFound
	}
	return &p, nil
}

func (t *memTx) DNIExists(ctx context.Context, gymID uuid.UUID, dni string) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, st := range t.s.students {
		if st.GymID == gymID && st.DNI == dni {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) LockStudent(ctx context.Context, gymID, studentID uuid.UUID) (*models.Student, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	st, ok := t.s.students[studentID]
	if !ok || st.GymID != gymID {
		return nil, apperr.ErrStudentNotFound
	}
	return &st, nil
}

func (t *memTx) InsertStudent(ctx context.Context, st *models.Student) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, other := range t.s.students {
		if other.GymID == st.GymID && other.DNI == st.DNI {
			return apperr.ErrDuplicateDNI
		}
	}
	t.s.students[st.ID] = *st
	return nil
}

func (t *memTx) SaveStudent(ctx context.Context, st *models.Student) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.students[st.ID] = *st
	return nil
}

func (t *memTx) AdjustPlanUsage(ctx context.Context, gymID, planID uuid.UUID, delta int64) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.plans[planID]
	if !ok || p.GymID != gymID {
		return errors.New("plan missing")
	}
	p.StudentsCount += delta
	if p.StudentsCount < 0 {
		p.StudentsCount = 0
	}
	t.s.plans[planID] = p
	return nil
}

func (t *memTx) AdjustGymStats(ctx context.Context, gymID uuid.UUID, d models.StatsDelta) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	g := t.s.gyms[gymID]
	g.TotalStudents = max(g.TotalStudents+d.TotalStudents, 0)
	g.ActiveStudents = max(g.ActiveStudents+d.ActiveStudents, 0)
	g.TotalCheckIns = max(g.TotalCheckIns+d.TotalCheckIns, 0)
	t.s.gyms[gymID] = g
	return nil
}
