package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/pavitra93/gym-tenant-system/shared/analytics"
	"github.com/pavitra93/gym-tenant-system/shared/checkins"
	"github.com/pavitra93/gym-tenant-system/shared/limits"
	"github.com/pavitra93/gym-tenant-system/shared/models"
	"github.com/pavitra93/gym-tenant-system/shared/plans"
	"github.com/pavitra93/gym-tenant-system/shared/students"
)

type MockStudents struct {
	mock.Mock
}

func (m *MockStudents) CreateStudent(ctx context.Context, gymID uuid.UUID, in students.CreateInput) (*models.Student, error) {
	args := m.Called(ctx, gymID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Student), args.Error(1)
}

func (m *MockStudents) GetStudent(ctx context.Context, gymID, studentID uuid.UUID) (models.StudentView, error) {
	args := m.Called(ctx, gymID, studentID)
	return args.Get(0).(models.StudentView), args.Error(1)
}

func (m *MockStudents) ListStudents(ctx context.Context, gymID uuid.UUID, status models.MembershipStatus, search string, page models.PageRequest) (models.Page[models.StudentView], error) {
	args := m.Called(ctx, gymID, status, search, page)
	return args.Get(0).(models.Page[models.StudentView]), args.Error(1)
}

func (m *MockStudents) UpdateStudent(ctx context.Context, gymID, studentID uuid.UUID, in students.UpdateInput) (*models.Student, error) {
	args := m.Called(ctx, gymID, studentID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Student), args.Error(1)
}

func (m *MockStudents) DeleteStudent(ctx context.Context, gymID, studentID uuid.UUID) (*models.Student, error) {
	args := m.Called(ctx, gymID, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Student), args.Error(1)
}

func (m *MockStudents) RenewMembership(ctx context.Context, gymID, studentID, planID uuid.UUID) (*models.Student, error) {
	args := m.Called(ctx, gymID, studentID, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Student), args.Error(1)
}

func (m *MockStudents) ProcessExpiredMemberships(ctx context.Context) (students.SweepResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(students.SweepResult), args.Error(1)
}

type MockPlans struct {
	mock.Mock
}

func (m *MockPlans) CreatePlan(ctx context.Context, gymID uuid.UUID, in plans.PlanInput) (*models.MembershipPlan, error) {
	args := m.Called(ctx, gymID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MembershipPlan), args.Error(1)
}

func (m *MockPlans) GetPlan(ctx context.Context, gymID, planID uuid.UUID) (*models.MembershipPlan, error) {
	args := m.Called(ctx, gymID, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MembershipPlan), args.Error(1)
}

func (m *MockPlans) ListPlans(ctx context.Context, gymID uuid.UUID, activeOnly bool, page models.PageRequest) (models.Page[models.MembershipPlan], error) {
	args := m.Called(ctx, gymID, activeOnly, page)
	return args.Get(0).(models.Page[models.MembershipPlan]), args.Error(1)
}

func (m *MockPlans) UpdatePlan(ctx context.Context, gymID, planID uuid.UUID, patch plans.PlanPatch) (*models.MembershipPlan, error) {
	args := m.Called(ctx, gymID, planID, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MembershipPlan), args.Error(1)
}

func (m *MockPlans) RetirePlan(ctx context.Context, gymID, planID uuid.UUID) (*models.MembershipPlan, error) {
	args := m.Called(ctx, gymID, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MembershipPlan), args.Error(1)
}

func (m *MockPlans) PlanStats(ctx context.Context, gymID, planID uuid.UUID) (*models.PlanStats, error) {
	args := m.Called(ctx, gymID, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PlanStats), args.Error(1)
}

func (m *MockPlans) PopularPlans(ctx context.Context, gymID uuid.UUID, limit int) ([]models.MembershipPlan, error) {
	args := m.Called(ctx, gymID, limit)
	return args.Get(0).([]models.MembershipPlan), args.Error(1)
}

type MockCheckIns struct {
	mock.Mock
}

func (m *MockCheckIns) RegisterCheckIn(ctx context.Context, gymID uuid.UUID, in checkins.RegisterInput) (*models.CheckIn, error) {
	args := m.Called(ctx, gymID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckIn), args.Error(1)
}

func (m *MockCheckIns) ListCheckIns(ctx context.Context, gymID uuid.UUID, f checkins.Filter, page models.PageRequest) (models.Page[models.CheckIn], error) {
	args := m.Called(ctx, gymID, f, page)
	return args.Get(0).(models.Page[models.CheckIn]), args.Error(1)
}

func (m *MockCheckIns) StudentHistory(ctx context.Context, gymID, studentID uuid.UUID, page models.PageRequest) (models.Page[models.CheckIn], error) {
	args := m.Called(ctx, gymID, studentID, page)
	return args.Get(0).(models.Page[models.CheckIn]), args.Error(1)
}

func (m *MockCheckIns) GetPeakHours(ctx context.Context, gymID uuid.UUID, from, to time.Time, top int) ([]models.HourCount, error) {
	args := m.Called(ctx, gymID, from, to, top)
	return args.Get(0).([]models.HourCount), args.Error(1)
}

func (m *MockCheckIns) CountByMethod(ctx context.Context, gymID uuid.UUID, from, to time.Time) (map[models.CheckInMethod]int64, error) {
	args := m.Called(ctx, gymID, from, to)
	return args.Get(0).(map[models.CheckInMethod]int64), args.Error(1)
}

func (m *MockCheckIns) TodayAttendance(ctx context.Context, gymID uuid.UUID) (int64, error) {
	args := m.Called(ctx, gymID)
	return args.Get(0).(int64), args.Error(1)
}

type MockAnalytics struct {
	mock.Mock
}

func (m *MockAnalytics) GetDashboardStats(ctx context.Context, gymID uuid.UUID) (*analytics.Rollup, error) {
	args := m.Called(ctx, gymID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analytics.Rollup), args.Error(1)
}

func (m *MockAnalytics) Compute(ctx context.Context, gymID uuid.UUID, start, end time.Time) (*analytics.Rollup, error) {
	args := m.Called(ctx, gymID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analytics.Rollup), args.Error(1)
}

func (m *MockAnalytics) GenerateSnapshot(ctx context.Context, gymID uuid.UUID, period models.SnapshotPeriod, at time.Time) (*models.AnalyticsSnapshot, error) {
	args := m.Called(ctx, gymID, period, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AnalyticsSnapshot), args.Error(1)
}

func (m *MockAnalytics) ListSnapshots(ctx context.Context, gymID uuid.UUID, period models.SnapshotPeriod, from, to time.Time) ([]models.AnalyticsSnapshot, error) {
	args := m.Called(ctx, gymID, period, from, to)
	return args.Get(0).([]models.AnalyticsSnapshot), args.Error(1)
}

type MockLimits struct {
	mock.Mock
}

func (m *MockLimits) Evaluate(ctx context.Context, gymID uuid.UUID) (limits.Evaluation, error) {
	args := m.Called(ctx, gymID)
	return args.Get(0).(limits.Evaluation), args.Error(1)
}
