package limits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/gym-tenant-system/shared/apperr"
	"github.com/pavitra93/gym-tenant-system/shared/clock"
	"github.com/pavitra93/gym-tenant-system/shared/models"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) GetGym(ctx context.Context, gymID uuid.UUID) (*models.Gym, error) {
	args := m.Called(ctx, gymID)
	if g := args.Get(0); g != nil {
		return g.(*models.Gym), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSource) CountActiveStudents(ctx context.Context, gymID uuid.UUID, now time.Time) (int64, error) {
	args := m.Called(ctx, gymID, now)
	return args.Get(0).(int64), args.Error(1)
}

func intPtr(v int) *int { return &v }

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		active int64
		max    *int
		over   bool
	}{
		{"unlimited", 10_000, nil, false},
		{"below", 9, intPtr(10), false},
		{"at limit", 10, intPtr(10), true},
		{"above", 12, intPtr(10), true},
		{"zero quota", 0, intPtr(0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Decide(tt.active, tt.max)
			assert.Equal(t, tt.over, e.OverLimit)
			assert.Equal(t, tt.active, e.CurrentActiveStudents)
		})
	}
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, int64(-1), Decide(3, nil).Remaining())
	assert.Equal(t, int64(7), Decide(3, intPtr(10)).Remaining())
	assert.Equal(t, int64(0), Decide(12, intPtr(10)).Remaining())
}

func TestExceeds(t *testing.T) {
	assert.False(t, Exceeds(10, intPtr(10)))
	assert.True(t, Exceeds(11, intPtr(10)))
	assert.False(t, Exceeds(11, nil))
}

func TestPolicyCountsAtServerTime(t *testing.T) {
	now := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	gymID := uuid.New()
	src := new(mockSource)
	src.On("GetGym", mock.Anything, gymID).Return(&models.Gym{
		ID:               gymID,
		SubscriptionPlan: &models.SubscriptionPlan{MaxStudents: intPtr(5)},
	}, nil)
	src.On("CountActiveStudents", mock.Anything, gymID, now).Return(int64(5), nil)

	p := NewPolicy(src, clock.NewManual(now))
	eval, err := p.Evaluate(context.Background(), gymID)
	require.NoError(t, err)
	assert.True(t, eval.OverLimit)

	_, err = p.Check(context.Background(), gymID)
	assert.True(t, errors.Is(err, apperr.ErrQuotaExceeded))
	src.AssertExpectations(t)
}

func TestPolicyGymNotFound(t *testing.T) {
	gymID := uuid.New()
	src := new(mockSource)
	src.On("GetGym", mock.Anything, gymID).Return(nil, apperr.ErrTenantNotFound)

	_, err := NewPolicy(src, nil).Evaluate(context.Background(), gymID)
	assert.True(t, errors.Is(err, apperr.ErrTenantNotFound))
	src.AssertNotCalled(t, "CountActiveStudents", mock.Anything, mock.Anything, mock.Anything)
}
