package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/gym-tenant-system/shared/apperr"
	"github.com/pavitra93/gym-tenant-system/shared/limits"
	"github.com/pavitra93/gym-tenant-system/shared/middleware"
	"github.com/pavitra93/gym-tenant-system/shared/models"
	"github.com/pavitra93/gym-tenant-system/shared/tenants"
)

type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) gym(args mock.Arguments) (*models.Gym, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Gym), args.Error(1)
}

func (m *MockRegistry) plan(args mock.Arguments) (*models.SubscriptionPlan, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SubscriptionPlan), args.Error(1)
}

func (m *MockRegistry) CreateGym(ctx context.Context, in tenants.GymInput) (*models.Gym, error) {
	return m.gym(m.Called(ctx, in))
}

func (m *MockRegistry) GetGym(ctx context.Context, gymID uuid.UUID) (*models.Gym, error) {
	return m.gym(m.Called(ctx, gymID))
}

func (m *MockRegistry) ListGyms(ctx context.Context, activeOnly bool, page models.PageRequest) (models.Page[models.Gym], error) {
	args := m.Called(ctx, activeOnly, page)
	return args.Get(0).(models.Page[models.Gym]), args.Error(1)
}

func (m *MockRegistry) UpdateGym(ctx context.Context, gymID uuid.UUID, p tenants.GymPatch) (*models.Gym, error) {
	return m.gym(m.Called(ctx, gymID, p))
}

func (m *MockRegistry) ChangeSubscription(ctx context.Context, gymID, planID uuid.UUID) (*models.Gym, error) {
	return m.gym(m.Called(ctx, gymID, planID))
}

func (m *MockRegistry) DeactivateGym(ctx context.Context, gymID uuid.UUID) (*models.Gym, error) {
	return m.gym(m.Called(ctx, gymID))
}

func (m *MockRegistry) Limits(ctx context.Context, gymID uuid.UUID) (limits.Evaluation, error) {
	args := m.Called(ctx, gymID)
	return args.Get(0).(limits.Evaluation), args.Error(1)
}

func (m *MockRegistry) CreateSubscriptionPlan(ctx context.Context, in tenants.SubscriptionPlanInput) (*models.SubscriptionPlan, error) {
	return m.plan(m.Called(ctx, in))
}

func (m *MockRegistry) GetSubscriptionPlan(ctx context.Context, planID uuid.UUID) (*models.SubscriptionPlan, error) {
	return m.plan(m.Called(ctx, planID))
}

func (m *MockRegistry) ListSubscriptionPlans(ctx context.Context, activeOnly bool) ([]models.SubscriptionPlan, error) {
	args := m.Called(ctx, activeOnly)
	return args.Get(0).([]models.SubscriptionPlan), args.Error(1)
}

func (m *MockRegistry) UpdateSubscriptionPlan(ctx context.Context, planID uuid.UUID, p tenants.SubscriptionPlanPatch) (*models.SubscriptionPlan, error) {
	return m.plan(m.Called(ctx, planID, p))
}

var secret = []byte("tenant-test-secret")

func setup(t *testing.T) (*gin.Engine, *MockRegistry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	am, err := middleware.NewAuthMiddleware(middleware.AuthConfig{Secret: secret, Logger: logger})
	require.NoError(t, err)
	reg := &MockRegistry{}
	return newRouter(reg, am, nil), reg
}

func token(t *testing.T, role models.UserRole, gymID *uuid.UUID) string {
	t.Helper()
	claims := middleware.Claims{
		Role:             string(role),
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	if gymID != nil {
		claims.TenantID = gymID.String()
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return s
}

func call(r http.Handler, method, path, tok string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateGymAdminOnly(t *testing.T) {
	r, reg := setup(t)
	gymID := uuid.New()
	in := tenants.GymInput{Name: "Iron Temple", Timezone: "America/Argentina/Cordoba"}

	w := call(r, http.MethodPost, "/tenants", token(t, models.RoleGymOwner, &gymID), in)
	assert.Equal(t, http.StatusForbidden, w.Code)

	reg.On("CreateGym", mock.Anything, in).Return(&models.Gym{ID: gymID, Name: in.Name, Timezone: in.Timezone, IsActive: true}, nil).Once()
	w = call(r, http.MethodPost, "/tenants", token(t, models.RoleAdmin, nil), in)
	assert.Equal(t, http.StatusCreated, w.Code)
	reg.AssertExpectations(t)
}

func TestOwnerManagesOwnGymOnly(t *testing.T) {
	r, reg := setup(t)
	gymID, other := uuid.New(), uuid.New()
	owner := token(t, models.RoleGymOwner, &gymID)
	tz := "Europe/Madrid"
	patch := tenants.GymPatch{Timezone: &tz}

	reg.On("UpdateGym", mock.Anything, gymID, patch).Return(&models.Gym{ID: gymID, Timezone: tz}, nil).Once()
	assert.Equal(t, http.StatusOK, call(r, http.MethodPut, "/tenants/"+gymID.String(), owner, patch).Code)
	assert.Equal(t, http.StatusForbidden, call(r, http.MethodPut, "/tenants/"+other.String(), owner, patch).Code)

	staff := token(t, models.RoleStaff, &gymID)
	assert.Equal(t, http.StatusForbidden, call(r, http.MethodPut, "/tenants/"+gymID.String(), staff, patch).Code)
	reg.AssertExpectations(t)
}

func TestChangeSubscriptionOverQuota(t *testing.T) {
	r, reg := setup(t)
	gymID, planID := uuid.New(), uuid.New()
	reg.On("ChangeSubscription", mock.Anything, gymID, planID).
		Return(nil, apperr.ErrQuotaExceeded.WithMessage("gym has 12 active students, plan allows 10")).Once()

	w := call(r, http.MethodPut, "/tenants/"+gymID.String()+"/subscription", token(t, models.RoleAdmin, nil),
		ChangeSubscriptionRequest{SubscriptionPlanID: planID})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "plan allows 10")
}

func TestLimitsForStaff(t *testing.T) {
	r, reg := setup(t)
	gymID := uuid.New()
	reg.On("Limits", mock.Anything, gymID).Return(limits.Evaluation{CurrentActiveStudents: 4}, nil).Once()

	w := call(r, http.MethodGet, "/tenants/"+gymID.String()+"/limits", token(t, models.RoleStaff, &gymID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"remaining":-1`)
}

func TestSubscriptionPlanListing(t *testing.T) {
	r, reg := setup(t)
	gymID := uuid.New()

	reg.On("ListSubscriptionPlans", mock.Anything, true).Return([]models.SubscriptionPlan{}, nil).Once()
	w := call(r, http.MethodGet, "/subscription-plans?active_only=false", token(t, models.RoleGymOwner, &gymID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	reg.On("ListSubscriptionPlans", mock.Anything, false).Return([]models.SubscriptionPlan{}, nil).Once()
	w = call(r, http.MethodGet, "/subscription-plans?active_only=false", token(t, models.RoleAdmin, nil), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	reg.AssertExpectations(t)
}

func TestDeactivateUnknownGym(t *testing.T) {
	r, reg := setup(t)
	gymID := uuid.New()
	reg.On("DeactivateGym", mock.Anything, gymID).Return(nil, apperr.ErrTenantNotFound).Once()

	w := call(r, http.MethodDelete, "/tenants/"+gymID.String(), token(t, models.RoleAdmin, nil), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, http.StatusBadRequest, call(r, http.MethodDelete, "/tenants/xyz", token(t, models.RoleAdmin, nil), nil).Code)
}
