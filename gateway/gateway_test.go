package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/gym-tenant-system/shared/middleware"
)

var testSecret = []byte("gateway-test-secret")

type echoed struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Query  string `json:"query"`
	Body   string `json:"body"`
	Tenant string `json:"tenant"`
	Role   string `json:"role"`
	Auth   string `json:"auth"`
}

func echoBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(echoed{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Body:   string(body),
			Tenant: r.Header.Get("X-Tenant-ID"),
			Role:   r.Header.Get("X-User-Role"),
			Auth:   r.Header.Get("Authorization"),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func token(t *testing.T, role string, tenant uuid.UUID) string {
	t.Helper()
	claims := middleware.Claims{
		Email:    "owner@example.com",
		TenantID: tenant.String(),
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return s
}

func newTestGateway(t *testing.T, gymURL, tenantURL string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	am, err := middleware.NewAuthMiddleware(middleware.AuthConfig{Secret: testSecret, Logger: logger})
	require.NoError(t, err)
	clients := &ServiceClients{
		GymService:    NewServiceClient("gym_service", gymURL),
		TenantService: NewServiceClient("tenant_service", tenantURL),
	}
	return newRouter(clients, am, middleware.NewRateLimiter(1000, 1000, time.Minute))
}

func do(router http.Handler, method, path, bearer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGatewayRequiresToken(t *testing.T) {
	router := newTestGateway(t, echoBackend(t).URL, echoBackend(t).URL)
	w := do(router, http.MethodGet, "/gyms/"+uuid.NewString()+"/students", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGatewayForwardsGymRoutes(t *testing.T) {
	gym := echoBackend(t)
	router := newTestGateway(t, gym.URL, echoBackend(t).URL)
	tenant := uuid.New()
	bearer := token(t, "gym_owner", tenant)

	w := do(router, http.MethodGet, "/gyms/"+tenant.String()+"/students?page=2&status=active", bearer, "")
	require.Equal(t, http.StatusOK, w.Code)

	var got echoed
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/gyms/"+tenant.String()+"/students", got.Path)
	assert.Equal(t, "page=2&status=active", got.Query)
	assert.Equal(t, tenant.String(), got.Tenant)
	assert.Equal(t, "gym_owner", got.Role)
	assert.Equal(t, "Bearer "+bearer, got.Auth)
}

func TestGatewayForwardsTenantRoutes(t *testing.T) {
	tenants := echoBackend(t)
	router := newTestGateway(t, echoBackend(t).URL, tenants.URL)
	bearer := token(t, "admin", uuid.New())

	w := do(router, http.MethodPost, "/tenants", bearer, `{"name":"Iron Temple"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var got echoed
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "/tenants", got.Path)
	assert.Equal(t, `{"name":"Iron Temple"}`, got.Body)

	w = do(router, http.MethodGet, "/subscription-plans/"+uuid.NewString(), bearer, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, strings.HasPrefix(got.Path, "/subscription-plans/"))
}

func TestGatewayOpensBreakerOnServerErrors(t *testing.T) {
	calls := 0
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	router := newTestGateway(t, failing.URL, echoBackend(t).URL)
	tenant := uuid.New()
	bearer := token(t, "staff", tenant)
	path := "/gyms/" + tenant.String() + "/dashboard"

	for i := 0; i < breakerMaxFailures; i++ {
		w := do(router, http.MethodGet, path, bearer, "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	}
	w := do(router, http.MethodGet, path, bearer, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, breakerMaxFailures, calls)
}

func TestGatewayUnreachableService(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	url := down.URL
	down.Close()

	router := newTestGateway(t, url, echoBackend(t).URL)
	tenant := uuid.New()
	w := do(router, http.MethodGet, "/gyms/"+tenant.String()+"/plans", token(t, "staff", tenant), "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGatewayHealthAndCORS(t *testing.T) {
	router := newTestGateway(t, echoBackend(t).URL, echoBackend(t).URL)

	w := do(router, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodOptions, "/gyms/"+uuid.NewString()+"/students", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestGatewayStatusIsAdminOnly(t *testing.T) {
	router := newTestGateway(t, echoBackend(t).URL, echoBackend(t).URL)
	tenant := uuid.New()

	w := do(router, http.MethodGet, "/status", token(t, "gym_owner", tenant), "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(router, http.MethodGet, "/status", token(t, "admin", tenant), "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data map[string]struct {
			Healthy bool `json:"healthy"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data["gym_service"].Healthy)
	assert.True(t, resp.Data["tenant_service"].Healthy)
}
