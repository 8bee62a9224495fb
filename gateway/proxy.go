package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

const (
	upstreamTimeout      = 30 * time.Second
	breakerMaxFailures   = 5
	breakerResetTimeout  = 30 * time.Second
	healthCheckTimeout   = 3 * time.Second
	errUpstreamStatusMin = http.StatusInternalServerError
)

// Hop-by-hop headers are never forwarded.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// ServiceClient forwards requests to one backend service behind a circuit
// breaker.
type ServiceClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	breaker    *utils.CircuitBreaker
}

// ServiceClients holds all service clients
type ServiceClients struct {
	GymService    *ServiceClient
	TenantService *ServiceClient
}

func NewServiceClient(name, baseURL string) *ServiceClient {
	return &ServiceClient{
		name:    name,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: upstreamTimeout,
		},
		breaker: utils.NewCircuitBreaker(name, breakerMaxFailures, breakerResetTimeout),
	}
}

type upstreamResponse struct {
	status int
	header http.Header
	body   []byte
}

var errUpstreamStatus = errors.New("upstream returned server error")

// ProxyRequest proxies the request to the service, keeping path and query.
func (sc *ServiceClient) ProxyRequest(c *gin.Context) {
	targetURL := sc.baseURL + c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		targetURL += "?" + c.Request.URL.RawQuery
	}

	var bodyBytes []byte
	if c.Request.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(c.Request.Body)
		if err != nil {
			utils.BadRequestResponse(c, "Failed to read request body")
			return
		}
	}

	var resp upstreamResponse
	err := sc.breaker.Execute(c.Request.Context(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, c.Request.Method, targetURL, bytes.NewReader(bodyBytes))
		if err != nil {
			return err
		}
		copyHeaders(req.Header, c.Request.Header)
		if userID, ok := c.Get("user_id"); ok {
			req.Header.Set("X-User-ID", userID.(string))
		}
		if role, ok := c.Get("role"); ok {
			req.Header.Set("X-User-Role", role.(string))
		}
		if tenantID, ok := c.Get("tenant_id"); ok {
			req.Header.Set("X-Tenant-ID", tenantID.(string))
		}
		req.Header.Set("X-Forwarded-For", c.ClientIP())

		r, err := sc.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer r.Body.Close()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		resp = upstreamResponse{status: r.StatusCode, header: r.Header, body: body}
		if r.StatusCode >= errUpstreamStatusMin {
			return errUpstreamStatus
		}
		return nil
	})

	switch {
	case err == nil, errors.Is(err, errUpstreamStatus):
		for key, values := range resp.header {
			if hopHeaders[key] {
				continue
			}
			for _, value := range values {
				c.Header(key, value)
			}
		}
		c.Data(resp.status, resp.header.Get("Content-Type"), resp.body)
	case errors.Is(err, utils.ErrCircuitOpen), errors.Is(err, utils.ErrTooManyRequests):
		logrus.WithField("service", sc.name).Warn("Circuit open, rejecting request")
		utils.ServiceUnavailableResponse(c, "Service temporarily unavailable, please retry")
	default:
		logrus.WithFields(logrus.Fields{"service": sc.name, "path": c.Request.URL.Path}).
			WithError(err).Error("Failed to communicate with service")
		utils.ErrorResponse(c, http.StatusBadGateway, "Failed to communicate with service")
	}
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if hopHeaders[key] {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// HealthCheck checks if a service is healthy
func (sc *ServiceClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sc.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned status %d", resp.StatusCode)
	}
	return nil
}

// GetServiceStatus reports health and breaker state for every service.
func (scs *ServiceClients) GetServiceStatus(ctx context.Context) map[string]interface{} {
	status := make(map[string]interface{})
	for _, sc := range []*ServiceClient{scs.GymService, scs.TenantService} {
		entry := map[string]interface{}{
			"healthy": true,
			"breaker": sc.breaker.Snapshot(),
		}
		if err := sc.HealthCheck(ctx); err != nil {
			entry["healthy"] = false
			entry["error"] = err.Error()
		}
		status[sc.name] = entry
	}
	return status
}
