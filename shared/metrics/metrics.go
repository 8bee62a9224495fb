package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gym_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gym_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	StudentTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gym_student_transitions_total",
			Help: "Membership state transitions by kind",
		},
		[]string{"transition"},
	)

	QuotaRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gym_quota_rejections_total",
			Help: "Operations rejected because the gym reached its student limit",
		},
	)

	CheckInsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gym_checkins_total",
			Help: "Check-in attempts by method and result",
		},
		[]string{"method", "result"},
	)

	SweepExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gym_sweep_expired_total",
			Help: "Memberships expired by the sweep",
		},
	)

	SweepFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gym_sweep_failures_total",
			Help: "Students the sweep failed to expire",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gym_events_published_total",
			Help: "Lifecycle events by type and outcome",
		},
		[]string{"type", "status"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gym_notifications_total",
			Help: "Notification deliveries by event type and status",
		},
		[]string{"type", "status"},
	)

	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gym_scheduled_job_runs_total",
			Help: "Scheduled job executions by job and result",
		},
		[]string{"job", "result"},
	)

	DashboardCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gym_dashboard_cache_total",
			Help: "Dashboard cache lookups by result",
		},
		[]string{"result"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordTransition(transition string) {
	StudentTransitionsTotal.WithLabelValues(transition).Inc()
}

func RecordQuotaRejection() {
	QuotaRejectionsTotal.Inc()
}

func RecordCheckIn(method, result string) {
	CheckInsTotal.WithLabelValues(method, result).Inc()
}

func RecordSweep(expired, failed int) {
	SweepExpiredTotal.Add(float64(expired))
	SweepFailuresTotal.Add(float64(failed))
}

func RecordNotification(eventType, status string) {
	NotificationsTotal.WithLabelValues(eventType, status).Inc()
}

func RecordJobRun(job, result string) {
	JobRunsTotal.WithLabelValues(job, result).Inc()
}

func RecordDashboardCache(hit bool) {
	if hit {
		DashboardCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	DashboardCacheTotal.WithLabelValues("miss").Inc()
}

// Middleware records request counts and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
