package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/Mortvola/tracker/internal/core/domain"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tracker",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tracker",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Refresh metrics
	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tracker",
		Subsystem: "refresh",
		Name:      "duration_seconds",
		Help:      "Duration of incident refresh cycles",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	RefreshCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "refresh",
		Name:      "cycles_total",
		Help:      "Total refresh cycles by result",
	}, []string{"result"})

	FeaturesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "refresh",
		Name:      "features_processed_total",
		Help:      "Fetched incidents by outcome",
	}, []string{"outcome"})

	VersionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "refresh",
		Name:      "versions_closed_total",
		Help:      "Open versions closed because the incident left the feed",
	})

	PerimeterCarryForwards = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "refresh",
		Name:      "perimeter_carry_forwards_total",
		Help:      "Perimeters carried forward because the upstream returned none",
	})

	NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "refresh",
		Name:      "notifications_failed_total",
		Help:      "Change notifications that could not be published",
	})

	LastRefresh = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracker",
		Subsystem: "refresh",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last successful refresh cycle",
	})

	// Upstream metrics
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Requests to the incident feed by endpoint and status",
	}, []string{"endpoint", "status"})

	UpstreamRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "upstream",
		Name:      "records_rejected_total",
		Help:      "Upstream records rejected during validation",
	}, []string{"reason"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracker",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracker",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracker",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracker",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// ObserveCycle records the outcome of one refresh cycle. A nil report marks
// a failed cycle.
func ObserveCycle(r *domain.CycleReport, took time.Duration) {
	RefreshDuration.Observe(took.Seconds())
	if r == nil {
		RefreshCycles.WithLabelValues("error").Inc()
		return
	}

	RefreshCycles.WithLabelValues("ok").Inc()
	LastRefresh.Set(float64(r.RefreshedAt.Unix()))

	for outcome, n := range map[string]int{
		"added":        r.Added,
		"updated":      r.Updated,
		"unchanged":    r.Unchanged,
		"skipped":      r.Skipped,
		"out_of_range": r.OutOfRange,
	} {
		FeaturesProcessed.WithLabelValues(outcome).Add(float64(n))
	}
	VersionsClosed.Add(float64(r.Closed))
	PerimeterCarryForwards.Add(float64(r.PerimeterCarryForwards))
	NotificationsFailed.Add(float64(r.NotificationsFailed))
}

// KeyOperation reduces a cache key to its leading segment ("distance",
// "trails", ...) for use as a label.
func KeyOperation(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "other"
}

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics updates database pool gauges from a pool stat value.
func UpdateDBPoolMetrics(stat interface{}) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
