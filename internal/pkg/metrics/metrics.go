package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "siteintel",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "siteintel",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "siteintel",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Resolution metrics
	GeocodeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "siteintel",
		Subsystem: "geocode",
		Name:      "requests_total",
		Help:      "Total geocode resolutions by provider and outcome",
	}, []string{"provider", "outcome"})

	GeocodeCostUSD = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "siteintel",
		Subsystem: "geocode",
		Name:      "cost_usd_total",
		Help:      "Accumulated billed geocoding cost in USD",
	}, []string{"provider"})

	GeocodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "siteintel",
		Subsystem: "geocode",
		Name:      "provider_duration_seconds",
		Help:      "Latency of geocoding provider calls",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
	}, []string{"provider"})

	AutocompleteSessions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "siteintel",
		Subsystem: "geocode",
		Name:      "autocomplete_sessions_total",
		Help:      "Autocomplete billing sessions started",
	})

	ExtractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "siteintel",
		Subsystem: "extract",
		Name:      "documents_total",
		Help:      "Survey documents processed by text source",
	}, []string{"source"})

	MatchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "siteintel",
		Subsystem: "match",
		Name:      "outcomes_total",
		Help:      "Candidate match results by status",
	}, []string{"status"})

	MatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "siteintel",
		Subsystem: "match",
		Name:      "duration_seconds",
		Help:      "Duration of a full candidate match",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10},
	})

	CalibrationResidual = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "siteintel",
		Subsystem: "calibration",
		Name:      "rms_error_meters",
		Help:      "RMS residual of solved survey calibrations",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100},
	})

	GateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "siteintel",
		Subsystem: "gate",
		Name:      "transitions_total",
		Help:      "Selection gate transitions by target state or rejection reason",
	}, []string{"result"})

	ParcelLocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "siteintel",
		Subsystem: "gate",
		Name:      "locks_total",
		Help:      "Parcels locked by input method",
	}, []string{"input_method"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "siteintel",
		Subsystem: "gate",
		Name:      "active_sessions",
		Help:      "Open selection sessions",
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "siteintel",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "siteintel",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "siteintel",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "siteintel",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "siteintel",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "siteintel",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

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
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// PoolStat is the subset of pgxpool.Stat the pool gauges read.
type PoolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
}

// UpdateDBPoolMetrics copies pool stats into the pool gauges.
func UpdateDBPoolMetrics(s PoolStat) {
	DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
	DBPoolConnsIdle.Set(float64(s.IdleConns()))
	DBPoolConnsOpen.Set(float64(s.TotalConns()))
}
