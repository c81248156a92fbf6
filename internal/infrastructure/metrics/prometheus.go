// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gocompress"

var (
	// CompressionAttemptsTotal tracks encoder attempts.
	// Labels:
	//   - tier: HIGH, MEDIUM, LOW, VERY_LOW, ULTRA_LOW
	//   - outcome: success, retry, failure, cancelled
	CompressionAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compression_attempts_total",
			Help:      "Total number of encoder attempts",
		},
		[]string{"tier", "outcome"},
	)

	CompressionRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compression_retries_total",
			Help:      "Total number of retries at a degraded tier",
		},
	)

	// CompressionFallbacksTotal counts requests where the output was
	// discarded in favour of the original.
	CompressionFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compression_fallbacks_total",
			Help:      "Total number of compressions that kept the original file",
		},
	)

	// CompressionDuration observes the wall time of complete requests.
	// Labels:
	//   - result: completed, failed, cancelled
	CompressionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compression_duration_seconds",
			Help:      "Duration of compression requests",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"result"},
	)

	// CapabilityChecksTotal tracks capability assessments.
	// Labels:
	//   - result: capable, incapable, cached
	CapabilityChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_checks_total",
			Help:      "Total number of device capability assessments",
		},
		[]string{"result"},
	)

	// HTTPRequestsTotal tracks served requests.
	// Labels:
	//   - method: GET, POST, DELETE
	//   - status: HTTP status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// CacheOperationsTotal tracks cache operations (get, set, delete).
	// Labels:
	//   - operation: get, set, delete
	//   - status: hit, miss, success, error
	//   - cache_type: redis
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status", "cache_type"},
	)

	// DBQueriesTotal tracks database queries.
	// Labels:
	//   - query_type: select, insert, update
	//   - table: jobs
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_queries_total",
			Help:      "Total number of database queries",
		},
		[]string{"query_type", "table"},
	)

	// SingleflightRequestsTotal tracks singleflight behavior.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)
)

// Attempt outcome constants.
const (
	OutcomeSuccess   = "success"
	OutcomeRetry     = "retry"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"
)

// Request result constants.
const (
	ResultCompleted = "completed"
	ResultFailed    = "failed"
	ResultCancelled = "cancelled"
)

// Capability result constants.
const (
	CapabilityCapable   = "capable"
	CapabilityIncapable = "incapable"
	CapabilityCached    = "cached"
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
)

// Cache type constants.
const (
	CacheTypeRedis = "redis"
)

// DB query type constants.
const (
	DBQuerySelect = "select"
	DBQueryInsert = "insert"
	DBQueryUpdate = "update"
)

// Table name constants.
const (
	TableJobs = "jobs"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)

// DBPoolStats is the subset of pool statistics exported as gauges.
type DBPoolStats struct {
	Acquired int32
	Idle     int32
	Total    int32
}

// RegisterDBPool registers gauges that call stat on every scrape.
// Call it once per process.
func RegisterDBPool(stat func() DBPoolStats) {
	gauge := func(name, help string, pick func(DBPoolStats) int32) {
		promauto.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      name,
				Help:      help,
			},
			func() float64 { return float64(pick(stat())) },
		)
	}

	gauge("db_pool_acquired_connections", "Connections currently in use", func(s DBPoolStats) int32 { return s.Acquired })
	gauge("db_pool_idle_connections", "Idle connections in the pool", func(s DBPoolStats) int32 { return s.Idle })
	gauge("db_pool_total_connections", "Total connections in the pool", func(s DBPoolStats) int32 { return s.Total })
}
