package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)

	// Dispatch
	newslettersDispatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "newsletters_dispatched_total",
			Help: "Total number of newsletters whose dispatch completed.",
		},
	)
	dispatchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "newsletter_dispatch_failures_total",
			Help: "Total number of newsletters whose dispatch failed as a whole.",
		},
	)
	dispatchLagSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "newsletter_dispatch_lag_seconds",
			Help:    "Lag between scheduled time and dispatch start (seconds).",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)
	dueCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "newsletters_due_count",
			Help: "Number of due newsletters seen by the last scheduler tick.",
		},
	)
	messageStateCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "newsletter_state_count",
			Help: "Current count of newsletters by lifecycle state.",
		},
		[]string{"state"},
	)

	// Deliveries
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveries_total",
			Help: "Total number of per-recipient delivery attempts by outcome.",
		},
		[]string{"outcome"},
	)
	deliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "delivery_duration_seconds",
			Help:    "Time spent on a single recipient delivery (seconds).",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Redis
	redisRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_requests_total",
			Help: "Total number of redis cache operations.",
		},
		[]string{"operation"},
	)
	redisErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_errors_total",
			Help: "Total number of redis cache errors.",
		},
		[]string{"operation"},
	)
	redisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_request_duration_seconds",
			Help:    "Redis operation duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	redisKeys = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "redis_keys_count",
			Help: "Current number of keys in the cache database.",
		},
	)

	// Kafka
	kafkaEventsPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kafka_events_published_total",
			Help: "Total number of dispatch events published to Kafka.",
		},
	)
	kafkaErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_errors_total",
			Help: "Total number of Kafka-related errors.",
		},
		[]string{"component", "operation"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,

			newslettersDispatched,
			dispatchFailures,
			dispatchLagSeconds,
			dueCount,
			messageStateCount,

			deliveries,
			deliveryDuration,

			redisRequests,
			redisErrors,
			redisDuration,
			redisKeys,

			kafkaEventsPublished,
			kafkaErrors,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// --- HTTP ---

func ObserveHTTPRequest(method, route, code string, d time.Duration) {
	httpRequests.WithLabelValues(method, route, code).Inc()
	httpDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
}

// --- Dispatch ---

func IncDispatched()     { newslettersDispatched.Inc() }
func IncDispatchFailed() { dispatchFailures.Inc() }
func ObserveDispatchLag(sec float64) {
	if sec < 0 {
		sec = 0
	}
	dispatchLagSeconds.Observe(sec)
}
func SetDueCount(n int) { dueCount.Set(float64(max0(n))) }
func SetMessageStateCount(state string, n int64) {
	messageStateCount.WithLabelValues(state).Set(float64(n))
}

// --- Deliveries ---

func IncDelivery(outcome string)                { deliveries.WithLabelValues(outcome).Inc() }
func ObserveDeliveryDuration(d time.Duration)   { deliveryDuration.Observe(d.Seconds()) }

// --- Redis ---

func IncRedisRequest(op string) { redisRequests.WithLabelValues(op).Inc() }
func IncRedisError(op string)   { redisErrors.WithLabelValues(op).Inc() }
func ObserveRedisDuration(op string, d time.Duration) {
	redisDuration.WithLabelValues(op).Observe(d.Seconds())
}
func SetRedisKeysCount(n int64) {
	if n < 0 {
		n = 0
	}
	redisKeys.Set(float64(n))
}

// --- Kafka ---

func IncKafkaPublished() { kafkaEventsPublished.Inc() }
func IncKafkaError(component, operation string) {
	kafkaErrors.WithLabelValues(component, operation).Inc()
}

func fmtInt(v int64) string { return strconv.FormatInt(v, 10) }

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
