package metricsx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	kafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag by topic.",
		},
		[]string{"topic", "group"},
	)
	influxWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "influx_write_failures_total",
			Help: "Total InfluxDB write failures.",
		},
	)
	patrolSessionStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patrol_session_starts_total",
			Help: "Total patrol session start attempts by outcome.",
		},
		[]string{"outcome"},
	)
	geofenceDistance = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geofence_checkin_distance_meters",
			Help:    "Measured distance between device fix and post at check-in.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)
	evidenceUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patrol_evidence_uploads_total",
			Help: "Total evidence photo uploads by outcome.",
		},
		[]string{"outcome"},
	)
	stockDeltaRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_delta_rejections_total",
			Help: "Total stock adjustments rejected for insufficient stock.",
		},
	)
	lowStockItems = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stock_items_below_minimum",
			Help: "Number of stock items at or below their minimum threshold.",
		},
	)
	blobStoreFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blob_store_failures_total",
			Help: "Total blob store write failures.",
		},
	)
	asynqQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asynq_queue_depth",
			Help: "Asynq queue depth by queue.",
		},
		[]string{"queue"},
	)
)

func Register() {
	prometheus.MustRegister(
		httpRequests,
		httpLatency,
		kafkaConsumerLag,
		influxWriteFailures,
		patrolSessionStarts,
		geofenceDistance,
		evidenceUploads,
		stockDeltaRejections,
		lowStockItems,
		blobStoreFailures,
		asynqQueueDepth,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		status := strconv.Itoa(lrw.statusCode)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpLatency.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

func SetKafkaLag(topic string, group string, lag int64) {
	kafkaConsumerLag.WithLabelValues(topic, group).Set(float64(lag))
}

func IncInfluxWriteFailure() {
	influxWriteFailures.Inc()
}

func IncPatrolSessionStart(outcome string) {
	patrolSessionStarts.WithLabelValues(outcome).Inc()
}

func ObserveGeofenceDistance(meters float64) {
	geofenceDistance.Observe(meters)
}

func IncEvidenceUpload(outcome string) {
	evidenceUploads.WithLabelValues(outcome).Inc()
}

func IncStockDeltaRejection() {
	stockDeltaRejections.Inc()
}

func SetLowStockItems(count int) {
	lowStockItems.Set(float64(count))
}

func IncBlobStoreFailure() {
	blobStoreFailures.Inc()
}

func SetAsynqQueueDepth(queue string, depth int) {
	asynqQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
