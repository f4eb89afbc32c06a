package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	observationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_observations_total",
			Help: "Payment observations applied, by outcome",
		},
		[]string{"outcome"},
	)

	ordersExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_expired_total",
			Help: "Orders expired by the sweep",
		},
	)

	deedsIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deeds_issued_total",
			Help: "Deeds issued",
		},
	)

	mintsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nft_mints_total",
			Help: "NFT mint attempts, by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(observationsTotal)
	prometheus.MustRegister(ordersExpiredTotal)
	prometheus.MustRegister(deedsIssuedTotal)
	prometheus.MustRegister(mintsTotal)
}

func RecordObservation(outcome string) {
	observationsTotal.WithLabelValues(outcome).Inc()
}

func RecordExpired(n int) {
	ordersExpiredTotal.Add(float64(n))
}

func RecordDeedIssued() {
	deedsIssuedTotal.Inc()
}

func RecordMint(result string) {
	mintsTotal.WithLabelValues(result).Inc()
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency per method/path.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}
