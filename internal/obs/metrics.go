package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)
)

// Borrow-workflow metrics.
var (
	borrowsGranted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "borrows_granted_total",
		Help: "New loans created with a successfully issued access link.",
	})

	borrowsReused = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "borrows_reused_total",
		Help: "Borrow requests resolved against an existing active loan.",
	})

	borrowsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "borrows_expired_total",
		Help: "Borrow requests that found a stale loan past its due date.",
	})

	borrowCompensations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "borrow_compensations_total",
			Help: "Compensating loan deletes after a failed credential issue.",
		},
		[]string{"outcome"}, // ok | failed
	)

	loansSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loans_swept_total",
		Help: "Overdue loans transitioned to expired by the sweep worker.",
	})

	loansReconciled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loans_reconciled_total",
		Help: "Orphaned active loans removed by the reconciliation sweep.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		borrowsGranted, borrowsReused, borrowsExpired, borrowCompensations,
		loansSwept, loansReconciled,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// BorrowGranted increments the new-loan counter.
func BorrowGranted() { borrowsGranted.Inc() }

// BorrowReused increments the existing-loan counter.
func BorrowReused() { borrowsReused.Inc() }

// BorrowExpired increments the stale-loan counter.
func BorrowExpired() { borrowsExpired.Inc() }

// BorrowCompensated records a compensating delete and whether it succeeded.
func BorrowCompensated(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	borrowCompensations.WithLabelValues(outcome).Inc()
}

// LoansSwept adds the number of loans a sweep run expired.
func LoansSwept(n int64) { loansSwept.Add(float64(n)) }

// LoansReconciled adds the number of orphaned loans a reconcile run removed.
func LoansReconciled(n int64) { loansReconciled.Add(float64(n)) }

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses resource identifiers so metric labels stay bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for _, prefix := range []string{"books", "loans", "reviews", "users"} {
		for i := 0; i < len(segments)-1; i++ {
			if segments[i] == prefix && segments[i+1] != "" {
				segments[i+1] = ":id"
				break
			}
		}
	}
	return strings.Join(segments, "/")
}

// statusWriter is a local copy so we can record the response code.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE responses streaming through the instrumented wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
