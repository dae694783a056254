package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:      "request_latency",
			Subsystem: "tidedash",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.2, 0.4, 0.8, 1.0, 2.0, 4.0, 8.0, 16.0, 32.0},
		},
		[]string{"verb", "path", "code"},
	)

	// UpstreamRequests counts data source requests by metric and outcome
	// ("ok" or "error").
	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "upstream_requests_total",
			Subsystem: "tidedash",
			Help:      "Upstream data requests by metric and outcome.",
		},
		[]string{"metric", "outcome"},
	)

	// StaleResponses counts responses discarded because the coordinate
	// changed while they were in flight.
	StaleResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "stale_responses_total",
			Subsystem: "tidedash",
			Help:      "Upstream responses discarded as stale.",
		},
		[]string{"metric"},
	)

	ChartInstances = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:      "chart_instances_created_total",
			Subsystem: "tidedash",
			Help:      "Chart instances created.",
		},
	)

	ChartRedraws = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:      "chart_redraws_total",
			Subsystem: "tidedash",
			Help:      "Chart updates pushed into a live instance.",
		},
	)

	DroppedSamples = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:      "dropped_samples_total",
			Subsystem: "tidedash",
			Help:      "Samples skipped during alignment for malformed timestamps.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		requestLatency,
		UpstreamRequests,
		StaleResponses,
		ChartInstances,
		ChartRedraws,
		DroppedSamples,
	)
}

func ObserveRequestLatency(verb, path, code string, latency float64) {
	requestLatency.With(prometheus.Labels{
		"code": code,
		"verb": verb,
		"path": path,
	}).Observe(latency)
}

// ObserveUpstream records the outcome of one upstream request.
func ObserveUpstream(metric string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	UpstreamRequests.WithLabelValues(metric, outcome).Inc()
}

func LatencyHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := time.Now()
		verb := r.Method
		path := ""
		if r.URL != nil {
			path = r.URL.Path
		}
		rec := &statusRecorder{ResponseWriter: w}

		// Defer metric observing. Any panics in next are reported as 500 errors
		// and then re-thrown.
		defer func() {
			if err := recover(); err != nil {
				ObserveRequestLatency(verb, path, "500", time.Since(t).Seconds())
				panic(err)
			}
			ObserveRequestLatency(verb, path, rec.code(), time.Since(t).Seconds())
		}()

		next.ServeHTTP(rec, r)
	})
}

// statusRecorder remembers the status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) code() string {
	if r.status == 0 {
		// Nothing written, will be set to 200 by stdlib.
		return "200"
	}
	return strconv.Itoa(r.status)
}
