package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crossposter",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	pollRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crossposter",
			Name:      "poll_runs_total",
			Help:      "Poll cycles by source platform.",
		},
		[]string{"platform"},
	)

	itemsFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crossposter",
			Name:      "items_fetched_total",
			Help:      "Source items fetched by platform.",
		},
		[]string{"platform"},
	)

	dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crossposter",
			Name:      "dispatches_total",
			Help:      "Dispatch outcomes by target platform and status.",
		},
		[]string{"platform", "status"},
	)

	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crossposter",
			Name:      "dispatch_duration_seconds",
			Help:      "Dispatch latency by target platform.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"platform"},
	)

	tokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crossposter",
			Name:      "token_refreshes_total",
			Help:      "OAuth token refreshes by platform and outcome.",
		},
		[]string{"platform", "outcome"},
	)

	duplicatesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crossposter",
			Name:      "duplicates_dropped_total",
			Help:      "Items dropped by the marker repository or queue dedup.",
		},
		[]string{"reason"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			pollRuns,
			itemsFetched,
			dispatches,
			dispatchDuration,
			tokenRefreshes,
			duplicatesDropped,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncPollRun counts one poll cycle for a source platform.
func IncPollRun(platform string) {
	pollRuns.WithLabelValues(platform).Inc()
}

// AddItemsFetched counts fetched source items.
func AddItemsFetched(platform string, n int) {
	itemsFetched.WithLabelValues(platform).Add(float64(n))
}

// IncDispatch counts one dispatch outcome.
func IncDispatch(platform, status string) {
	dispatches.WithLabelValues(platform, status).Inc()
}

// ObserveDispatch records dispatch latency in seconds.
func ObserveDispatch(platform string, seconds float64) {
	dispatchDuration.WithLabelValues(platform).Observe(seconds)
}

// IncTokenRefresh counts one token rotation attempt.
func IncTokenRefresh(platform, outcome string) {
	tokenRefreshes.WithLabelValues(platform, outcome).Inc()
}

// IncDuplicateDropped counts one deduplicated item.
func IncDuplicateDropped(reason string) {
	duplicatesDropped.WithLabelValues(reason).Inc()
}
