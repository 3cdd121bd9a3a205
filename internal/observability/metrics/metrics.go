package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acadium_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "acadium_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	invitationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acadium_invitations_created_total",
		Help: "Count of invitations persisted in pending state",
	})

	invitationsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acadium_invitations_accepted_total",
		Help: "Count of accepted invitations by path (link or reconciler backfill)",
	}, []string{"path"})

	invitationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acadium_invitations_expired_total",
		Help: "Count of pending invitations transitioned to expired",
	})

	dispatchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acadium_invitation_dispatch_failures_total",
		Help: "Count of invitation emails that failed to send and were rolled back",
	})

	reconcilerSweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "acadium_reconciler_sweep_duration_seconds",
		Help:    "Duration of reconciler sweeps",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	rateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acadium_ratelimit_rejections_total",
		Help: "Count of requests rejected by the invitation rate limiter",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func InvitationCreated() {
	invitationsCreated.Inc()
}

// InvitationAccepted records an acceptance; path is "link" for magic-link
// acceptance and "reconciler" for a backfill.
func InvitationAccepted(path string) {
	invitationsAccepted.WithLabelValues(path).Inc()
}

func InvitationsExpired(count int) {
	invitationsExpired.Add(float64(count))
}

func DispatchFailed() {
	dispatchFailures.Inc()
}

// ObserveSweep records the duration of a reconciler sweep with a result label.
func ObserveSweep(result string, duration time.Duration) {
	reconcilerSweepDuration.WithLabelValues(result).Observe(duration.Seconds())
}

func RateLimited() {
	rateLimitRejections.Inc()
}
