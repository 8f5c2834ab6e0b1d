// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Invitations counts per-email invitation outcomes; result is "ok" or a reason code.
	Invitations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canvass",
		Name:      "invitations_total",
		Help:      "Invitation attempts by outcome.",
	}, []string{"result"})

	// Submissions counts response submission outcomes.
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canvass",
		Name:      "submissions_total",
		Help:      "Response submissions by outcome.",
	}, []string{"result"})

	CompletionSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "canvass",
		Name:      "response_completion_seconds",
		Help:      "Self-reported time respondents spent completing a survey.",
		Buckets:   []float64{15, 30, 60, 120, 300, 600, 1200, 3600},
	})

	// StoreErrors counts swallowed persistence failures by operation.
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canvass",
		Name:      "store_errors_total",
		Help:      "Store errors by operation.",
	}, []string{"op"})

	EventPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "canvass",
		Name:      "event_publish_errors_total",
		Help:      "Events that failed to publish to at least one sink.",
	})
)

// Outcome converts a reason code into a label value, "ok" when empty.
func Outcome(reason string) string {
	if reason == "" {
		return "ok"
	}
	return reason
}
