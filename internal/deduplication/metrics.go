package deduplication

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// passesTotal counts sweep and close passes.
	// Labels: pass (sweep, close), result (success, error)
	passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deduper",
		Subsystem: "reconcile",
		Name:      "passes_total",
		Help:      "Total reconciliation passes by pass and result",
	}, []string{"pass", "result"})

	// passDuration measures how long each pass takes.
	// Labels: pass
	passDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "deduper",
		Subsystem: "reconcile",
		Name:      "pass_duration_seconds",
		Help:      "Reconciliation pass duration in seconds",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"pass"})

	// trackedIssues is the number of trace-bearing issues seen by the last sweep
	trackedIssues = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "deduper",
		Subsystem: "reconcile",
		Name:      "tracked_issues",
		Help:      "Trace-bearing issues found by the most recent sweep",
	})

	// issuesClosed counts duplicates closed on the tracker.
	// Labels: trigger (sweep, webhook)
	issuesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deduper",
		Subsystem: "reconcile",
		Name:      "issues_closed_total",
		Help:      "Duplicate issues closed on the tracker",
	}, []string{"trigger"})

	// remoteErrors counts failed tracker calls that were skipped.
	// Labels: op
	remoteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deduper",
		Subsystem: "reconcile",
		Name:      "remote_errors_total",
		Help:      "Tracker call failures caught and skipped",
	}, []string{"op"})

	// webhookEvents counts handled webhook events.
	// Labels: type (X-GitHub-Event), result (success, error, panic)
	webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deduper",
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Webhook events handled by type and result",
	}, []string{"type", "result"})

	// webhookDropped counts events dropped before reaching a worker.
	// Labels: reason (queue_full, shutdown)
	webhookDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deduper",
		Subsystem: "webhook",
		Name:      "dropped_total",
		Help:      "Webhook events dropped before handling",
	}, []string{"reason"})
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
