// Package metrics exposes Prometheus collectors for proctored sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "exstem_proctor"

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Session engines currently running.",
	})

	terminations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "terminations_total",
		Help:      "Sessions terminated by integrity violations.",
	}, []string{"reason"})

	submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Submission attempts by mode and outcome.",
	}, []string{"mode", "outcome"})

	violations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "violations_total",
		Help:      "Stable violation transitions by kind.",
	}, []string{"kind"})

	remoteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "remote_call_duration_seconds",
		Help:      "Latency of remote assessment service calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"action", "result"})
)

func SessionOpened() { activeSessions.Inc() }
func SessionClosed() { activeSessions.Dec() }

func Terminated(reason string) { terminations.WithLabelValues(reason).Inc() }

func Violation(kind string) { violations.WithLabelValues(kind).Inc() }

// Submission records a finished submission attempt.
func Submission(auto bool, outcome string) {
	mode := "manual"
	if auto {
		mode = "auto"
	}
	submissions.WithLabelValues(mode, outcome).Inc()
}

// ObserveRemote records the latency of one remote call.
func ObserveRemote(action string, err error, took time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	remoteLatency.WithLabelValues(action, result).Observe(took.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
