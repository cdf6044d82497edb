package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels remediations that exited cleanly.
	OutcomeSuccess = "success"
	// OutcomeFailure labels remediations that failed or timed out.
	OutcomeFailure = "failure"
)

var (
	sweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "remedy_engine",
			Name:      "sweeps_total",
			Help:      "Total number of log monitoring sweeps.",
		},
	)

	incidentsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remedy_engine",
			Name:      "incidents_created_total",
			Help:      "Total number of incidents opened, partitioned by severity.",
		},
		[]string{"severity"},
	)

	incidentsResolvedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "remedy_engine",
			Name:      "incidents_resolved_total",
			Help:      "Total number of incidents resolved.",
		},
	)

	remediationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remedy_engine",
			Name:      "remediations_total",
			Help:      "Total number of remediation executions, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	remediationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "remedy_engine",
			Name:      "remediation_seconds",
			Help:      "Remediation script runtime in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	patternsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "remedy_engine",
			Name:      "patterns",
			Help:      "Current number of patterns in the library.",
		},
	)

	trainingAccuracy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "remedy_engine",
			Name:      "training_accuracy",
			Help:      "Accuracy reported by the last classifier training run.",
		},
	)
)

// Register attaches remedy-engine collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		sweepsTotal,
		incidentsCreatedTotal,
		incidentsResolvedTotal,
		remediationsTotal,
		remediationDurationSeconds,
		patternsTotal,
		trainingAccuracy,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveSweep records one monitoring sweep.
func ObserveSweep() {
	sweepsTotal.Inc()
}

// ObserveIncidentCreated records a newly opened incident.
func ObserveIncidentCreated(severity string) {
	incidentsCreatedTotal.WithLabelValues(severity).Inc()
}

// ObserveIncidentResolved records a resolved incident.
func ObserveIncidentResolved() {
	incidentsResolvedTotal.Inc()
}

// ObserveRemediation records a remediation run's duration and outcome label.
func ObserveRemediation(duration time.Duration, success bool) {
	label := OutcomeFailure
	if success {
		label = OutcomeSuccess
	}
	remediationsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	remediationDurationSeconds.Observe(duration.Seconds())
}

// SetPatternCount reports the current pattern library size.
func SetPatternCount(n int) {
	patternsTotal.Set(float64(n))
}

// SetTrainingAccuracy reports the last training run's accuracy.
func SetTrainingAccuracy(accuracy float64) {
	trainingAccuracy.Set(accuracy)
}
