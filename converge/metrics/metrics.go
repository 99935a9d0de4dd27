// Package metrics exports run outcomes for node_exporter's textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/steelcutops/converge/converge/executor"
)

// Recorder holds the metrics of one run on a private registry.
type Recorder struct {
	Registry *prometheus.Registry

	actions     *prometheus.CounterVec
	lastSuccess prometheus.Gauge
	lastRun     prometheus.Gauge
	duration    prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		Registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "converge",
				Name:      "actions_total",
				Help:      "Actions by kind and outcome in the last run.",
			},
			[]string{"kind", "outcome"},
		),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "converge",
			Name:      "last_run_success",
			Help:      "1 if the last run had no failed actions.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "converge",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run started.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "converge",
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run in seconds.",
		}),
	}
	r.Registry.MustRegister(r.actions, r.lastSuccess, r.lastRun, r.duration)
	return r
}

// Record adds the outcome of every entry in result.
func (r *Recorder) Record(result *executor.Result) {
	for _, e := range result.Entries {
		r.actions.WithLabelValues(string(e.Action.Kind), e.Label()).Inc()
	}
	if result.Success() {
		r.lastSuccess.Set(1)
	} else {
		r.lastSuccess.Set(0)
	}
	if !result.Started.IsZero() {
		r.lastRun.Set(float64(result.Started.Unix()))
	}
	r.duration.Set(result.Duration.Seconds())
}

// WriteTextfile records result and writes the registry to path atomically.
func WriteTextfile(path string, result *executor.Result) error {
	r := NewRecorder()
	r.Record(result)
	if err := prometheus.WriteToTextfile(path, r.Registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
