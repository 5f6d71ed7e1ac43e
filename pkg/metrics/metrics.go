// Package metrics records what each rotation run saw and did as Prometheus
// metrics and pushes them to a Pushgateway at the end of the run.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/zostay/keyrotate/pkg/rotate"
)

// JobName is the Pushgateway job the metrics are pushed under.
const JobName = "keyrotate"

// Recorder implements rotate.Recorder on a private registry.
type Recorder struct {
	reg *prometheus.Registry

	runs         *prometheus.CounterVec
	actions      *prometheus.CounterVec
	keys         *prometheus.GaugeVec
	oldestKeyAge prometheus.Gauge
	lastRun      prometheus.Gauge
}

// New returns a Recorder with every metric registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyrotate_runs_total",
				Help: "Total number of rotation runs by result",
			},
			[]string{"result"},
		),
		actions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyrotate_actions_total",
				Help: "Total number of rotation actions performed",
			},
			[]string{"action", "rule"},
		),
		keys: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "keyrotate_keys",
				Help: "Number of access keys held by the principal by status",
			},
			[]string{"status"},
		),
		oldestKeyAge: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "keyrotate_oldest_key_age_days",
				Help: "Age in whole days of the oldest active access key",
			},
		),
		lastRun: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "keyrotate_last_run_timestamp_seconds",
				Help: "Unix time of the last rotation run",
			},
		),
	}
}

// Registry returns the registry the metrics live in.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// ObserveKeys records the key counts and the age of the oldest active key.
func (r *Recorder) ObserveKeys(keys []rotate.AccessKey, now time.Time) {
	counts := map[rotate.Status]float64{
		rotate.StatusActive:   0,
		rotate.StatusInactive: 0,
		rotate.StatusUnknown:  0,
	}

	oldest := 0
	for _, k := range keys {
		counts[k.Status]++
		if age := rotate.AgeInDays(k.CreatedAt, now); k.Active() && age > oldest {
			oldest = age
		}
	}

	for st, n := range counts {
		r.keys.WithLabelValues(st.String()).Set(n)
	}
	r.oldestKeyAge.Set(float64(oldest))
}

// ObserveAction counts the action by kind and rule.
func (r *Recorder) ObserveAction(a rotate.Action) {
	r.actions.WithLabelValues(a.Kind.String(), a.Rule.String()).Inc()
}

// ObserveRun counts the run as a success or failure.
func (r *Recorder) ObserveRun(err error, now time.Time) {
	result := "success"
	if err != nil {
		result = "failure"
	}

	r.runs.WithLabelValues(result).Inc()
	r.lastRun.Set(float64(now.Unix()))
}

// Push sends every metric to the Pushgateway at url, grouped by principal.
func (r *Recorder) Push(ctx context.Context, url, principal string) error {
	err := push.New(url, JobName).
		Gatherer(r.reg).
		Grouping("principal", principal).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics to %q: %w", url, err)
	}
	return nil
}
