// Package prompush pushes masking metrics to a Prometheus Pushgateway.
// Executions run inside short-lived CLI processes, so there is nothing to
// scrape; the registry is pushed under the configured job on Flush.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"maskflow/internal/metrics"
)

// counterDefs lists every counter with its label names, in label order.
var counterDefs = map[string]struct {
	help   string
	labels []string
}{
	metrics.StepTotal:    {"Masking steps by workflow, step and status.", []string{"workflow", "step", "status"}},
	metrics.RecordsTotal: {"Rows by workflow and kind (fetched, masked, unmasked, inserted).", []string{"workflow", "kind"}},
	metrics.PagesTotal:   {"Pages moved through fetch, mask and insert.", []string{"workflow"}},
}

var durationLabels = []string{"workflow", "step", "status"}

// Backend is a metrics.Backend backed by a private Prometheus registry.
type Backend struct {
	pusher   *push.Pusher
	reg      *prometheus.Registry
	counters map[string]*prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewBackend builds a backend pushing to gatewayURL under jobName
// ("maskflow" when empty).
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "maskflow"
	}

	b := &Backend{
		reg:      prometheus.NewRegistry(),
		counters: make(map[string]*prometheus.CounterVec, len(counterDefs)),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: metrics.StepDurationSeconds,
			Help: "Duration of masking steps in seconds.",
			// 10ms .. ~11min
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, durationLabels),
	}
	if err := b.reg.Register(b.duration); err != nil {
		return nil, fmt.Errorf("prompush: register %s: %w", metrics.StepDurationSeconds, err)
	}
	for name, def := range counterDefs {
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: def.help}, def.labels)
		if err := b.reg.Register(cv); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
		b.counters[name] = cv
	}
	b.pusher = push.New(gatewayURL, jobName).Gatherer(b.reg)
	return b, nil
}

// values orders labels by names; missing labels become "".
func values(names []string, labels metrics.Labels) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = labels[n]
	}
	return out
}

// IncCounter adds delta to a known counter. Unknown names are dropped.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	cv, ok := b.counters[name]
	if !ok {
		return
	}
	cv.WithLabelValues(values(counterDefs[name].labels, labels)...).Add(delta)
}

// ObserveHistogram records a step duration. Other names are dropped.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDurationSeconds || b.duration == nil {
		return
	}
	b.duration.WithLabelValues(values(durationLabels, labels)...).Observe(value)
}

// Flush replaces the job's metrics on the Pushgateway with the registry.
func (b *Backend) Flush() error {
	if b.pusher == nil {
		return nil
	}
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}
