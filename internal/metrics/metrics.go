// Package metrics counts what masking runs do: steps with their latency,
// rows by kind, and pages. Instrumented code calls the Record functions
// unconditionally; they go to whichever Backend is installed, a no-op
// until SetBackend is called. Backends for real systems live in the
// prompush and datadog subpackages.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metric names shared by every backend.
const (
	StepTotal           = "maskflow_step_total"
	StepDurationSeconds = "maskflow_step_duration_seconds"
	RecordsTotal        = "maskflow_records_total"
	PagesTotal          = "maskflow_pages_total"
)

// Row kinds used with RecordRows.
const (
	KindFetched  = "fetched"
	KindMasked   = "masked"
	KindUnmasked = "unmasked"
	KindInserted = "inserted"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend receives every observation.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush delivers buffered observations, for backends that buffer.
	Flush() error
}

type nop struct{}

func (nop) IncCounter(string, float64, Labels)       {}
func (nop) ObserveHistogram(string, float64, Labels) {}
func (nop) Flush() error                             { return nil }

// slot gives atomic.Value a single concrete type to hold.
type slot struct{ Backend }

var installed atomic.Value

func init() { installed.Store(slot{nop{}}) }

func current() Backend { return installed.Load().(slot).Backend }

// SetBackend installs b for all later observations. A nil b is ignored.
// It is safe to call while executions are running.
func SetBackend(b Backend) {
	if b != nil {
		installed.Store(slot{b})
	}
}

// Flush flushes the installed backend.
func Flush() error { return current().Flush() }

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordStep counts one step of a workflow and observes its duration.
// Steps are clear, fetch, mask, insert, table and execution.
func RecordStep(workflow, step string, err error, d time.Duration) {
	b := current()
	lbls := Labels{"workflow": workflow, "step": step, "status": outcome(err)}
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRows adds n rows of the given kind. Non-positive n is dropped.
func RecordRows(workflow, kind string, n int64) {
	if n > 0 {
		current().IncCounter(RecordsTotal, float64(n), Labels{"workflow": workflow, "kind": kind})
	}
}

// RecordPages adds n pages. Non-positive n is dropped.
func RecordPages(workflow string, n int64) {
	if n > 0 {
		current().IncCounter(PagesTotal, float64(n), Labels{"workflow": workflow})
	}
}
