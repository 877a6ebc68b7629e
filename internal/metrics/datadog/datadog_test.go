package datadog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maskflow/internal/metrics"
)

type call struct {
	kind  string
	name  string
	value float64
	tags  []string
}

type fakeClient struct {
	calls   []call
	flushed int
	closed  bool
}

func (f *fakeClient) Count(name string, value int64, tags []string, _ float64) error {
	f.calls = append(f.calls, call{"count", name, float64(value), tags})
	return nil
}

func (f *fakeClient) Histogram(name string, value float64, tags []string, _ float64) error {
	f.calls = append(f.calls, call{"histogram", name, value, tags})
	return nil
}

func (f *fakeClient) Flush() error { f.flushed++; return nil }
func (f *fakeClient) Close() error { f.closed = true; return nil }

func TestNewBackend_RequiresAddr(t *testing.T) {
	_, err := NewBackend(Config{})
	require.Error(t, err)
}

func TestNewBackend_UDP(t *testing.T) {
	b, err := NewBackend(Config{Addr: "127.0.0.1:8125", Namespace: "maskflow.", GlobalTags: []string{"env:test"}})
	require.NoError(t, err)
	b.IncCounter(metrics.PagesTotal, 1, nil)
	assert.NoError(t, b.Close())
}

func TestBackend_ForwardsWithSortedTags(t *testing.T) {
	fc := &fakeClient{}
	b := &Backend{client: fc}

	b.IncCounter(metrics.RecordsTotal, 4.9, metrics.Labels{"workflow": "wf", "kind": "masked"})
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.25, metrics.Labels{"step": "insert", "status": "success"})
	require.NoError(t, b.Flush())
	require.NoError(t, b.Close())

	require.Len(t, fc.calls, 2)
	assert.Equal(t, call{"count", metrics.RecordsTotal, 4, []string{"kind:masked", "workflow:wf"}}, fc.calls[0])
	assert.Equal(t, call{"histogram", metrics.StepDurationSeconds, 0.25, []string{"status:success", "step:insert"}}, fc.calls[1])
	assert.Equal(t, 1, fc.flushed)
	assert.True(t, fc.closed)
}

func TestBackend_NilClientIsNoop(t *testing.T) {
	b := &Backend{}
	b.IncCounter("x", 1, nil)
	b.ObserveHistogram("x", 1, nil)
	assert.NoError(t, b.Flush())
	assert.NoError(t, b.Close())
	assert.Nil(t, labelsToTags(nil))
}
