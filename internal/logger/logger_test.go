package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maskflow/internal/config"
)

func TestNew_LevelAndFormat(t *testing.T) {
	l := New(config.LoggingConfig{Level: "debug", Format: "json"})
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)

	l = New(config.LoggingConfig{Level: "nonsense", Format: "text"})
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, l.Formatter)
}

func TestWithExecution_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := New(config.LoggingConfig{Level: "info", Format: "json"})
	l.SetOutput(&buf)

	l.WithExecution("exec-1", "wf-1").WithField("table", "people").Info("Processing table people...")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "exec-1", rec["execution_id"])
	assert.Equal(t, "wf-1", rec["workflow_id"])
	assert.Equal(t, "people", rec["table"])
	assert.Equal(t, "Processing table people...", rec["msg"])
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.WithConnection("c1", "sqlite").Error("ignored")
}
