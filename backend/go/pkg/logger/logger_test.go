package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Init(logrus.DebugLevel)
	SetOutput(&buf)
	t.Cleanup(func() { Init(logrus.InfoLevel) })
	return &buf
}

func TestLoggerWritesJSONFields(t *testing.T) {
	buf := captureOutput(t)

	New("rag_agent_server", "trace-1", "").WithError(errors.New("boom")).Error("ingestion failed")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ingestion failed", line["message"])
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "trace-1", line["trace_id"])
	assert.Equal(t, "rag_agent_server", line["service_name"])
	assert.Equal(t, "boom", line["error"])
	assert.Contains(t, line, "timestamp")
}

func TestWithDoesNotMutateReceiver(t *testing.T) {
	buf := captureOutput(t)

	base := New("svc", "", "")
	_ = base.WithTraceID("trace-2").WithField("chunks", 3)
	base.Info("plain")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "", line["trace_id"])
	assert.NotContains(t, line, "chunks")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("loud"))
}
