package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	cfg := DefaultConfig()
	cfg.Output = buf
	cfg.Level = "debug"
	return New(cfg)
}

func TestContextFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	ctx := newBufferLogger(&buf).WithContext(context.Background())
	ctx = SetJobID(ctx, "job-1")
	ctx = WithFields(ctx, Fields{FieldChannelID: "chan"})

	CtxInfo(ctx, "hello %s", "world")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello world", line["message"])
	assert.Equal(t, "job-1", line[FieldJobID])
	assert.Equal(t, "chan", line[FieldChannelID])
	assert.Equal(t, "youtube-extraction", line["service"])
	assert.Equal(t, "job-1", GetJobID(ctx))
}

func TestEntryAddsMetricFields(t *testing.T) {
	var buf bytes.Buffer
	ctx := newBufferLogger(&buf).WithContext(context.Background())

	With(Fields{FieldCount: 3}).WithDuration(12).Info(ctx, "flushed")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.EqualValues(t, 3, line[FieldCount])
	assert.EqualValues(t, 12, line[FieldDurationMs])
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, GetDefault(), FromContext(context.Background()))
	assert.Same(t, GetDefault(), FromContext(nil)) //nolint:staticcheck
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = "text"
	cfg.Output = &buf
	New(cfg).Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}
