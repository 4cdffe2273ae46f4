package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextFieldsReachOutput(t *testing.T) {
	var buf bytes.Buffer
	base := New(&Config{Level: "debug", Format: "json", Output: &buf, ServiceName: "test"})

	ctx := base.WithContext(context.Background())
	ctx = SetModelID(ctx, "m1")
	ctx = SetJobID(ctx, "job-7")

	With(Fields{FieldDurationMs: int64(12)}).WithCount(3).Info(ctx, "trained %s", "m1")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "trained m1", line["message"])
	assert.Equal(t, "m1", line[FieldModelID])
	assert.Equal(t, "job-7", line[FieldJobID])
	assert.Equal(t, "test", line["service"])
	assert.EqualValues(t, 12, line[FieldDurationMs])
	assert.EqualValues(t, 3, line[FieldCount])

	assert.Equal(t, "m1", GetModelID(ctx))
	assert.Equal(t, "job-7", GetJobID(ctx))
	assert.Empty(t, GetRequestID(ctx))
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, GetDefault(), FromContext(context.Background()))
	assert.Same(t, GetDefault(), FromContext(nil)) //nolint:staticcheck
}
