package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Enabled(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(true, &buf)
	require.NoError(t, err)

	_, span := Tracer("").Start(context.Background(), "engine.load")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name": "engine.load"`)
}

func TestInit_Disabled(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(false, &buf)
	require.NoError(t, err)

	_, span := Tracer("test").Start(context.Background(), "noop")
	span.End()
	assert.False(t, span.SpanContext().IsValid())

	require.NoError(t, shutdown(context.Background()))
	assert.Empty(t, buf.String())
}
