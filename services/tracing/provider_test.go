package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/trezcool/mycourse/core"
)

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), &core.Config{})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_Stdout(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	conf := &core.Config{AppName: "mycourse", Env: "test"}
	conf.Tracing.Enabled = true
	conf.Tracing.SampleRatio = 1

	var buf bytes.Buffer
	p, err := newProvider(context.Background(), conf, &buf)
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := otel.Tracer("test").Start(context.Background(), "db.query")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name": "db.query"`)
	assert.Contains(t, buf.String(), "mycourse")
}
