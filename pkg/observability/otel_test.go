package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitOTel_Disabled(t *testing.T) {
	log, _ := test.NewNullLogger()

	telemetry, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, log)
	require.NoError(t, err)
	assert.Nil(t, telemetry)

	// A nil Telemetry shuts down cleanly, so callers need no branch.
	assert.NoError(t, telemetry.Shutdown(context.Background()))
}

func TestFromContext_TraceIDs(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	var buf bytes.Buffer
	log, err := NewLogger("info", FormatJSON, &buf)
	require.NoError(t, err)

	ctx, span := tp.Tracer("test").Start(context.Background(), "request")
	entry := FromContext(ctx, log)
	span.End()

	assert.Equal(t, span.SpanContext().TraceID().String(), entry.Data["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entry.Data["span_id"])
	require.Len(t, recorder.Ended(), 1)
	assert.Equal(t, "request", recorder.Ended()[0].Name())
}

func TestFromContext_NoSpan(t *testing.T) {
	log, _ := test.NewNullLogger()

	entry := FromContext(context.Background(), log)
	assert.NotContains(t, entry.Data, "trace_id")
	assert.Equal(t, logrus.Fields{}, entry.Data)
}
