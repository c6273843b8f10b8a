package authz

import (
	"context"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var (
	spansOnce sync.Once
	spans     *tracetest.SpanRecorder
)

func recordSpans() *tracetest.SpanRecorder {
	spansOnce.Do(func() {
		spans = tracetest.NewSpanRecorder()
		otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)))
	})
	return spans
}

func spanAttr(s sdktrace.ReadOnlySpan, key string) string {
	for _, kv := range s.Attributes() {
		if string(kv.Key) == key {
			return kv.Value.AsString()
		}
	}
	return ""
}

func TestTracing_WritePathSpans(t *testing.T) {
	ctx := context.Background()
	rec := recordSpans()
	f := newFixture(t, nil, nil)

	// Loading a context goes through the cache and the provider.
	goCtx := f.context(t, "go1")

	f.mock.ExpectBegin()
	f.mock.ExpectExec(`UPDATE users SET status = \$1 WHERE id = \$2`).
		WithArgs("suspended", "sm1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	status := "suspended"
	require.NoError(t, f.engine.UpdateUser(ctx, goCtx, "sm1", UserUpdate{Status: &status}))
	assert.NoError(t, f.mock.ExpectationsWereMet())

	var loads, computes, writes int
	for _, s := range rec.Ended() {
		switch s.Name() {
		case "usercontext.load":
			if spanAttr(s, "orgscope.user_id") == "go1" {
				loads++
			}
		case "scopedcache.compute":
			computes++
		case "authz.ExecuteWrite":
			if spanAttr(s, "orgscope.operation") == "update_fields" && s.Status().Code != codes.Error {
				writes++
				assert.Equal(t, "users", spanAttr(s, "orgscope.resource_type"))
			}
		}
	}
	assert.GreaterOrEqual(t, loads, 1)
	assert.GreaterOrEqual(t, computes, 1)
	assert.GreaterOrEqual(t, writes, 1)
}
