package tracer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"upandup/pkg/platform/tracer"
)

func TestNoopTracer_Start(t *testing.T) {
	tr := tracer.NewNoop()
	ctx := context.Background()

	newCtx, span := tr.Start(ctx, tracer.SpanVerifyCredential,
		tracer.String(tracer.AttrWorkerID, "w-1"),
		tracer.Bool(tracer.AttrCacheHit, true),
	)

	assert.Equal(t, ctx, newCtx)
	require.NotNil(t, span)

	span.SetAttributes(tracer.Int64(tracer.AttrScore, 68))
	span.AddEvent(tracer.EventTransition, tracer.String("to", "verified"))
	span.End(errors.New("gateway down"))
}

func TestOTelTracer_WithInjectedProvider(t *testing.T) {
	tr := tracer.NewOTel("upandup/test", tracer.WithOTelTracer(noop.NewTracerProvider().Tracer("test")))

	_, span := tr.Start(context.Background(), tracer.SpanGatewayCall,
		tracer.String(tracer.AttrGateway, "dhiway"),
		tracer.Float64("ratio", 0.5),
		tracer.Duration(tracer.AttrLockWaitMs, 15*time.Millisecond),
	)
	require.NotNil(t, span)
	span.End(nil)
}

func TestHashIdentifier(t *testing.T) {
	assert.Empty(t, tracer.HashIdentifier(""))
	assert.Len(t, tracer.HashIdentifier("+919876543210"), 16)
	assert.Equal(t, tracer.HashIdentifier("+919876543210"), tracer.HashIdentifier("+919876543210"))
	assert.NotEqual(t, tracer.HashIdentifier("+919876543210"), tracer.HashIdentifier("+919876543211"))
}
