package feed

import (
	"context"
	"testing"

	"github.com/signalsfoundry/eva-telemetry-sim/internal/logging"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestRequestIDFromMetadata(t *testing.T) {
	interceptor := RequestIDUnaryServerInterceptor(nil)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDMetadataKey, "abc-123"))

	var seen string
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: GetSnapshotMethod}, func(ctx context.Context, _ interface{}) (interface{}, error) {
		seen = logging.RequestIDFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if seen != "abc-123" {
		t.Fatalf("request id = %q, want abc-123", seen)
	}
}

func TestRequestIDGeneratedWhenMissing(t *testing.T) {
	interceptor := RequestIDUnaryServerInterceptor(logging.Noop())

	var seen string
	_, _ = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: GetSnapshotMethod}, func(ctx context.Context, _ interface{}) (interface{}, error) {
		seen = logging.RequestIDFromContext(ctx)
		return nil, nil
	})
	if seen == "" {
		t.Fatalf("expected a generated request id")
	}
}

func TestRPCSpanAttributes(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx := logging.ContextWithRequestID(context.Background(), "req-9")
	_, span, created := rpcSpan(ctx, tp.Tracer("test"), WatchSnapshotsMethod)
	if !created {
		t.Fatalf("expected a new span without a parent")
	}
	span.End()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if got := spans[0].Name(); got != "Feed/TelemetryFeed/WatchSnapshots" {
		t.Fatalf("span name = %q", got)
	}
	attrs := map[attribute.Key]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	if attrs["rpc.method"] != "WatchSnapshots" || attrs["request_id"] != "req-9" {
		t.Fatalf("span attributes = %v", attrs)
	}
}
