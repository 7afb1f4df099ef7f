package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/signalsfoundry/eva-telemetry-sim/internal/config"
	"github.com/signalsfoundry/eva-telemetry-sim/internal/logging"
	"go.opentelemetry.io/otel"
)

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := initTracing(context.Background(), config.Tracing{Enabled: false}, &bytes.Buffer{}, logging.Noop())
	if err != nil {
		t.Fatalf("initTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracingStdoutExportsSpans(t *testing.T) {
	var out bytes.Buffer
	shutdown, err := initTracing(context.Background(), config.Tracing{
		Enabled:     true,
		ServiceName: "eva-test",
		Exporter:    "stdout",
		SampleRatio: 1,
	}, &out, nil)
	if err != nil {
		t.Fatalf("initTracing: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "flare-entry")
	span.End()

	ShutdownWithTimeout(context.Background(), shutdown, nil)
	if !strings.Contains(out.String(), "flare-entry") {
		t.Fatalf("stdout exporter output missing span name:\n%s", out.String())
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	_, err := initTracing(context.Background(), config.Tracing{Enabled: true, Exporter: "zipkin"}, &bytes.Buffer{}, nil)
	if err == nil {
		t.Fatalf("initTracing accepted unknown exporter")
	}
}
