package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"
)

func TestInitGlobalTracerDisabledReturnsNoop(t *testing.T) {
	tp, err := InitGlobalTracer(context.Background(), TracerConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitGlobalTracer: %v", err)
	}
	if _, ok := tp.(noop.TracerProvider); !ok {
		t.Errorf("expected noop.TracerProvider, got %T", tp)
	}
}

func TestInitGlobalTracerStdoutExporter(t *testing.T) {
	tp, err := InitGlobalTracer(context.Background(), TracerConfig{
		Enabled:      true,
		ExporterType: "stdout",
		ServiceName:  "bmad-core-test",
		SamplingRate: 1.0,
	})
	if err != nil {
		t.Fatalf("InitGlobalTracer: %v", err)
	}
	if tp == nil {
		t.Fatal("expected non-nil tracer provider")
	}
}

func TestGetTracerReturnsNonNil(t *testing.T) {
	tr := GetTracer("bmad-core/test")
	if tr == nil {
		t.Fatal("expected non-nil tracer")
	}
}
