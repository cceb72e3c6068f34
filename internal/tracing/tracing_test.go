package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"archpub/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{TracingEnabled: false})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Expected no-op shutdown, got %v", err)
	}
}

func TestSetupStdoutExporter(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{TracingEnabled: true, SampleRate: 0.5})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestSpanHelpers(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := tp.Tracer("test").Start(context.Background(), "publish")
	AddPageAttributes(span, "DOCS", "Automated Confluence Page")
	RecordError(span, errors.New("upload failed"))
	RecordError(span, nil)
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	got := spans[0]

	if got.Status().Code != codes.Error {
		t.Errorf("Expected error status, got %v", got.Status().Code)
	}
	if len(got.Events()) != 1 {
		t.Errorf("Expected 1 error event, got %d", len(got.Events()))
	}

	attrs := map[attribute.Key]string{}
	for _, kv := range got.Attributes() {
		attrs[kv.Key] = kv.Value.AsString()
	}
	if attrs["confluence.space_key"] != "DOCS" {
		t.Errorf("Expected space attribute, got %v", attrs)
	}
	if attrs["confluence.page.title"] != "Automated Confluence Page" {
		t.Errorf("Expected title attribute, got %v", attrs)
	}
}

func TestStartSpanWithoutProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()
	if ctx == nil {
		t.Fatal("Expected context")
	}
}
