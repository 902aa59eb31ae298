package telemetry

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/tjfontaine/behavior-verify-gateway/internal/pkg/config"
)

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(config.TracingConfig{}, io.Discard, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

func TestInitTracer_Exports(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := InitTracer(config.TracingConfig{Enabled: true, ServiceName: "test-verifier"}, &buf,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}

	_, span := Tracer().Start(context.Background(), "aggregate")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"aggregate"`) {
		t.Errorf("exported spans missing aggregate span: %s", buf.String())
	}
}
