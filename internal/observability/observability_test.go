package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func restoreDefaults(t *testing.T) {
	t.Helper()
	logger := slog.Default()
	propagator := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		slog.SetDefault(logger)
		otel.SetTextMapPropagator(propagator)
	})
}

func TestNewHandler(t *testing.T) {
	tests := []struct {
		format  string
		check   func(t *testing.T, out string)
		wantErr bool
	}{
		{
			format: FormatText,
			check: func(t *testing.T, out string) {
				if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "resource=clientes") {
					t.Errorf("text output = %q", out)
				}
			},
		},
		{
			format: FormatJSON,
			check: func(t *testing.T, out string) {
				var record map[string]any
				if err := json.Unmarshal([]byte(out), &record); err != nil {
					t.Fatalf("json output %q: %v", out, err)
				}
				if record["msg"] != "hello" || record["resource"] != "clientes" {
					t.Errorf("json record = %v", record)
				}
			},
		},
		{
			format:  "xml",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			h, err := NewHandler(&buf, slog.LevelInfo, tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewHandler: %v", err)
			}

			logger := slog.New(h)
			logger.Debug("hidden")
			logger.Info("hello", "resource", "clientes")

			if strings.Contains(buf.String(), "hidden") {
				t.Error("debug record passed an info handler")
			}
			tt.check(t, strings.TrimSpace(buf.String()))
		})
	}
}

func TestInstrumentWithoutExporter(t *testing.T) {
	restoreDefaults(t)

	var buf bytes.Buffer
	shutdown, err := Instrument(context.Background(), Options{
		Level:  slog.LevelDebug,
		Format: FormatJSON,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}

	slog.Debug("renewing access token")
	if !strings.Contains(buf.String(), `"msg":"renewing access token"`) {
		t.Errorf("default logger output = %q", buf.String())
	}

	fields := otel.GetTextMapPropagator().Fields()
	if !slices.Contains(fields, "traceparent") || !slices.Contains(fields, "baggage") {
		t.Errorf("propagator fields = %v", fields)
	}

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInstrumentStdoutExporter(t *testing.T) {
	restoreDefaults(t)

	var local, exported bytes.Buffer
	shutdown, err := Instrument(context.Background(), Options{
		Level:        slog.LevelInfo,
		Format:       FormatText,
		Exporter:     ExporterStdout,
		ServiceName:  "gerente-test",
		Writer:       &local,
		ExportWriter: &exported,
	})
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}

	slog.Debug("below minimum severity")
	slog.Warn("session expired", "reason", "renewal failed")

	// Shutdown flushes the batch processor
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if !strings.Contains(local.String(), "session expired") {
		t.Errorf("local output = %q", local.String())
	}
	out := exported.String()
	if !strings.Contains(out, "session expired") || !strings.Contains(out, "renewal failed") {
		t.Errorf("exported output missing record: %q", out)
	}
	if strings.Contains(out, "below minimum severity") {
		t.Errorf("debug record exported: %q", out)
	}
}

func TestInstrumentUnknownExporter(t *testing.T) {
	restoreDefaults(t)

	_, err := Instrument(context.Background(), Options{Exporter: "kafka", Writer: &bytes.Buffer{}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestFanoutHandler(t *testing.T) {
	var info, debug bytes.Buffer
	h := newFanoutHandler(
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	logger := slog.New(h).With("component", "client").WithGroup("req")

	logger.Debug("dispatching", "method", "GET")
	logger.Info("done", "status", 200)

	if strings.Contains(info.String(), "dispatching") {
		t.Error("info handler received a debug record")
	}
	if !strings.Contains(debug.String(), "req.method=GET") || !strings.Contains(debug.String(), "component=client") {
		t.Errorf("debug output = %q", debug.String())
	}
	if !strings.Contains(info.String(), "req.status=200") {
		t.Errorf("info output = %q", info.String())
	}
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("fan-out must be enabled when any handler is")
	}
}
