// Package observability configures process-wide logging and trace context
// propagation.
//
// Logs always go to a local slog handler (text or JSON). When an exporter is
// configured they are additionally bridged to OpenTelemetry logs and shipped
// through a batch processor, filtered to the same minimum severity.
package observability
