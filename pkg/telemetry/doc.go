// Package telemetry provides logging, tracing and metrics for appforge.
//
// Logging uses zerolog, tracing uses OpenTelemetry with stdout or OTLP/gRPC
// exporters, and metrics are Prometheus collectors on a private registry.
//
// Initialize telemetry at process startup:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//	tel.StartMetricsServer()
//
//	ctx = tel.WithContext(ctx)
//
// Libraries take a zerolog.Logger and derive a component logger:
//
//	logger := tel.Logger.Zerolog().With().Str("component", "imports").Logger()
//
// # Metrics
//
// Import passes export:
//
//	appforge_import_passes_started_total{kind}
//	appforge_import_passes_completed_total{kind,status}
//	appforge_import_pass_duration_seconds{kind}
//	appforge_import_resources_total{kind,outcome}
//	appforge_existing_resources_scanned_total{kind,scope}
//	appforge_import_errors_total{code}
//	appforge_active_import_passes
//
// A nil *Metrics records nothing, so callers need no guards.
package telemetry
