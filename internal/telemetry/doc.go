// Package telemetry provides OpenTelemetry instrumentation for ragd.
//
// # Overview
//
// This package implements distributed tracing and metrics collection using
// the OpenTelemetry Go SDK. Telemetry is exported over OTLP (gRPC or
// HTTP/protobuf) to a collector.
//
// # Usage
//
// Create a telemetry instance:
//
//	tel, err := telemetry.New(ctx, &cfg.Telemetry)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(ctx)
//
// Use tracer and meter:
//
//	tracer := tel.Tracer("ragd.storage")
//	ctx, span := tracer.Start(ctx, "storage.store")
//	defer span.End()
//
//	meter := tel.Meter("ragd.storage")
//	counter, _ := meter.Int64Counter("documents.stored")
//	counter.Add(ctx, 1)
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: "grpc"
//	  service_name: "ragd"
//	  sampling:
//	    rate: 1.0
//	  metrics:
//	    enabled: true
//	    export_interval: "15s"
//
// # Error Handling
//
// Telemetry failures do not crash the application. If a provider cannot
// be initialized, the instance degrades gracefully and hands out no-op
// tracers and meters.
//
// # Testing
//
// Use TestTelemetry for tests:
//
//	tt := telemetry.NewTestTelemetry()
//	tracer := tt.Tracer("test")
//	_, span := tracer.Start(ctx, "test-span")
//	span.End()
//	tt.AssertSpanExists(t, "test-span")
package telemetry
