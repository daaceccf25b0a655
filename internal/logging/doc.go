// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// The package wraps Zap with:
//   - Dual output (stdout + OpenTelemetry log bridge)
//   - Automatic context field injection (trace_id, span_id, request.id)
//   - Runtime level adjustment for config reload
//
// # Usage
//
// Create a logger from config:
//
//	logger, err := logging.NewLogger(&cfg.Logging, otelProvider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx = logging.WithRequestID(ctx, requestID)
//	logger.Info(ctx, "document stored", zap.Int("chunks", n))
//
// Output includes automatic correlation:
//
//	{
//	  "ts": "2026-08-25T10:15:30Z",
//	  "level": "info",
//	  "msg": "document stored",
//	  "trace_id": "abc123",
//	  "request.id": "req_456",
//	  "chunks": 12
//	}
//
// # Testing
//
// Use TestLogger for test assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//
// # Concurrency Safety
//
// Logger is safe for concurrent use. Child loggers (With, Named) share
// the parent's level; SetLevel applies to the whole family.
package logging
