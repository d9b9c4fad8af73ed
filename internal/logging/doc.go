// Package logging provides structured logging for cigen.
//
// The Logger wraps Zap with:
//   - dual output (stderr + OpenTelemetry via otelzap); stdout is left to
//     command output
//   - automatic correlation fields (trace_id, run.id, repo.owner, repo.name)
//   - secret redaction by field name and value pattern, covering GitHub
//     tokens and credentials embedded in clone URLs
//   - sampling of repeated Debug and Info entries; Warn and above are
//     never sampled
//   - an adapter for the Temporal SDK logger
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	logger.Info(ctx, "node completed", zap.String("node", "generate"))
//
// Tests use NewTestLogger, which records entries in memory:
//
//	tl := logging.NewTestLogger()
//	svc := NewService(tl.Logger)
//	...
//	tl.AssertLogged(t, zapcore.InfoLevel, "node completed")
//	tl.AssertRunCorrelation(t, "node completed", runID)
package logging
