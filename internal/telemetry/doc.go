// Package telemetry provides OpenTelemetry tracing and metrics for cigen.
//
// Traces and metrics are exported over OTLP (gRPC by default, or
// http/protobuf) to a collector. When telemetry is disabled, or a provider
// cannot be created, Tracer and Meter fall back to the global no-op
// providers so instrumented code never has to check.
//
//	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	ctx, span := tel.Tracer("cigen.orchestrator").Start(ctx, "node.generate")
//	defer span.End()
//
// Tests use NewTestTelemetry, which records spans in memory and exposes a
// manual metric reader:
//
//	tt := telemetry.NewTestTelemetry()
//	runSomething(tt.Tracer("test"), tt.Meter("test"))
//	tt.AssertSpanAttribute(t, "node.parse", "run.id", runID)
//	got := tt.Int64Sum(ctx, "cigen.orchestrator.node.executions")
package telemetry
