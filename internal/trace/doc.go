// Package trace records what funcmerge does while it runs.
//
// Tracing is off unless enabled from the command line:
//
//	funcmerge merge --trace=- --trace-level=detail in.mf
//
// # Tracers
//
//   - Nop: zero-overhead tracer used when tracing is disabled
//   - StreamTracer: writes each event as it happens (file/stderr)
//   - RingTracer: keeps the last N events for post-mortem dumps
//   - MultiTracer: fans events out to several tracers
//
// # Levels
//
//   - LevelOff: no tracing
//   - LevelError: only crash dumps
//   - LevelPhase: driver and pass boundaries (one span per merge run)
//   - LevelDetail: per-module and per-batch events
//   - LevelDebug: everything, including per-function merge decisions
//
// # Scopes
//
//   - ScopeDriver: top-level CLI operations
//   - ScopePass: one merge run, one file in the pipeline
//   - ScopeModule: one worklist batch
//   - ScopeNode: single function decisions ("merged a == b", "deferred f")
//
// # Context Propagation
//
// The tracer travels with the context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopePass, "mergefunc", parentID)
//	defer span.End("")
package trace
