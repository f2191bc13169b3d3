// Package trace records spans for linking and delegate creation.
//
// A tracer is carried through the pipeline in a context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	ctx, span := trace.StartSpan(ctx, trace.ScopePass, "emit")
//	defer span.End("")
//
// Implementations: Nop, StreamTracer (text or NDJSON to a writer),
// RingTracer (last N events, dumped on a crash) and MultiTracer.
//
// Levels gate scopes: phase shows driver and pass spans, detail adds
// modules, debug adds individual types and delegate requests.
//
//	aotrt link --trace=- --trace-level=detail
package trace
