/*
Package tracing provides lightweight request tracing across the control API
and the workspace backend.

Each control API request opens a span. Calls the session core makes to the
backend while serving that request carry the same trace ID, so one log
query finds both sides.

# Usage

	tracer := tracing.New("studio", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	// outgoing requests
	tracing.Inject(req.Context(), req.Header)

# Propagation

  - X-Trace-ID: identifies the whole request flow
  - X-Span-ID: identifies the calling operation

Finished spans are buffered and logged by a single collector goroutine.
*/
package tracing
