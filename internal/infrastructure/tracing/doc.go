/*
Package tracing provides lightweight request tracing for the terminal host.

# Overview

Every HTTP request gets a span. Trace ids are prefixed ULIDs (req_*) and
travel in headers, so a webtermctl invocation and the server log lines it
caused share one trace id. Completed spans are logged at debug level by a
background collector.

# Usage

	tracer := tracing.New("webterm", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	// Manual span creation
	span, ctx := tracer.StartSpan(ctx, "terminal.create")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
	span.SetTag("session_id", sessionID)

	// Log with the request's trace ids
	tracing.Logger(ctx, logger).Info("session created")

# Trace Format

Traces use HTTP headers for propagation:
  - X-Trace-ID: identifier of the whole request flow
  - X-Span-ID: identifier of the current operation

Long-lived stream requests report their span when the viewer disconnects.
*/
package tracing
