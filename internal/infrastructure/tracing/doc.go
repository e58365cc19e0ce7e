/*
Package tracing provides lightweight request tracing.

Spans are collected on a buffered channel and written to the zap logger:
completed spans at debug level, failed ones at warn. Trace context travels
in the X-Trace-ID and X-Span-ID headers, so a renderer that sets them on its
WebSocket upgrade request finds its bridge session in the host's logs under
the same trace.

# Usage

	tracer := tracing.New("remote-host", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "session")
	defer tracer.Submit(span)
	span.SetTag("peer", peer.String())
*/
package tracing
