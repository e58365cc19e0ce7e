package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved() (*Tracer, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return New("test", zap.New(core)), logs
}

func TestStartSpanNests(t *testing.T) {
	tracer, _ := newObserved()
	defer tracer.Close()

	parent, ctx := tracer.StartSpan(context.Background(), "parent")
	child, childCtx := tracer.StartSpan(ctx, "child")

	assert.NotEmpty(t, parent.TraceID)
	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)
	assert.Equal(t, child.SpanID, GetSpanID(childCtx))
	assert.Empty(t, parent.ParentID)
}

func TestSubmitLogsSpan(t *testing.T) {
	tracer, logs := newObserved()

	span, _ := tracer.StartSpan(context.Background(), "session")
	span.SetTag("peer", "peer_1")
	tracer.Submit(span)

	failed, _ := tracer.StartSpan(context.Background(), "broken")
	failed.SetError(errors.New("boom"))
	tracer.Submit(failed)
	tracer.Close()

	require.Eventually(t, func() bool { return logs.Len() == 2 }, time.Second, 5*time.Millisecond)
	entries := logs.All()
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "peer_1", entries[0].ContextMap()["peer"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestHeaderPropagation(t *testing.T) {
	ctx := WithSpan(context.Background(), "trace-1", "span-1")
	h := http.Header{}
	Inject(ctx, h)
	assert.Equal(t, "trace-1", h.Get(HeaderTraceID))

	got := Extract(context.Background(), h)
	assert.Equal(t, TraceID("trace-1"), GetTraceID(got))
	assert.Equal(t, SpanID("span-1"), GetSpanID(got))
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, logs := newObserved()

	var seen TraceID
	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/health", func(c *gin.Context) {
		seen = GetTraceID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderTraceID, "upstream")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	tracer.Close()

	assert.Equal(t, TraceID("upstream"), seen)
	assert.Equal(t, "upstream", rec.Header().Get(HeaderTraceID))
	require.Eventually(t, func() bool { return logs.Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "200", logs.All()[0].ContextMap()["http.status"])
}
