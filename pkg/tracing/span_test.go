package tracing

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/logger"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "GET /api/v1/complete", "req-1")
	cctx, correct := StartChildSpan(ctx, "correct")
	correct.SetAttr("tokens", 2)
	correct.End()
	_, guess := StartChildSpan(ctx, "guess")
	guess.EndErr(errors.New("backend down"))
	root.End()

	if SpanFromContext(cctx) != correct {
		t.Error("child span not stored in context")
	}
	children := root.Children()
	if len(children) != 2 || children[0].TraceID != "req-1" {
		t.Fatalf("children = %+v", children)
	}

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	out := buf.String()
	for _, want := range []string{"span=correct", "tokens=2", `error="backend down"`, "depth=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestDetachedChildSpan(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "orphan")
	span.End()
	if span.TraceID != "" {
		t.Errorf("orphan span has trace id %q", span.TraceID)
	}
}

func TestLogSkippedAboveDebug(t *testing.T) {
	_, root := StartSpan(context.Background(), "root", "x")
	root.End()
	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	if buf.Len() != 0 {
		t.Errorf("span logged at info level: %s", buf.String())
	}
}

func TestMiddlewareUsesRequestID(t *testing.T) {
	var traceID string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = SpanFromContext(r.Context()).TraceID
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/guess", nil)
	req = req.WithContext(logger.WithRequestID(req.Context(), "req-42"))
	h.ServeHTTP(httptest.NewRecorder(), req)
	if traceID != "req-42" {
		t.Errorf("trace id = %q", traceID)
	}
}
