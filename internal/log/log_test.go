package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newBufferLogger(level slog.Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: level, Component: ComponentHTTP, Output: &buf}), &buf
}

func TestLoggerAddsComponent(t *testing.T) {
	l, buf := newBufferLogger(slog.LevelInfo)
	l.WithComponent(ComponentWorker).InfoContext(context.Background(), "hello", "k", "v")

	out := buf.String()
	if !strings.Contains(out, "component=worker") || !strings.Contains(out, "k=v") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestLogHTTPEndLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "level=INFO"},
		{http.StatusUnprocessableEntity, "level=WARN"},
		{http.StatusServiceUnavailable, "level=ERROR"},
	}
	for _, tt := range tests {
		l, buf := newBufferLogger(slog.LevelDebug)
		sl := NewStructuredLogger(l)
		r := httptest.NewRequest(http.MethodGet, "/api/v1/transactions?frequency=7", nil)

		sl.LogHTTPEnd(context.Background(), r, "req_1", tt.status, 3*time.Millisecond, "10.0.0.1")

		out := buf.String()
		if !strings.Contains(out, tt.level) {
			t.Errorf("status %d: expected %s in %s", tt.status, tt.level, out)
		}
		if !strings.Contains(out, "request_id=req_1") {
			t.Errorf("status %d: missing request id in %s", tt.status, out)
		}
	}
}

func TestLogError(t *testing.T) {
	l, buf := newBufferLogger(slog.LevelInfo)
	NewStructuredLogger(l).LogError(context.Background(), "store failed", errors.New("boom"), ErrorTypeDatabase, ComponentStorage, OpList)

	out := buf.String()
	for _, want := range []string{"error=boom", "error_type=database_error", "component=storage", "operation=list"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %s", want, out)
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	l, buf := newBufferLogger(slog.LevelInfo)
	h := Middleware(l)(RequestIDMiddleware(func(*http.Request) string { return "req_abc" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).InfoContext(r.Context(), "inside")
		})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "request_id=req_abc") {
		t.Fatalf("request id not propagated: %s", buf.String())
	}
}

func TestFromContextDefault(t *testing.T) {
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatal("expected fallback logger")
	}
}
