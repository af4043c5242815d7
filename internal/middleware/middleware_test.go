package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"/health", "/health"},
		{"/api/jobs", "/api/jobs"},
		{"/api/jobs/550e8400-e29b-41d4-a716-446655440000", "/api/jobs/{id}"},
		{"/api/jobs/550e8400-e29b-41d4-a716-446655440000/cancel", "/api/jobs/{id}/cancel"},
		{"/api/artworks/12345/media", "/api/artworks/{id}/media"},
		{"/api/scan", "/api/scan"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.in); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeLogField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean path", "/api/scan", "/api/scan"},
		{"newline injection", "/a\nFAKE LOG LINE", "/a FAKE LOG LINE"},
		{"carriage return", "/a\rb", "/a b"},
		{"escape sequence stripped", "/a\x1b[31mred", "/a[31mred"},
		{"delete char stripped", "/a\x7fb", "/ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeLogField(tt.in); got != tt.want {
				t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResponseWriterCapturesStatusAndBytes(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK) // second call ignored
	if _, err := rw.Write([]byte("hello")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if rw.statusCode != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rw.statusCode)
	}
	if rw.bytesWritten != 5 {
		t.Errorf("bytes = %d, want 5", rw.bytesWritten)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("recorded status = %d, want 418", rec.Code)
	}
}

func TestResponseWriterForwardsFlush(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	// httptest.ResponseRecorder implements http.Flusher.
	var w http.ResponseWriter = rw
	f, ok := w.(http.Flusher)
	if !ok {
		t.Fatal("wrapped writer does not implement http.Flusher")
	}

	if _, err := rw.Write([]byte("data")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	f.Flush()
	if !rec.Flushed {
		t.Error("Flush was not forwarded to the underlying writer")
	}
}

func TestLoggerMiddlewarePassesThrough(t *testing.T) {
	t.Parallel()

	handler := Logger(LoggingConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/scan", nil))

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestMetricsMiddlewarePassesThrough(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"/api/jobs", "/health", "/metrics"} {
		handler := Metrics()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusNoContent {
			t.Errorf("GET %s status = %d, want 204", path, rec.Code)
		}
	}
}

// The SSE path depends on Flush reaching the real connection through
// every wrapper; a hijack-incapable writer is fine, a flush-incapable
// one is not.
func TestWrappedWriterKeepsFlusherThroughChain(t *testing.T) {
	t.Parallel()

	var sawFlusher bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawFlusher = w.(http.Flusher)
	})

	handler := Logger(LoggingConfig{})(Metrics()(inner))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/scan", nil))

	if !sawFlusher {
		t.Error("flusher lost crossing the middleware chain")
	}
}
