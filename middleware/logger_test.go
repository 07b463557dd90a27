package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"transitions-api-go/logcolors"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestGetStatusColor(t *testing.T) {
	tests := []struct {
		statusCode int
		want       string
	}{
		{http.StatusOK, logcolors.Green},
		{http.StatusNoContent, logcolors.Green},
		{http.StatusNotModified, logcolors.Cyan},
		{http.StatusBadRequest, logcolors.Yellow},
		{http.StatusTooManyRequests, logcolors.Yellow},
		{http.StatusInternalServerError, logcolors.Red},
		{http.StatusGatewayTimeout, logcolors.Red},
		{http.StatusContinue, logcolors.Reset},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.statusCode), func(t *testing.T) {
			if got := getStatusColor(tt.statusCode); got != tt.want {
				t.Errorf("getStatusColor(%d) = %q, want %q", tt.statusCode, got, tt.want)
			}
		})
	}
}

func TestResponseRecorder(t *testing.T) {
	w := httptest.NewRecorder()
	rec := NewResponseRecorder(w)

	if rec.StatusCode != http.StatusOK || rec.BodySize != 0 {
		t.Fatalf("Unexpected initial recorder %+v", rec)
	}

	rec.Write([]byte("RIFF"))
	if rec.StatusCode != http.StatusOK {
		t.Errorf("Expected implicit 200, got %d", rec.StatusCode)
	}

	rec.WriteHeader(http.StatusTeapot)
	for _, chunk := range []string{"WAVE", "fmt ", "data"} {
		rec.Write([]byte(chunk))
	}

	if rec.StatusCode != http.StatusTeapot {
		t.Errorf("Expected recorded status %d, got %d", http.StatusTeapot, rec.StatusCode)
	}
	if rec.BodySize != 16 {
		t.Errorf("Expected 16 bytes, got %d", rec.BodySize)
	}
	if w.Body.String() != "RIFFWAVEfmt data" {
		t.Errorf("Body not passed through: %q", w.Body.String())
	}
}

func TestResponseRecorder_Flush(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponseRecorder(w).Flush()
	if !w.Flushed {
		t.Error("Expected Flush to reach the underlying writer")
	}
}

func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		statusCode int
		wantLevel  log.Level
	}{
		{http.StatusOK, log.InfoLevel},
		{http.StatusNotFound, log.InfoLevel},
		{http.StatusTooManyRequests, log.InfoLevel},
		{http.StatusInternalServerError, log.WarnLevel},
		{http.StatusServiceUnavailable, log.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.statusCode), func(t *testing.T) {
			hook := test.NewGlobal()
			defer hook.Reset()

			handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rr.Code != tt.statusCode {
				t.Errorf("Expected status %d to pass through, got %d", tt.statusCode, rr.Code)
			}
			entry := hook.LastEntry()
			if entry == nil {
				t.Fatal("Expected a log entry")
			}
			if entry.Level != tt.wantLevel {
				t.Errorf("Expected level %v, got %v", tt.wantLevel, entry.Level)
			}
		})
	}
}

func TestLoggingMiddleware_Fields(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	handler := RequestID(LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("queued"))
	})))

	req := httptest.NewRequest(http.MethodPost, "/transitions/generate", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("Expected a log entry")
	}

	checks := map[string]interface{}{
		"method":    http.MethodPost,
		"path":      "/transitions/generate",
		"status":    http.StatusAccepted,
		"bytes":     len("queued"),
		"requestId": "req-42",
	}
	for field, want := range checks {
		if got := entry.Data[field]; got != want {
			t.Errorf("Expected field %s=%v, got %v", field, want, got)
		}
	}
}
