package middleware

import (
	"net/http"
	"time"

	"transitions-api-go/logcolors"

	log "github.com/sirupsen/logrus"
)

// ResponseRecorder wraps a ResponseWriter to capture the status code and body size
type ResponseRecorder struct {
	http.ResponseWriter
	StatusCode int
	BodySize   int
}

// NewResponseRecorder creates a recorder defaulting to 200 OK
func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{ResponseWriter: w, StatusCode: http.StatusOK}
}

func (rec *ResponseRecorder) WriteHeader(statusCode int) {
	rec.StatusCode = statusCode
	rec.ResponseWriter.WriteHeader(statusCode)
}

func (rec *ResponseRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.BodySize += n
	return n, err
}

// Flush lets streaming handlers keep working behind the recorder
func (rec *ResponseRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func getStatusColor(statusCode int) string {
	switch {
	case statusCode >= 500:
		return logcolors.Red
	case statusCode >= 400:
		return logcolors.Yellow
	case statusCode >= 300:
		return logcolors.Cyan
	case statusCode >= 200:
		return logcolors.Green
	default:
		return logcolors.Reset
	}
}

// LoggingMiddleware logs one line per request. Server errors are logged at warn level.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := NewResponseRecorder(w)

		next.ServeHTTP(rec, r)

		color := getStatusColor(rec.StatusCode)
		entry := log.WithFields(log.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    rec.StatusCode,
			"bytes":     rec.BodySize,
			"duration":  time.Since(start).String(),
			"requestId": RequestIDFromContext(r.Context()),
			"remote":    r.RemoteAddr,
		})
		line := "%s %s %s %s%d%s"
		if rec.StatusCode >= http.StatusInternalServerError {
			entry.Warnf(line, logcolors.LogHTTP, r.Method, r.URL.Path, color, rec.StatusCode, logcolors.Reset)
			return
		}
		entry.Infof(line, logcolors.LogHTTP, r.Method, r.URL.Path, color, rec.StatusCode, logcolors.Reset)
	})
}
