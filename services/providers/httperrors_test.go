package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"testing"

	"transitions-api-go/services/transitions"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   transitions.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"Invalid token"}`, transitions.KindAuthentication},
		{"forbidden", http.StatusForbidden, "", transitions.KindAuthentication},
		{"not found", http.StatusNotFound, "", transitions.KindServiceUnavailable},
		{"gone", http.StatusGone, "", transitions.KindServiceUnavailable},
		{"rate limited", http.StatusTooManyRequests, "", transitions.KindRateLimit},
		{"model loading", http.StatusServiceUnavailable, `{"error":"Model facebook/musicgen-small is currently loading"}`, transitions.KindModelLoading},
		{"plain 503", http.StatusServiceUnavailable, "maintenance", transitions.KindServiceUnavailable},
		{"gateway timeout", http.StatusGatewayTimeout, "", transitions.KindTimeout},
		{"internal error", http.StatusInternalServerError, "", transitions.KindServiceUnavailable},
		{"bad request", http.StatusBadRequest, "bad input", transitions.KindInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyStatus("musicgen", tt.status, []byte(tt.body))
			if err.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", err.Kind, tt.want)
			}
			if err.Provider != "musicgen" {
				t.Errorf("Expected provider attribution, got %q", err.Provider)
			}
		})
	}
}

func TestClassifyStatus_BodyStaysOutOfMessage(t *testing.T) {
	err := ClassifyStatus("fal", http.StatusUnauthorized, []byte("secret-key-123 is invalid"))

	if strings.Contains(err.Message, "secret-key-123") {
		t.Error("Expected upstream body to stay out of the message")
	}
	if !strings.Contains(err.Err.Error(), "HTTP 401") {
		t.Errorf("Expected wrapped cause to carry the status, got %v", err.Err)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want transitions.Kind
	}{
		{"context deadline", fmt.Errorf("Post: %w", context.DeadlineExceeded), transitions.KindTimeout},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, transitions.KindTimeout},
		{"connection refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, transitions.KindNetwork},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "example.invalid"}, transitions.KindNetwork},
		{"other", errors.New("EOF"), transitions.KindNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyTransport("stable-audio", tt.err)
			if err.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", err.Kind, tt.want)
			}
			if !errors.Is(err, tt.err) {
				t.Error("Expected the transport error to stay in the chain")
			}
		})
	}
}

func TestMissingConfig(t *testing.T) {
	err := MissingConfig("fal", "FAL_KEY")
	if err.Kind != transitions.KindMissingConfig {
		t.Errorf("Expected MISSING_CONFIG, got %s", err.Kind)
	}
	if err.Message != "FAL_KEY is not set" {
		t.Errorf("Unexpected message %q", err.Message)
	}
}
