package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"

	"transitions-api-go/services/transitions"
	"transitions-api-go/utils"
)

// maxErrorBodyLog bounds how much of an upstream error body ends up in logs
const maxErrorBodyLog = 300

// ClassifyTransport maps a failed round trip (no HTTP response) to an error kind
func ClassifyTransport(provider string, err error) *transitions.Error {
	var kind transitions.Kind
	var msg string

	var netErr net.Error
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		kind, msg = transitions.KindTimeout, "request timed out"
	case errors.As(err, &netErr) && netErr.Timeout():
		kind, msg = transitions.KindTimeout, "request timed out"
	case errors.Is(err, syscall.ECONNREFUSED):
		kind, msg = transitions.KindNetwork, "connection refused"
	case errors.As(err, &dnsErr):
		kind, msg = transitions.KindNetwork, "host could not be resolved"
	default:
		kind, msg = transitions.KindNetwork, "request failed"
	}

	return transitions.NewError(kind, msg, err).WithProvider(provider)
}

// ClassifyStatus maps a non-2xx upstream response to an error kind.
// body is the (possibly truncated) response body; it is kept in the wrapped
// cause for logs and never shown to clients.
func ClassifyStatus(provider string, statusCode int, body []byte) *transitions.Error {
	text := strings.TrimSpace(string(body))
	cause := fmt.Errorf("HTTP %d: %s", statusCode, utils.Truncate(text, maxErrorBodyLog))

	var kind transitions.Kind
	var msg string
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		kind, msg = transitions.KindAuthentication, "credentials rejected"
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		kind, msg = transitions.KindServiceUnavailable, "model endpoint not found"
	case statusCode == http.StatusTooManyRequests:
		kind, msg = transitions.KindRateLimit, "rate limited by upstream"
	case statusCode == http.StatusServiceUnavailable && strings.Contains(strings.ToLower(text), "loading"):
		kind, msg = transitions.KindModelLoading, "model is loading"
	case statusCode == http.StatusGatewayTimeout:
		kind, msg = transitions.KindTimeout, "upstream timed out"
	case statusCode >= 500:
		kind, msg = transitions.KindServiceUnavailable, "upstream unavailable"
	default:
		kind, msg = transitions.KindInvalidResponse, "unexpected upstream response"
	}

	return transitions.NewError(kind, msg, cause).WithProvider(provider)
}

// MissingConfig builds the error a provider reports when a required setting is absent
func MissingConfig(provider, setting string) *transitions.Error {
	return transitions.Errorf(transitions.KindMissingConfig, "%s is not set", setting).WithProvider(provider)
}
