package transitions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies every failure the transition pipeline can surface.
// Its string value doubles as the machine-readable error code.
type Kind string

const (
	KindValidation         Kind = "VALIDATION"
	KindMissingConfig      Kind = "MISSING_CONFIG"
	KindInvalidProvider    Kind = "INVALID_PROVIDER"
	KindRateLimit          Kind = "RATE_LIMIT"
	KindTimeout            Kind = "TIMEOUT"
	KindNetwork            Kind = "NETWORK_ERROR"
	KindModelLoading       Kind = "MODEL_LOADING"
	KindServiceUnavailable Kind = "SERVICE_UNAVAILABLE"
	KindAuthentication     Kind = "AUTHENTICATION_ERROR"
	KindInvalidResponse    Kind = "INVALID_RESPONSE"
	KindDownload           Kind = "DOWNLOAD_ERROR"
	KindNotFound           Kind = "NOT_FOUND"
	KindInternal           Kind = "INTERNAL"
)

// Status returns the HTTP-style status hint for the kind
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindNetwork, KindModelLoading, KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindInvalidResponse, KindDownload:
		return http.StatusBadGateway
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a caller may reasonably try the same request again later.
func (k Kind) Retryable() bool {
	switch k {
	case KindTimeout, KindNetwork, KindModelLoading, KindServiceUnavailable, KindRateLimit:
		return true
	default:
		return false
	}
}

// Error is the single structured error type of the pipeline.
// Provider is empty unless a generation backend produced the failure.
type Error struct {
	Kind     Kind
	Message  string
	Provider string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindTimeout}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Provider == ""
}

// NewError creates an Error with the kind's default status hint
func NewError(kind Kind, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Status:  kind.Status(),
		Err:     err,
	}
}

// Errorf creates an Error with a formatted message
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return NewError(kind, fmt.Sprintf(format, args...), nil)
}

// WithProvider returns a copy of the error attributed to a provider
func (e *Error) WithProvider(name string) *Error {
	c := *e
	c.Provider = name
	return &c
}

// KindOf extracts the kind of any error. Unclassified errors are INTERNAL,
// except a bare context deadline which is a TIMEOUT.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// StatusOf returns the status hint carried by err
func StatusOf(err error) int {
	var te *Error
	if errors.As(err, &te) && te.Status != 0 {
		return te.Status
	}
	return KindOf(err).Status()
}

const genericFailureMessage = "Failed to generate transition. Please try again later."

// PublicMessage returns the message safe to show to an API client.
// Validation and not-found messages are specific, everything else is generic.
func PublicMessage(err error) string {
	var te *Error
	if errors.As(err, &te) {
		switch te.Kind {
		case KindValidation, KindNotFound:
			return te.Message
		case KindRateLimit:
			return "Generation is currently rate limited. Please wait a moment before trying again."
		}
	}
	return genericFailureMessage
}
