package main

import (
	"encoding/json"
	"net/http"

	"transitions-api-go/middleware"
	"transitions-api-go/services/transitions"
)

// providerRetryAfter is suggested to clients when a provider throttles us
const providerRetryAfter = "60"

// APIResponse handles consistent header setting and the JSON envelope.
type APIResponse struct {
	w           http.ResponseWriter
	r           *http.Request
	cacheStatus string
}

// Respond creates a response helper for the request
func Respond(w http.ResponseWriter, r *http.Request) *APIResponse {
	return &APIResponse{w: w, r: r}
}

// SetCacheStatus sets the X-Cache-Status header value
func (a *APIResponse) SetCacheStatus(status string) *APIResponse {
	a.cacheStatus = status
	return a
}

func (a *APIResponse) writeHeaders() {
	a.w.Header().Set("Content-Type", "application/json")
	if a.cacheStatus != "" {
		a.w.Header().Set("X-Cache-Status", a.cacheStatus)
	}
}

func (a *APIResponse) write(statusCode int, body envelope) error {
	body.RequestID = middleware.RequestIDFromContext(a.r.Context())
	a.writeHeaders()
	a.w.WriteHeader(statusCode)
	return json.NewEncoder(a.w).Encode(body)
}

// JSON writes a 200 success envelope around data
func (a *APIResponse) JSON(data interface{}) error {
	return a.JSONStatus(http.StatusOK, data)
}

// JSONStatus writes a success envelope with a non-default status code
func (a *APIResponse) JSONStatus(statusCode int, data interface{}) error {
	return a.write(statusCode, envelope{Success: true, Data: data})
}

// Fail writes a failure envelope with an explicit status and code
func (a *APIResponse) Fail(statusCode int, code, message string) error {
	return a.write(statusCode, envelope{
		Error: &apiError{Message: message, Code: code},
	})
}

// Error maps a pipeline error onto its status hint, machine code and client-safe message
func (a *APIResponse) Error(err error) error {
	kind := transitions.KindOf(err)
	if kind == transitions.KindRateLimit {
		a.w.Header().Set("Retry-After", providerRetryAfter)
	}
	return a.Fail(transitions.StatusOf(err), string(kind), transitions.PublicMessage(err))
}
