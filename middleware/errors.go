package middleware

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Success   bool        `json:"success"`
	Error     errorDetail `json:"error"`
	RequestID string      `json:"requestId,omitempty"`
}

type errorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// WriteError writes the standard failure envelope
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorBody{
		Error:     errorDetail{Message: message, Code: code},
		RequestID: RequestIDFromContext(r.Context()),
	})
}
