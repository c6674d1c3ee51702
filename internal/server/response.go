package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opencode-ai/agentctx/internal/agent"
	"github.com/opencode-ai/agentctx/internal/resource"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInvalidAgent   = "INVALID_AGENT"
	ErrCodeTimeout        = "RESOURCE_TIMEOUT"
	ErrCodeProcessing     = "RESOURCE_PROCESSING"
	ErrCodeCancelled      = "CANCELLED"
	ErrCodeUnavailable    = "UNAVAILABLE"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeErrorWithDetails(w, status, code, message, nil)
}

// writeErrorWithDetails writes an error response with details.
func writeErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// writeSuccess writes a success response.
func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// writeResourceError maps agent lookup and resolution failures to a status
// code and attaches the error kind and its recovery actions.
func writeResourceError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	details := map[string]any{"kind": resource.Classify(err)}
	if actions := resource.RecoveryActions(err); len(actions) > 0 {
		details["actions"] = actions
	}
	writeErrorWithDetails(w, status, code, err.Error(), details)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, agent.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, resource.ErrClosed):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	}

	switch resource.Classify(err) {
	case resource.ErrorKindValidation:
		return http.StatusUnprocessableEntity, ErrCodeInvalidAgent
	case resource.ErrorKindTimeout:
		return http.StatusGatewayTimeout, ErrCodeTimeout
	case resource.ErrorKindProcessing:
		return http.StatusInternalServerError, ErrCodeProcessing
	case resource.ErrorKindCancelled:
		return http.StatusServiceUnavailable, ErrCodeCancelled
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}
