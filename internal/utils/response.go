// Package utils holds HTTP response helpers shared by handlers and
// middlewares.
package utils

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/l3viathan/apy4i/internal/errors"
)

// ErrorBody is the JSON body of an error response.
type ErrorBody struct {
	Code    apierrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

// ErrorResponse wraps an error API response.
type ErrorResponse struct {
	Error   ErrorBody      `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// RespondJSON sends a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; an encode error cannot be reported.
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError sends an error JSON response carrying the error's status and
// code.
func RespondError(w http.ResponseWriter, e apierrors.ErrorWithStatus) {
	RespondJSON(w, e.StatusCode(), ErrorResponse{
		Error:   ErrorBody{Code: e.Code(), Message: e.Error()},
		Details: e.Details(),
	})
}

// RespondRaw sends body as-is with the given content type.
func RespondRaw(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
