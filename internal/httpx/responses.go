package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error codes returned in the error envelope.
const (
	CodeValidation  = "ValidationError"
	CodeNotFound    = "NotFound"
	CodeTooLarge    = "RequestTooLarge"
	CodeRateLimited = "RateLimitExceeded"
	CodeUnavailable = "ServiceUnavailable"
	CodeInternal    = "InternalError"
)

type ErrorResponse struct {
	Error ErrorResponseBody `json:"error"`
}

type ErrorResponseBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

// JSONError writes the error envelope and logs server-side failures.
func JSONError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	requestID := RequestIDFrom(r)
	if statusCode >= http.StatusInternalServerError {
		slog.Error(message, "code", code, "status", statusCode, "request_id", requestID)
	} else {
		slog.Debug(message, "code", code, "status", statusCode, "request_id", requestID)
	}
	JSON(w, statusCode, ErrorResponse{
		Error: ErrorResponseBody{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	})
}
