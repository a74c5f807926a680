package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/davidleathers/attendance-analytics-engine/internal/domain/errors"
)

// ErrorBody is the JSON envelope for every error response
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Retryable bool                   `json:"retryable,omitempty"`
}

// statusFor maps error types onto HTTP status codes
func statusFor(t apperrors.ErrorType) int {
	switch t {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeCanceled:
		return http.StatusGatewayTimeout
	case apperrors.ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case apperrors.ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// toAppError classifies err; anything unknown becomes an internal error
// without leaking its text
func toAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return apperrors.NewValidationError("PAYLOAD_TOO_LARGE", "request body is too large").
			WithDetails(map[string]interface{}{"limit": maxBytes.Limit})
	}
	return apperrors.NewInternalError("an internal error occurred")
}

func writeError(w http.ResponseWriter, err error) {
	appErr := toAppError(err)
	status := statusFor(appErr.Type)
	if appErr.Code == "PAYLOAD_TOO_LARGE" {
		status = http.StatusRequestEntityTooLarge
	}

	message := appErr.Message
	if appErr.Type == apperrors.ErrorTypeInternal {
		message = "an internal error occurred"
	}
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{
		Code:      appErr.Code,
		Message:   message,
		Details:   appErr.Details,
		Retryable: appErr.Retryable,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
