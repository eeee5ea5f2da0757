package handlers

import (
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/logging"
)

// TenantHeader carries the calling tenant. Authentication is out of scope;
// the header is trusted as set by an upstream gateway.
const TenantHeader = "X-Tenant-ID"

// ApiResponse is the envelope for every JSON response.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	return WriteJSON(w, statusCode, ApiResponse{
		Success: false,
		Error:   errorCode,
		Message: message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteError maps err to its kind's status code. Internal errors are logged
// and reported without detail; classified errors keep their message with
// credentials redacted.
func WriteError(w http.ResponseWriter, logger *zap.Logger, err error) {
	kind := apperrors.KindOf(err)
	status := apperrors.HTTPStatus(kind)

	message := logging.SanitizeError(err)
	if kind == apperrors.KindInternal {
		logger.Error("Unhandled error", logging.ErrorField(err))
		message = "internal server error"
	}

	if writeErr := ErrorResponse(w, status, string(kind), message); writeErr != nil {
		logger.Error("Failed to write error response", zap.Error(writeErr))
	}
}

func writeData(w http.ResponseWriter, logger *zap.Logger, statusCode int, data any) {
	if err := WriteJSON(w, statusCode, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

// decodeBody reads a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return apperrors.Validation("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperrors.Validation("invalid request body: %v", err)
	}
	return nil
}

func tenantID(r *http.Request) string {
	return r.Header.Get(TenantHeader)
}
