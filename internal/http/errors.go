package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"finscope/internal/core"
	"finscope/internal/log"
)

// APIError is the JSON error body returned by every endpoint
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Render implements render.Renderer
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

func newAPIError(status int, code, message string, details any) *APIError {
	return &APIError{StatusCode: status, Code: code, Message: message, Details: details}
}

func errInvalidRequest(err error) *APIError {
	return newAPIError(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err.Error())
}

func errMissingParameter(name string) *APIError {
	return newAPIError(http.StatusBadRequest, "MISSING_PARAMETER", "Required parameter is missing", map[string]string{"parameter": name})
}

func errInvalidParameter(name, value string) *APIError {
	return newAPIError(http.StatusBadRequest, "INVALID_PARAMETER", "Invalid parameter value",
		map[string]string{"parameter": name, "value": value})
}

var errRateLimited = newAPIError(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded", nil)

// errorFor maps service errors onto API errors.
func errorFor(err error) *APIError {
	var apiErr *APIError
	var verr *core.ValidationError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &verr):
		return newAPIError(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed",
			map[string]string{"field": verr.Field, "reason": verr.Reason})
	case errors.Is(err, core.ErrStorageUnavailable):
		return newAPIError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Storage temporarily unavailable", nil)
	case errors.Is(err, context.DeadlineExceeded):
		return newAPIError(http.StatusGatewayTimeout, "TIMEOUT", "Request timed out", nil)
	default:
		return newAPIError(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error", nil)
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := errorFor(err)
	logger := log.FromContext(r.Context())
	if apiErr.StatusCode >= http.StatusInternalServerError {
		errType := log.ErrorTypeInternal
		if apiErr.StatusCode == http.StatusServiceUnavailable {
			errType = log.ErrorTypeStorage
		}
		logger.ErrorContext(r.Context(), "Request failed",
			log.NewFields().WithError(err, errType).ToSlice()...)
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			log.NewFields().WithError(err, log.ErrorTypeValidation).ToSlice()...)
	}
	render.Render(w, r, apiErr)
}
