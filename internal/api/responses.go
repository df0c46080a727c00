// Package api provides HTTP handlers and routing for the stac-layer service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rkm/stac-layer/internal/fetch"
	"github.com/rkm/stac-layer/internal/stac"
)

// STACError represents a STAC-compliant error response.
type STACError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	RequestID   string `json:"request_id,omitempty"`
}

// Standard STAC error codes.
const (
	ErrCodeBadRequest       = "BadRequest"
	ErrCodeNotFound         = "NotFound"
	ErrCodeInvalidParameter = "InvalidParameterValue"
	ErrCodeServerError      = "ServerError"
	ErrCodeUpstreamError    = "UpstreamServiceError"
)

// WriteJSON writes a JSON response with the given status code and value.
// If encoding fails, it logs the error and returns it.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response",
			slog.String("error", err.Error()),
		)
		return err
	}

	return nil
}

// WriteError writes a STAC-compliant error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeError(w, status, STACError{Code: code, Description: message})
}

func writeError(w http.ResponseWriter, status int, errResp STACError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		slog.Error("failed to encode error response",
			slog.String("error", err.Error()),
		)
	}
}

// WriteBadRequest writes a 400 Bad Request error response.
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// WriteNotFound writes a 404 Not Found error response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// WriteInvalidParameter writes a 400 Bad Request error for invalid parameters.
func WriteInvalidParameter(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, ErrCodeInvalidParameter, message)
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ErrCodeServerError, message)
}

// WriteInternalErrorWithRequestID writes a 500 response carrying the request
// ID so that clients can report it.
func WriteInternalErrorWithRequestID(w http.ResponseWriter, message, requestID string) {
	writeError(w, http.StatusInternalServerError, STACError{
		Code:        ErrCodeServerError,
		Description: message,
		RequestID:   requestID,
	})
}

// WriteUpstreamError writes a 502 Bad Gateway error for upstream service failures.
func WriteUpstreamError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, ErrCodeUpstreamError, message)
}

// WriteVisualizeError maps document and engine errors to responses. Input
// errors keep their stable code.
func WriteVisualizeError(w http.ResponseWriter, err error) {
	var se *stac.Error
	switch {
	case errors.As(err, &se) && se.Code == stac.CodeLocationMissing:
		WriteError(w, http.StatusUnprocessableEntity, se.Code, se.Message)
	case errors.As(err, &se):
		WriteError(w, http.StatusBadRequest, se.Code, se.Message)
	case errors.Is(err, stac.ErrNoData):
		WriteBadRequest(w, err.Error())
	case errors.Is(err, fetch.ErrInvalidURL):
		WriteInvalidParameter(w, err.Error())
	case errors.Is(err, fetch.ErrUpstream), errors.Is(err, fetch.ErrTooLarge):
		WriteUpstreamError(w, err.Error())
	default:
		WriteInternalError(w, err.Error())
	}
}
