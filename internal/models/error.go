package models

import (
	"errors"
	"fmt"
	"net/http"
)

// Token lifecycle error taxonomy. Every failure leaving the token layer is
// classified into one of these before it reaches an HTTP response.
var (
	// ErrNotFound signals an unknown installation id
	ErrNotFound = errors.New("installation not found")

	// ErrInvalidGrant signals an authorization code or refresh token rejected by
	// upstream. Codes are single-use and short-lived; this is not retried.
	ErrInvalidGrant = errors.New("invalid_grant")

	// ErrRefreshFailed signals a terminal per-installation refresh failure: the
	// refresh token is absent or exhausted and a fresh OAuth install is required.
	ErrRefreshFailed = errors.New("refresh_failed")

	// ErrUpstreamUnavailable signals a network error, timeout or 5xx from
	// upstream. Eligible for retry on the next scheduler tick.
	ErrUpstreamUnavailable = errors.New("upstream_unavailable")
)

// UpstreamError carries a non-auth 4xx response from the upstream REST API.
// The body is passed through verbatim; this layer does not rewrite tenant
// validation errors.
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, string(e.Body))
}

// StatusForError maps a taxonomy error to the HTTP status attached to the response
func StatusForError(err error) int {
	var upstreamErr *UpstreamError
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidGrant), errors.Is(err, ErrRefreshFailed):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusBadGateway
	case errors.As(err, &upstreamErr):
		return upstreamErr.StatusCode
	default:
		return http.StatusInternalServerError
	}
}

// CodeForError maps a taxonomy error to a stable machine-readable code. The
// OAuth callback puts these on the browser redirect instead of raw upstream
// bodies so credentials and internals never leak to the end user.
func CodeForError(err error) string {
	var upstreamErr *UpstreamError
	switch {
	case errors.Is(err, ErrNotFound):
		return "installation_not_found"
	case errors.Is(err, ErrInvalidGrant):
		return "invalid_grant"
	case errors.Is(err, ErrRefreshFailed):
		return "refresh_failed"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.As(err, &upstreamErr):
		return "upstream_error"
	default:
		return "internal_error"
	}
}

// APIError represents a standardized error response for the API
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewAPIError creates a new API error with the given code and message
func NewAPIError(code, message string, details ...map[string]interface{}) APIError {
	err := APIError{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}
