package core

import (
	"errors"
	"net/http"
)

// HTTPError represents an HTTP error with status code and message key.
// Handlers return it to choose the status of the error response.
type HTTPError struct {
	Code int    // HTTP status code
	Key  string // Message key (e.g., "not_found")
}

// Error implements the error interface.
func (e HTTPError) Error() string {
	return e.Key
}

var (
	ErrBadRequest          = HTTPError{Code: http.StatusBadRequest, Key: "bad_request"}
	ErrForbidden           = HTTPError{Code: http.StatusForbidden, Key: "forbidden"}
	ErrNotFound            = HTTPError{Code: http.StatusNotFound, Key: "not_found"}
	ErrMethodNotAllowed    = HTTPError{Code: http.StatusMethodNotAllowed, Key: "method_not_allowed"}
	ErrInternalServerError = HTTPError{Code: http.StatusInternalServerError, Key: "internal_server_error"}
	ErrServiceUnavailable  = HTTPError{Code: http.StatusServiceUnavailable, Key: "service_unavailable"}
)

// NewHTTPError creates a custom HTTP error with the given status code and key.
func NewHTTPError(code int, key string) HTTPError {
	return HTTPError{Code: code, Key: key}
}

// StatusOf maps an error to the status code of the error response.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	if ue, ok := AsUnavailable(err); ok {
		if ue.Permanent {
			return http.StatusNotFound
		}
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, ErrHandlerNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
