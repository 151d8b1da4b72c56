package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Authentication errors
	CodeAuthenticationFailed     Code = "AUTHENTICATION_FAILED"
	CodeMissingRequiredAttribute Code = "MISSING_REQUIRED_ATTRIBUTE"

	// Infrastructure errors
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
	CodeSessionStore       Code = "SESSION_STORE_ERROR"
)

// HTTPStatus maps an error code to its HTTP response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeAuthenticationFailed:
		return http.StatusUnauthorized
	case CodeMissingRequiredAttribute:
		return http.StatusBadRequest
	case CodeStorageUnavailable, CodeSessionStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
