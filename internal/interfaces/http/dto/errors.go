package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
)

// Integration error codes
const (
	// ErrCodeIntegrationDisabled is used when the accounting integration is off
	ErrCodeIntegrationDisabled = "ERR_INTEGRATION_DISABLED"
	// ErrCodeReauthRequired is used when the provider connection must be
	// re-authorized by an operator
	ErrCodeReauthRequired = "ERR_REAUTH_REQUIRED"
	// ErrCodeProviderUnavailable is used when the provider cannot be reached
	// or keeps failing after retries
	ErrCodeProviderUnavailable = "ERR_PROVIDER_UNAVAILABLE"
	// ErrCodeProviderRejected is used when the provider rejected the request
	ErrCodeProviderRejected = "ERR_PROVIDER_REJECTED"
	// ErrCodeJobTimeout is used when a provider-side job never reached a
	// terminal status
	ErrCodeJobTimeout = "ERR_JOB_TIMEOUT"
	// ErrCodeWorkflowFailed is used for fatal invoice workflow failures
	ErrCodeWorkflowFailed = "ERR_WORKFLOW_FAILED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:  http.StatusBadRequest,
	ErrCodeBadRequest:  http.StatusBadRequest,
	ErrCodeInvalidJSON: http.StatusBadRequest,

	// Resource errors
	ErrCodeNotFound: http.StatusNotFound,
	ErrCodeConflict: http.StatusConflict,

	// Integration errors
	ErrCodeIntegrationDisabled: http.StatusServiceUnavailable,
	ErrCodeReauthRequired:      http.StatusConflict,
	ErrCodeProviderUnavailable: http.StatusBadGateway,
	ErrCodeProviderRejected:    http.StatusUnprocessableEntity,
	ErrCodeJobTimeout:          http.StatusGatewayTimeout,
	ErrCodeWorkflowFailed:      http.StatusBadGateway,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
