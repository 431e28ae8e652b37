package dto

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	// AuthorizationURL is set on re-authorization errors so an operator can
	// restart the OAuth flow directly from the error payload.
	AuthorizationURL string `json:"authorization_url,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data interface{}) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// NewErrorResponseWithRequestID creates an error response carrying the request ID
func NewErrorResponseWithRequestID(code, message, requestID string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	}
}

// NewReauthResponse creates a re-authorization error response with the URL the
// operator must visit
func NewReauthResponse(message, authorizationURL, requestID string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:             ErrCodeReauthRequired,
			Message:          message,
			RequestID:        requestID,
			AuthorizationURL: authorizationURL,
		},
	}
}
