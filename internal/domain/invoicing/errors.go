package invoicing

import (
	"errors"
	"fmt"
	"strings"
)

// Provider transport errors
var (
	ErrProviderAuth        = errors.New("invoicing: provider authentication failed")
	ErrProviderTransient   = errors.New("invoicing: provider temporarily unavailable")
	ErrProviderRateLimited = errors.New("invoicing: provider rate limited")
	ErrProviderServer      = errors.New("invoicing: provider server error")
	ErrProviderRequest     = errors.New("invoicing: provider rejected request")
	ErrProviderUnavailable = errors.New("invoicing: provider unreachable")
)

// Credential store errors
var (
	ErrCredentialNotFound = errors.New("invoicing: credential not found")
	ErrCredentialInvalid  = errors.New("invoicing: credential record incomplete")
	ErrCredentialStorage  = errors.New("invoicing: credential storage unavailable")
)

// Workflow errors
var (
	ErrValidation          = errors.New("invoicing: validation failed")
	ErrJobTimeout          = errors.New("invoicing: trackable job polling attempts exhausted")
	ErrIntegrationDisabled = errors.New("invoicing: integration disabled")
)

// AuthExchangeError is returned when the authorization-code grant is rejected
// by the provider's token endpoint.
type AuthExchangeError struct {
	StatusCode  int
	Description string
}

func (e *AuthExchangeError) Error() string {
	return fmt.Sprintf("invoicing: authorization code exchange failed (HTTP %d): %s", e.StatusCode, e.Description)
}

// ReauthRequiredError signals that the stored refresh token is no longer
// accepted and the integration must be re-authorized by an operator.
// AuthorizationURL is the URL the operator must visit to restart the flow.
type ReauthRequiredError struct {
	AuthorizationURL string
	Cause            error
}

func (e *ReauthRequiredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invoicing: re-authorization required: %v", e.Cause)
	}
	return "invoicing: re-authorization required"
}

func (e *ReauthRequiredError) Unwrap() error {
	return e.Cause
}

// RemoteJobError is returned when a trackable job reaches the error status.
// It is terminal: the poller never retries a failed job.
type RemoteJobError struct {
	JobID    string
	Messages []string
}

func (e *RemoteJobError) Error() string {
	return fmt.Sprintf("invoicing: remote job %s failed: %s", e.JobID, strings.Join(e.Messages, "; "))
}

// WorkflowError wraps a fatal workflow failure with the step it occurred in,
// so operators can see which step failed and the last remote error verbatim.
type WorkflowError struct {
	Step  WorkflowStep
	State WorkflowState
	Err   error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("invoicing: workflow failed at step %s (state %s): %v", e.Step, e.State, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}
