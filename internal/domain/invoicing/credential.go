package invoicing

import (
	"context"
	"time"
)

// Credential is the durable record of a service's OAuth tokens. There is at
// most one record per service name. The record is never deleted automatically;
// a failed refresh only clears the in-memory cache so an operator can recover
// by re-authenticating.
type Credential struct {
	Service      string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	CompanyID    string
	Metadata     map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsComplete reports whether the record carries everything needed to act as
// a usable credential.
func (c *Credential) IsComplete() bool {
	return c.AccessToken != "" && c.RefreshToken != "" && !c.TokenExpiry.IsZero()
}

// CredentialUpdate carries the fields written on upsert. Zero-valued fields
// are preserved on update; all three token fields are required on create.
type CredentialUpdate struct {
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	CompanyID    string
	Metadata     map[string]string
}

// CredentialRepository is the durable credential store. It is the sole
// cross-process source of truth for tokens; no retry logic lives here, storage
// failures surface wrapped in ErrCredentialStorage.
type CredentialRepository interface {
	// Get returns the record for the service, or ErrCredentialNotFound.
	Get(ctx context.Context, service string) (*Credential, error)

	// Upsert creates or overwrites the record. Creating without access token,
	// refresh token and expiry fails with ErrCredentialInvalid.
	Upsert(ctx context.Context, service string, update CredentialUpdate) (*Credential, error)

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, service string) error
}
