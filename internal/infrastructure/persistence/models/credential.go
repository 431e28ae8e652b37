package models

import (
	"encoding/json"
	"time"

	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/domain/invoicing"
)

// ServiceCredentialModel is the GORM model for durable OAuth credentials.
// One row per external service name.
type ServiceCredentialModel struct {
	Service      string    `gorm:"primaryKey;size:64"`
	AccessToken  string    `gorm:"not null"`
	RefreshToken string    `gorm:"not null"`
	TokenExpiry  time.Time `gorm:"not null"`
	CompanyID    string    `gorm:"size:64"`
	Metadata     string    `gorm:"type:jsonb;default:'{}'"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for ServiceCredentialModel
func (ServiceCredentialModel) TableName() string {
	return "service_credentials"
}

// ToDomain converts the model to a domain Credential
func (m *ServiceCredentialModel) ToDomain() *invoicing.Credential {
	metadata := make(map[string]string)
	if m.Metadata != "" && m.Metadata != "{}" {
		// Corrupt metadata degrades to an empty map; tokens stay usable.
		_ = json.Unmarshal([]byte(m.Metadata), &metadata)
	}

	return &invoicing.Credential{
		Service:      m.Service,
		AccessToken:  m.AccessToken,
		RefreshToken: m.RefreshToken,
		TokenExpiry:  m.TokenExpiry,
		CompanyID:    m.CompanyID,
		Metadata:     metadata,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// FromDomain populates the model from a domain Credential
func (m *ServiceCredentialModel) FromDomain(c *invoicing.Credential) {
	m.Service = c.Service
	m.AccessToken = c.AccessToken
	m.RefreshToken = c.RefreshToken
	m.TokenExpiry = c.TokenExpiry
	m.CompanyID = c.CompanyID
	m.Metadata = marshalMetadata(c.Metadata)
	m.CreatedAt = c.CreatedAt
	m.UpdatedAt = c.UpdatedAt
}

func marshalMetadata(metadata map[string]string) string {
	if len(metadata) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
