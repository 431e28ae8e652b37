package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/domain/invoicing"
	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/infrastructure/persistence/models"
)

// GormCredentialRepository implements invoicing.CredentialRepository using GORM.
// It holds one row per external service name and performs no retries; storage
// failures surface wrapped in ErrCredentialStorage.
type GormCredentialRepository struct {
	db *gorm.DB
}

// NewGormCredentialRepository creates a new GormCredentialRepository
func NewGormCredentialRepository(db *gorm.DB) *GormCredentialRepository {
	return &GormCredentialRepository{db: db}
}

// Get returns the credential record for the service
func (r *GormCredentialRepository) Get(ctx context.Context, service string) (*invoicing.Credential, error) {
	var model models.ServiceCredentialModel
	if err := r.db.WithContext(ctx).First(&model, "service = ?", service).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invoicing.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("%w: %v", invoicing.ErrCredentialStorage, err)
	}
	return model.ToDomain(), nil
}

// Upsert creates or overwrites the credential record for the service.
// Token fields always overwrite; company id and metadata are preserved when
// the update leaves them empty.
func (r *GormCredentialRepository) Upsert(ctx context.Context, service string, update invoicing.CredentialUpdate) (*invoicing.Credential, error) {
	var model models.ServiceCredentialModel
	err := r.db.WithContext(ctx).First(&model, "service = ?", service).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if update.AccessToken == "" || update.RefreshToken == "" || update.TokenExpiry.IsZero() {
			return nil, fmt.Errorf("%w: access token, refresh token and expiry are required on create", invoicing.ErrCredentialInvalid)
		}
		now := time.Now()
		model = models.ServiceCredentialModel{
			Service:      service,
			AccessToken:  update.AccessToken,
			RefreshToken: update.RefreshToken,
			TokenExpiry:  update.TokenExpiry,
			CompanyID:    update.CompanyID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		model.Metadata = metadataJSON(update.Metadata)
		if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
			return nil, fmt.Errorf("%w: %v", invoicing.ErrCredentialStorage, err)
		}
		return model.ToDomain(), nil

	case err != nil:
		return nil, fmt.Errorf("%w: %v", invoicing.ErrCredentialStorage, err)
	}

	if update.AccessToken != "" {
		model.AccessToken = update.AccessToken
	}
	if update.RefreshToken != "" {
		model.RefreshToken = update.RefreshToken
	}
	if !update.TokenExpiry.IsZero() {
		model.TokenExpiry = update.TokenExpiry
	}
	if update.CompanyID != "" {
		model.CompanyID = update.CompanyID
	}
	if len(update.Metadata) > 0 {
		model.Metadata = metadataJSON(update.Metadata)
	}
	model.UpdatedAt = time.Now()

	if err := r.db.WithContext(ctx).Save(&model).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", invoicing.ErrCredentialStorage, err)
	}
	return model.ToDomain(), nil
}

// Delete removes the credential record. Deleting an absent record is a no-op.
func (r *GormCredentialRepository) Delete(ctx context.Context, service string) error {
	if err := r.db.WithContext(ctx).Delete(&models.ServiceCredentialModel{}, "service = ?", service).Error; err != nil {
		return fmt.Errorf("%w: %v", invoicing.ErrCredentialStorage, err)
	}
	return nil
}

func metadataJSON(metadata map[string]string) string {
	if len(metadata) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// Ensure GormCredentialRepository implements CredentialRepository
var _ invoicing.CredentialRepository = (*GormCredentialRepository)(nil)
