package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/domain/invoicing"
)

func credentialColumns() []string {
	return []string{"service", "access_token", "refresh_token", "token_expiry", "company_id", "metadata", "created_at", "updated_at"}
}

func TestGormCredentialRepository_Get(t *testing.T) {
	t.Run("returns the stored record", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		expiry := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		mock.ExpectQuery(`SELECT \* FROM "service_credentials" WHERE service = \$1`).
			WithArgs("parasut", 1).
			WillReturnRows(sqlmock.NewRows(credentialColumns()).
				AddRow("parasut", "access", "refresh", expiry, "123", `{"source":"refresh"}`, expiry, expiry))

		repo := NewGormCredentialRepository(db.DB)
		cred, err := repo.Get(context.Background(), "parasut")

		require.NoError(t, err)
		assert.Equal(t, "parasut", cred.Service)
		assert.Equal(t, "access", cred.AccessToken)
		assert.Equal(t, "refresh", cred.RefreshToken)
		assert.Equal(t, expiry, cred.TokenExpiry)
		assert.Equal(t, "refresh", cred.Metadata["source"])
		assert.True(t, cred.IsComplete())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("absent record maps to ErrCredentialNotFound", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "service_credentials" WHERE service = \$1`).
			WithArgs("parasut", 1).
			WillReturnRows(sqlmock.NewRows(credentialColumns()))

		repo := NewGormCredentialRepository(db.DB)
		_, err := repo.Get(context.Background(), "parasut")

		assert.ErrorIs(t, err, invoicing.ErrCredentialNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("storage failure is wrapped", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "service_credentials" WHERE service = \$1`).
			WithArgs("parasut", 1).
			WillReturnError(assert.AnError)

		repo := NewGormCredentialRepository(db.DB)
		_, err := repo.Get(context.Background(), "parasut")

		assert.ErrorIs(t, err, invoicing.ErrCredentialStorage)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormCredentialRepository_Upsert(t *testing.T) {
	expiry := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("creates a record when none exists", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "service_credentials" WHERE service = \$1`).
			WithArgs("parasut", 1).
			WillReturnRows(sqlmock.NewRows(credentialColumns()))
		mock.ExpectExec(`INSERT INTO "service_credentials"`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		repo := NewGormCredentialRepository(db.DB)
		cred, err := repo.Upsert(context.Background(), "parasut", invoicing.CredentialUpdate{
			AccessToken:  "access",
			RefreshToken: "refresh",
			TokenExpiry:  expiry,
			CompanyID:    "123",
		})

		require.NoError(t, err)
		assert.Equal(t, "access", cred.AccessToken)
		assert.Equal(t, "123", cred.CompanyID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("create requires the full token triple", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "service_credentials" WHERE service = \$1`).
			WithArgs("parasut", 1).
			WillReturnRows(sqlmock.NewRows(credentialColumns()))

		repo := NewGormCredentialRepository(db.DB)
		_, err := repo.Upsert(context.Background(), "parasut", invoicing.CredentialUpdate{
			AccessToken: "access-only",
		})

		assert.ErrorIs(t, err, invoicing.ErrCredentialInvalid)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update preserves fields the update leaves empty", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "service_credentials" WHERE service = \$1`).
			WithArgs("parasut", 1).
			WillReturnRows(sqlmock.NewRows(credentialColumns()).
				AddRow("parasut", "old-access", "old-refresh", expiry, "123", `{"source":"authorization_code"}`, expiry, expiry))
		mock.ExpectExec(`UPDATE "service_credentials"`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		repo := NewGormCredentialRepository(db.DB)
		cred, err := repo.Upsert(context.Background(), "parasut", invoicing.CredentialUpdate{
			AccessToken: "new-access",
		})

		require.NoError(t, err)
		assert.Equal(t, "new-access", cred.AccessToken)
		assert.Equal(t, "old-refresh", cred.RefreshToken)
		assert.Equal(t, "123", cred.CompanyID)
		assert.Equal(t, "authorization_code", cred.Metadata["source"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormCredentialRepository_Delete(t *testing.T) {
	t.Run("removes the record", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectExec(`DELETE FROM "service_credentials" WHERE service = \$1`).
			WithArgs("parasut").
			WillReturnResult(sqlmock.NewResult(0, 1))

		repo := NewGormCredentialRepository(db.DB)
		err := repo.Delete(context.Background(), "parasut")

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deleting an absent record is a no-op", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectExec(`DELETE FROM "service_credentials" WHERE service = \$1`).
			WithArgs("parasut").
			WillReturnResult(sqlmock.NewResult(0, 0))

		repo := NewGormCredentialRepository(db.DB)
		err := repo.Delete(context.Background(), "parasut")

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
