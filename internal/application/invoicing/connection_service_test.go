package invoicing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domain "github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/domain/invoicing"
	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/infrastructure/parasut"
)

// memoryCredentialStore is a minimal CredentialRepository for wiring a real
// token manager in tests.
type memoryCredentialStore struct {
	mu      sync.Mutex
	records map[string]*domain.Credential
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{records: make(map[string]*domain.Credential)}
}

func (s *memoryCredentialStore) Get(ctx context.Context, service string) (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.records[service]
	if !ok {
		return nil, domain.ErrCredentialNotFound
	}
	copied := *cred
	return &copied, nil
}

func (s *memoryCredentialStore) Upsert(ctx context.Context, service string, update domain.CredentialUpdate) (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred := &domain.Credential{
		Service:      service,
		AccessToken:  update.AccessToken,
		RefreshToken: update.RefreshToken,
		TokenExpiry:  update.TokenExpiry,
		CompanyID:    update.CompanyID,
		Metadata:     update.Metadata,
	}
	s.records[service] = cred
	copied := *cred
	return &copied, nil
}

func (s *memoryCredentialStore) Delete(ctx context.Context, service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, service)
	return nil
}

func newConnectionFixture(t *testing.T, oauthURL string, enabled bool) (*ConnectionService, *memoryCredentialStore) {
	t.Helper()
	cfg := &parasut.Config{
		Enabled:        enabled,
		ClientID:       "client-id",
		ClientSecret:   "client-secret",
		CompanyID:      "123",
		RedirectURI:    "https://example.com/callback",
		APIBaseURL:     oauthURL,
		OAuthBaseURL:   oauthURL,
		TimeoutSeconds: 5,
	}
	store := newMemoryCredentialStore()
	tokens, err := parasut.NewTokenManager(cfg, store, zap.NewNop())
	require.NoError(t, err)
	return NewConnectionService(cfg, tokens, zap.NewNop()), store
}

func TestConnectionService_AuthorizationURL(t *testing.T) {
	svc, _ := newConnectionFixture(t, "https://oauth.test", true)

	u := svc.AuthorizationURL()

	assert.Contains(t, u, "https://oauth.test/oauth/authorize?")
	assert.Contains(t, u, "client_id=client-id")
	assert.Contains(t, u, "response_type=code")
}

func TestConnectionService_CompleteAuthorization(t *testing.T) {
	t.Run("stores the exchanged tokens", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"access","refresh_token":"refresh","token_type":"bearer","expires_in":7200}`))
		}))
		defer srv.Close()

		svc, store := newConnectionFixture(t, srv.URL, true)

		err := svc.CompleteAuthorization(context.Background(), "auth-code")

		require.NoError(t, err)
		cred, err := store.Get(context.Background(), parasut.ServiceName)
		require.NoError(t, err)
		assert.Equal(t, "access", cred.AccessToken)
	})

	t.Run("disabled integration refuses the exchange", func(t *testing.T) {
		svc, _ := newConnectionFixture(t, "http://unused", false)

		err := svc.CompleteAuthorization(context.Background(), "auth-code")

		assert.ErrorIs(t, err, domain.ErrIntegrationDisabled)
	})

	t.Run("rejection surfaces as AuthExchangeError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
		}))
		defer srv.Close()

		svc, _ := newConnectionFixture(t, srv.URL, true)

		err := svc.CompleteAuthorization(context.Background(), "bad-code")

		var exchangeErr *domain.AuthExchangeError
		assert.ErrorAs(t, err, &exchangeErr)
	})
}

func TestConnectionService_Status(t *testing.T) {
	t.Run("disabled reports without touching the store", func(t *testing.T) {
		svc, _ := newConnectionFixture(t, "http://unused", false)

		status, err := svc.Status(context.Background())

		require.NoError(t, err)
		assert.False(t, status.Enabled)
		assert.False(t, status.Connected)
	})

	t.Run("no credential means disconnected", func(t *testing.T) {
		svc, _ := newConnectionFixture(t, "http://unused", true)

		status, err := svc.Status(context.Background())

		require.NoError(t, err)
		assert.True(t, status.Enabled)
		assert.False(t, status.Connected)
		assert.False(t, status.TokenValid)
		assert.Nil(t, status.TokenExpiry)
	})

	t.Run("valid credential reports connected", func(t *testing.T) {
		svc, store := newConnectionFixture(t, "http://unused", true)
		expiry := time.Now().Add(time.Hour)
		_, err := store.Upsert(context.Background(), parasut.ServiceName, domain.CredentialUpdate{
			AccessToken:  "access",
			RefreshToken: "refresh",
			TokenExpiry:  expiry,
		})
		require.NoError(t, err)

		status, err := svc.Status(context.Background())

		require.NoError(t, err)
		assert.True(t, status.Connected)
		assert.True(t, status.TokenValid)
		require.NotNil(t, status.TokenExpiry)
		assert.WithinDuration(t, expiry, *status.TokenExpiry, time.Second)
	})

	t.Run("expired credential reports connected but invalid", func(t *testing.T) {
		svc, store := newConnectionFixture(t, "http://unused", true)
		_, err := store.Upsert(context.Background(), parasut.ServiceName, domain.CredentialUpdate{
			AccessToken:  "access",
			RefreshToken: "refresh",
			TokenExpiry:  time.Now().Add(-time.Hour),
		})
		require.NoError(t, err)

		status, err := svc.Status(context.Background())

		require.NoError(t, err)
		assert.True(t, status.Connected)
		assert.False(t, status.TokenValid)
	})
}

func TestConnectionService_Disconnect(t *testing.T) {
	svc, store := newConnectionFixture(t, "http://unused", true)
	_, err := store.Upsert(context.Background(), parasut.ServiceName, domain.CredentialUpdate{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenExpiry:  time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Disconnect(context.Background()))

	_, err = store.Get(context.Background(), parasut.ServiceName)
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Connected)
}
