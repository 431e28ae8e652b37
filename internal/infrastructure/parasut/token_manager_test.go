package parasut

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/domain/invoicing"
)

// fakeCredentialStore is an in-memory CredentialRepository for tests.
type fakeCredentialStore struct {
	mu      sync.Mutex
	records map[string]*invoicing.Credential
	getErr  error
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{records: make(map[string]*invoicing.Credential)}
}

func (s *fakeCredentialStore) Get(ctx context.Context, service string) (*invoicing.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	cred, ok := s.records[service]
	if !ok {
		return nil, invoicing.ErrCredentialNotFound
	}
	copied := *cred
	return &copied, nil
}

func (s *fakeCredentialStore) Upsert(ctx context.Context, service string, update invoicing.CredentialUpdate) (*invoicing.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred := &invoicing.Credential{
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

func (s *fakeCredentialStore) Delete(ctx context.Context, service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, service)
	return nil
}

func (s *fakeCredentialStore) seed(accessToken, refreshToken string, expiry time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[ServiceName] = &invoicing.Credential{
		Service:      ServiceName,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenExpiry:  expiry,
	}
}

func testConfig(oauthURL string) *Config {
	return &Config{
		Enabled:        true,
		ClientID:       "client-id",
		ClientSecret:   "client-secret",
		CompanyID:      "123",
		RedirectURI:    "https://example.com/callback",
		APIBaseURL:     oauthURL,
		OAuthBaseURL:   oauthURL,
		TimeoutSeconds: 5,
	}
}

func newTestTokenManager(t *testing.T, oauthURL string, store *fakeCredentialStore) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(testConfig(oauthURL), store, zap.NewNop())
	require.NoError(t, err)
	return m
}

func writeTokenGrant(w http.ResponseWriter, accessToken, refreshToken string, expiresIn int64) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "bearer",
		"expires_in":    expiresIn,
	})
}

func TestTokenManager_HasValidToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("false before any load", func(t *testing.T) {
		m := newTestTokenManager(t, "http://unused", newFakeCredentialStore())
		m.now = func() time.Time { return now }
		assert.False(t, m.HasValidToken())
		assert.False(t, m.HasAnyToken())
	})

	t.Run("true for a loaded unexpired token", func(t *testing.T) {
		store := newFakeCredentialStore()
		store.seed("access", "refresh", now.Add(2*time.Hour))
		m := newTestTokenManager(t, "http://unused", store)
		m.now = func() time.Time { return now }

		require.NoError(t, m.LoadFromStore(context.Background()))
		assert.True(t, m.HasValidToken())
		assert.True(t, m.HasAnyToken())
	})

	t.Run("false for an expired token but still any-token", func(t *testing.T) {
		store := newFakeCredentialStore()
		store.seed("access", "refresh", now.Add(-time.Minute))
		m := newTestTokenManager(t, "http://unused", store)
		m.now = func() time.Time { return now }

		require.NoError(t, m.LoadFromStore(context.Background()))
		assert.False(t, m.HasValidToken())
		assert.True(t, m.HasAnyToken())
	})

	t.Run("false when refresh token is missing", func(t *testing.T) {
		store := newFakeCredentialStore()
		store.seed("access", "", now.Add(time.Hour))
		m := newTestTokenManager(t, "http://unused", store)
		m.now = func() time.Time { return now }

		require.NoError(t, m.LoadFromStore(context.Background()))
		assert.False(t, m.HasValidToken())
	})
}

func TestTokenManager_LoadFromStore_Absent(t *testing.T) {
	m := newTestTokenManager(t, "http://unused", newFakeCredentialStore())

	err := m.LoadFromStore(context.Background())

	require.NoError(t, err)
	assert.False(t, m.HasAnyToken())
}

func TestTokenManager_ExchangeCode(t *testing.T) {
	t.Run("persists the grant", func(t *testing.T) {
		var gotForm map[string]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			gotForm = map[string]string{
				"grant_type": r.Form.Get("grant_type"),
				"code":       r.Form.Get("code"),
			}
			writeTokenGrant(w, "new-access", "new-refresh", 7200)
		}))
		defer srv.Close()

		store := newFakeCredentialStore()
		m := newTestTokenManager(t, srv.URL, store)

		data, err := m.ExchangeCode(context.Background(), "auth-code")

		require.NoError(t, err)
		assert.Equal(t, "authorization_code", gotForm["grant_type"])
		assert.Equal(t, "auth-code", gotForm["code"])
		assert.Equal(t, "new-access", data.AccessToken)
		assert.Equal(t, "new-refresh", data.RefreshToken)
		assert.True(t, m.HasValidToken())

		cred, err := store.Get(context.Background(), ServiceName)
		require.NoError(t, err)
		assert.Equal(t, "new-access", cred.AccessToken)
		assert.Equal(t, "123", cred.CompanyID)
	})

	t.Run("rejection surfaces as AuthExchangeError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"bad client"}`))
		}))
		defer srv.Close()

		m := newTestTokenManager(t, srv.URL, newFakeCredentialStore())

		_, err := m.ExchangeCode(context.Background(), "auth-code")

		var exchangeErr *invoicing.AuthExchangeError
		require.ErrorAs(t, err, &exchangeErr)
		assert.Equal(t, http.StatusUnauthorized, exchangeErr.StatusCode)
		assert.Equal(t, "bad client", exchangeErr.Description)
	})
}

func TestTokenManager_Refresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("rotates the token pair", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
			assert.Equal(t, "old-refresh", r.Form.Get("refresh_token"))
			writeTokenGrant(w, "rotated-access", "rotated-refresh", 7200)
		}))
		defer srv.Close()

		store := newFakeCredentialStore()
		store.seed("old-access", "old-refresh", now.Add(time.Minute))
		m := newTestTokenManager(t, srv.URL, store)
		m.now = func() time.Time { return now }
		require.NoError(t, m.LoadFromStore(context.Background()))

		data, err := m.Refresh(context.Background())

		require.NoError(t, err)
		assert.Equal(t, "rotated-access", data.AccessToken)
		assert.Equal(t, "rotated-refresh", data.RefreshToken)

		cred, err := store.Get(context.Background(), ServiceName)
		require.NoError(t, err)
		assert.Equal(t, "rotated-refresh", cred.RefreshToken)
	})

	t.Run("keeps the previous refresh token when omitted", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeTokenGrant(w, "rotated-access", "", 7200)
		}))
		defer srv.Close()

		store := newFakeCredentialStore()
		store.seed("old-access", "old-refresh", now.Add(time.Minute))
		m := newTestTokenManager(t, srv.URL, store)
		m.now = func() time.Time { return now }
		require.NoError(t, m.LoadFromStore(context.Background()))

		data, err := m.Refresh(context.Background())

		require.NoError(t, err)
		assert.Equal(t, "old-refresh", data.RefreshToken)
	})

	t.Run("invalid_grant clears memory but not the store", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"revoked"}`))
		}))
		defer srv.Close()

		store := newFakeCredentialStore()
		store.seed("old-access", "dead-refresh", now.Add(time.Minute))
		m := newTestTokenManager(t, srv.URL, store)
		m.now = func() time.Time { return now }
		require.NoError(t, m.LoadFromStore(context.Background()))

		_, err := m.Refresh(context.Background())

		var reauth *invoicing.ReauthRequiredError
		require.ErrorAs(t, err, &reauth)
		assert.NotEmpty(t, reauth.AuthorizationURL)
		assert.False(t, m.HasAnyToken())

		// The durable record stays for operator inspection.
		cred, getErr := store.Get(context.Background(), ServiceName)
		require.NoError(t, getErr)
		assert.Equal(t, "dead-refresh", cred.RefreshToken)
	})

	t.Run("missing refresh token requires reauthorization", func(t *testing.T) {
		m := newTestTokenManager(t, "http://unused", newFakeCredentialStore())

		_, err := m.Refresh(context.Background())

		var reauth *invoicing.ReauthRequiredError
		require.ErrorAs(t, err, &reauth)
		assert.NotEmpty(t, reauth.AuthorizationURL)
		assert.ErrorIs(t, err, invoicing.ErrCredentialNotFound)
	})

	t.Run("server errors stay transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		store := newFakeCredentialStore()
		store.seed("old-access", "old-refresh", now.Add(time.Minute))
		m := newTestTokenManager(t, srv.URL, store)
		m.now = func() time.Time { return now }
		require.NoError(t, m.LoadFromStore(context.Background()))

		_, err := m.Refresh(context.Background())

		assert.ErrorIs(t, err, invoicing.ErrProviderTransient)
		// Transient failures must not wipe the token state.
		assert.True(t, m.HasAnyToken())
	})
}

func TestTokenManager_EnsureValid(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no refresh when expiry is outside the window", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			writeTokenGrant(w, "unexpected", "unexpected", 7200)
		}))
		defer srv.Close()

		store := newFakeCredentialStore()
		store.seed("access", "refresh", now.Add(time.Hour))
		m := newTestTokenManager(t, srv.URL, store)
		m.now = func() time.Time { return now }

		require.NoError(t, m.EnsureValid(context.Background()))
		assert.Equal(t, 0, calls)
		assert.Equal(t, "access", m.AccessToken())
	})

	t.Run("refreshes inside the five minute window", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeTokenGrant(w, "refreshed-access", "refreshed-refresh", 7200)
		}))
		defer srv.Close()

		store := newFakeCredentialStore()
		store.seed("access", "refresh", now.Add(3*time.Minute))
		m := newTestTokenManager(t, srv.URL, store)
		m.now = func() time.Time { return now }

		require.NoError(t, m.EnsureValid(context.Background()))
		assert.Equal(t, "refreshed-access", m.AccessToken())
	})

	t.Run("observes tokens written by another process", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
		}))
		defer srv.Close()

		store := newFakeCredentialStore()
		m := newTestTokenManager(t, srv.URL, store)
		m.now = func() time.Time { return now }

		// Another process stores a fresh credential after this manager started.
		store.seed("external-access", "external-refresh", now.Add(time.Hour))

		require.NoError(t, m.EnsureValid(context.Background()))
		assert.Equal(t, 0, calls)
		assert.Equal(t, "external-access", m.AccessToken())
	})

	t.Run("store failure propagates", func(t *testing.T) {
		store := newFakeCredentialStore()
		store.getErr = errors.New("connection refused")
		m := newTestTokenManager(t, "http://unused", store)

		err := m.EnsureValid(context.Background())
		require.Error(t, err)
	})
}

func TestTokenManager_ClearStored(t *testing.T) {
	store := newFakeCredentialStore()
	store.seed("access", "refresh", time.Now().Add(time.Hour))
	m := newTestTokenManager(t, "http://unused", store)
	require.NoError(t, m.LoadFromStore(context.Background()))
	require.True(t, m.HasAnyToken())

	require.NoError(t, m.ClearStored(context.Background()))

	assert.False(t, m.HasAnyToken())
	_, err := store.Get(context.Background(), ServiceName)
	assert.ErrorIs(t, err, invoicing.ErrCredentialNotFound)
}

func TestTokenManager_StopIsIdempotent(t *testing.T) {
	m := newTestTokenManager(t, "http://unused", newFakeCredentialStore())
	m.StartAutoRenewal()

	assert.NotPanics(t, func() {
		m.Stop()
		m.Stop()
	})
}
