package parasut

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/domain/invoicing"
)

const (
	// foregroundRefreshWindow is the safety margin EnsureValid keeps ahead of
	// expiry so an in-flight request never runs on a token about to expire.
	foregroundRefreshWindow = 5 * time.Minute
	// backgroundRefreshWindow is wider than the foreground window so the
	// renewal timer usually pre-empts the foreground refresh cost.
	backgroundRefreshWindow = 10 * time.Minute
	// renewalInterval is the background renewal timer period.
	renewalInterval = 50 * time.Minute
	// startupRenewalDelay is how soon after startup the first renewal runs.
	startupRenewalDelay = 15 * time.Second
	// maxTokenResponseSize bounds the token endpoint response body.
	maxTokenResponseSize = 1 << 20
)

// TokenData is the outcome of a successful grant.
type TokenData struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenManager owns the single in-memory token state for the process and
// keeps it in sync with the durable credential store. All state mutations are
// serialized; the durable store is the cross-process synchronization point.
type TokenManager struct {
	config     *Config
	store      invoicing.CredentialRepository
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time

	// opMu serializes exchange/refresh/ensure operations so a background
	// renewal never races a foreground refresh with a stale refresh token.
	opMu sync.Mutex

	// mu guards the in-memory token fields only.
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiry       time.Time
	loaded       bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewTokenManager creates a token manager for the configured provider.
func NewTokenManager(config *Config, store invoicing.CredentialRepository, logger *zap.Logger) (*TokenManager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &TokenManager{
		config: config,
		store:  store,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		logger: logger,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}, nil
}

// LoadFromStore reads the durable credential record into memory. An absent
// record leaves the in-memory state empty without error.
func (m *TokenManager) LoadFromStore(ctx context.Context) error {
	cred, err := m.store.Get(ctx, ServiceName)
	if err != nil {
		if errors.Is(err, invoicing.ErrCredentialNotFound) {
			return nil
		}
		return err
	}

	m.mu.Lock()
	m.accessToken = cred.AccessToken
	m.refreshToken = cred.RefreshToken
	m.expiry = cred.TokenExpiry
	m.loaded = true
	m.mu.Unlock()
	return nil
}

// HasValidToken reports whether a usable token is in memory. Pure read, no I/O.
func (m *TokenManager) HasValidToken() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded &&
		m.accessToken != "" &&
		m.refreshToken != "" &&
		!m.expiry.IsZero() &&
		m.now().Before(m.expiry)
}

// HasAnyToken reports whether any access token is loaded, valid or not.
// Workflows use it to fail fast before their first remote call.
func (m *TokenManager) HasAnyToken() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded && m.accessToken != ""
}

// AccessToken returns the current in-memory access token.
func (m *TokenManager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accessToken
}

// Expiry returns the current in-memory token expiry.
func (m *TokenManager) Expiry() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.expiry
}

// ExchangeCode performs the authorization-code grant and persists the result.
func (m *TokenManager) ExchangeCode(ctx context.Context, code string) (*TokenData, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", m.config.ClientID)
	form.Set("client_secret", m.config.ClientSecret)
	form.Set("redirect_uri", m.config.RedirectURI)

	status, body, err := m.postTokenForm(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", invoicing.ErrProviderTransient, err)
	}
	if status < 200 || status >= 300 {
		return nil, &invoicing.AuthExchangeError{
			StatusCode:  status,
			Description: tokenErrorDescription(body),
		}
	}

	data, err := m.parseTokenResponse(body)
	if err != nil {
		return nil, err
	}
	return data, m.commit(ctx, data, "authorization_code")
}

// Refresh performs the refresh-token grant. When the provider signals the
// refresh token itself is dead (HTTP 401 or invalid_grant) the in-memory state
// is cleared, the durable record is left untouched, and a ReauthRequiredError
// carrying a fresh authorization URL is returned.
func (m *TokenManager) Refresh(ctx context.Context) (*TokenData, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.refreshLocked(ctx)
}

func (m *TokenManager) refreshLocked(ctx context.Context) (*TokenData, error) {
	m.mu.RLock()
	refreshToken := m.refreshToken
	m.mu.RUnlock()

	if refreshToken == "" {
		return nil, &invoicing.ReauthRequiredError{
			AuthorizationURL: m.config.AuthorizationURL(),
			Cause:            invoicing.ErrCredentialNotFound,
		}
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", m.config.ClientID)
	form.Set("client_secret", m.config.ClientSecret)

	status, body, err := m.postTokenForm(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", invoicing.ErrProviderTransient, err)
	}

	if status < 200 || status >= 300 {
		description := tokenErrorDescription(body)
		if status == http.StatusUnauthorized || isInvalidGrant(body) {
			// The refresh token is dead. Only the cache is cleared so an
			// operator can still inspect the durable record before
			// re-authenticating.
			m.ClearMemory()
			return nil, &invoicing.ReauthRequiredError{
				AuthorizationURL: m.config.AuthorizationURL(),
				Cause:            fmt.Errorf("refresh rejected (HTTP %d): %s", status, description),
			}
		}
		return nil, fmt.Errorf("%w: refresh failed (HTTP %d): %s", invoicing.ErrProviderTransient, status, description)
	}

	data, err := m.parseTokenResponse(body)
	if err != nil {
		return nil, err
	}
	// Some providers rotate refresh tokens, some re-issue the same one, some
	// omit it entirely. Keep the previous one unless a new one arrived.
	if data.RefreshToken == "" {
		data.RefreshToken = refreshToken
	}
	return data, m.commit(ctx, data, "refresh")
}

// EnsureValid is the single call request paths make before any call that must
// not fail on an expired token. It reloads from the store first so token
// updates by other processes are observed, then refreshes when the token is
// missing, expired, or inside the foreground safety window.
func (m *TokenManager) EnsureValid(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.LoadFromStore(ctx); err != nil {
		return err
	}
	if m.HasValidToken() && m.now().Add(foregroundRefreshWindow).Before(m.Expiry()) {
		return nil
	}
	_, err := m.refreshLocked(ctx)
	return err
}

// ClearMemory drops the in-memory token state. The durable record is untouched.
func (m *TokenManager) ClearMemory() {
	m.mu.Lock()
	m.accessToken = ""
	m.refreshToken = ""
	m.expiry = time.Time{}
	m.loaded = false
	m.mu.Unlock()
}

// ClearStored removes the durable credential record and the in-memory state.
// This is the explicit operator-facing disconnect.
func (m *TokenManager) ClearStored(ctx context.Context) error {
	if err := m.store.Delete(ctx, ServiceName); err != nil {
		return err
	}
	m.ClearMemory()
	return nil
}

// StartAutoRenewal launches the background renewal timer: one run shortly
// after startup, then every renewalInterval. Renewal refreshes only when
// expiry is inside the background window; failures are logged and swallowed.
func (m *TokenManager) StartAutoRenewal() {
	go func() {
		startup := time.NewTimer(startupRenewalDelay)
		defer startup.Stop()
		select {
		case <-startup.C:
			m.renewIfNeeded()
		case <-m.stopCh:
			return
		}

		ticker := time.NewTicker(renewalInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.renewIfNeeded()
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the background renewal timer.
func (m *TokenManager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// renewIfNeeded is the background renewal body. It must never crash the host
// process or block foreground requests beyond the shared operation mutex.
func (m *TokenManager) renewIfNeeded() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(m.config.TimeoutSeconds)*time.Second)
	defer cancel()

	if err := m.LoadFromStore(ctx); err != nil {
		m.logger.Warn("token renewal: reload from store failed", zap.Error(err))
		return
	}
	if !m.HasAnyToken() {
		return
	}
	if m.now().Add(backgroundRefreshWindow).Before(m.Expiry()) {
		return
	}

	if _, err := m.Refresh(ctx); err != nil {
		m.logger.Warn("token renewal: refresh failed", zap.Error(err))
		return
	}
	m.logger.Info("token renewal: token refreshed", zap.Time("expiry", m.Expiry()))
}

// commit stores a fresh grant in memory and the durable store.
func (m *TokenManager) commit(ctx context.Context, data *TokenData, source string) error {
	m.mu.Lock()
	m.accessToken = data.AccessToken
	m.refreshToken = data.RefreshToken
	m.expiry = data.ExpiresAt
	m.loaded = true
	m.mu.Unlock()

	_, err := m.store.Upsert(ctx, ServiceName, invoicing.CredentialUpdate{
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		TokenExpiry:  data.ExpiresAt,
		CompanyID:    m.config.CompanyID,
		Metadata: map[string]string{
			"source":     source,
			"updated_at": m.now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		// The grant already succeeded; memory is authoritative until the
		// store recovers.
		m.logger.Error("failed to persist refreshed credential", zap.Error(err))
		return err
	}
	return nil
}

func (m *TokenManager) postTokenForm(ctx context.Context, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.TokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func (m *TokenManager) parseTokenResponse(body []byte) (*TokenData, error) {
	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed token response: %v", invoicing.ErrProviderTransient, err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response missing access_token", invoicing.ErrProviderTransient)
	}
	return &TokenData{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    m.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

func tokenErrorDescription(body []byte) string {
	var resp tokenErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return strings.TrimSpace(string(body))
	}
	if resp.Description != "" {
		return resp.Description
	}
	return resp.ErrorCode
}

func isInvalidGrant(body []byte) bool {
	var resp tokenErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false
	}
	return resp.ErrorCode == "invalid_grant"
}
