package parasut

import (
	"errors"
	"fmt"
	"net/url"
)

// Config holds configuration for the Parasut accounting API integration
type Config struct {
	// Enabled short-circuits the whole workflow with a disabled result when false
	Enabled bool
	// ClientID is the OAuth2 application client id
	ClientID string
	// ClientSecret is the OAuth2 application client secret
	ClientSecret string
	// CompanyID is the provider-side company the service operates on
	CompanyID string
	// RedirectURI is the registered OAuth2 redirect URI
	RedirectURI string
	// APIBaseURL is the base URL for resource endpoints
	APIBaseURL string
	// OAuthBaseURL is the base URL for the OAuth2 token/authorize endpoints
	OAuthBaseURL string
	// TimeoutSeconds is the HTTP request timeout for foreground calls
	TimeoutSeconds int
}

const (
	// ProductionAPIURL is the production resource API endpoint
	ProductionAPIURL = "https://api.parasut.com"
	// ProductionOAuthURL is the production OAuth2 endpoint
	ProductionOAuthURL = "https://api.parasut.com"
	// ServiceName is the credential store key for this integration
	ServiceName = "parasut"
)

// Errors for Parasut configuration
var (
	ErrConfigMissingClientID     = errors.New("parasut: client id is required")
	ErrConfigMissingClientSecret = errors.New("parasut: client secret is required")
	ErrConfigMissingCompanyID    = errors.New("parasut: company id is required")
	ErrConfigMissingRedirectURI  = errors.New("parasut: redirect URI is required")
)

// NewConfig creates a new Parasut configuration with defaults
func NewConfig(clientID, clientSecret, companyID, redirectURI string) *Config {
	return &Config{
		Enabled:        true,
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		CompanyID:      companyID,
		RedirectURI:    redirectURI,
		APIBaseURL:     ProductionAPIURL,
		OAuthBaseURL:   ProductionOAuthURL,
		TimeoutSeconds: 60,
	}
}

// Validate validates the configuration and applies defaults. A disabled
// integration only gets defaults; credential checks apply when enabled.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		c.APIBaseURL = ProductionAPIURL
	}
	if c.OAuthBaseURL == "" {
		c.OAuthBaseURL = ProductionOAuthURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 60
	}
	if !c.Enabled {
		return nil
	}
	if c.ClientID == "" {
		return ErrConfigMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrConfigMissingClientSecret
	}
	if c.CompanyID == "" {
		return ErrConfigMissingCompanyID
	}
	if c.RedirectURI == "" {
		return ErrConfigMissingRedirectURI
	}
	return nil
}

// TokenURL returns the OAuth2 token endpoint
func (c *Config) TokenURL() string {
	return c.OAuthBaseURL + "/oauth/token"
}

// AuthorizationURL returns the URL an operator visits to (re-)authorize the
// integration via the authorization-code grant.
func (c *Config) AuthorizationURL() string {
	q := url.Values{}
	q.Set("client_id", c.ClientID)
	q.Set("redirect_uri", c.RedirectURI)
	q.Set("response_type", "code")
	return fmt.Sprintf("%s/oauth/authorize?%s", c.OAuthBaseURL, q.Encode())
}

// CompanyPath returns the resource path scoped to the configured company,
// e.g. CompanyPath("contacts") -> "/v4/123/contacts".
func (c *Config) CompanyPath(resource string) string {
	return fmt.Sprintf("/v4/%s/%s", c.CompanyID, resource)
}
