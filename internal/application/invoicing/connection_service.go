package invoicing

import (
	"context"

	"go.uber.org/zap"

	domain "github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/domain/invoicing"
	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/infrastructure/parasut"
)

// ConnectionService manages the operator-facing side of the integration:
// starting the OAuth authorization flow, completing it with the callback code,
// reporting credential health, and disconnecting.
type ConnectionService struct {
	config *parasut.Config
	tokens *parasut.TokenManager
	logger *zap.Logger
}

// NewConnectionService creates the connection service.
func NewConnectionService(config *parasut.Config, tokens *parasut.TokenManager, logger *zap.Logger) *ConnectionService {
	return &ConnectionService{
		config: config,
		tokens: tokens,
		logger: logger,
	}
}

// AuthorizationURL returns the URL the operator must visit to authorize the
// integration.
func (s *ConnectionService) AuthorizationURL() string {
	return s.config.AuthorizationURL()
}

// CompleteAuthorization exchanges the callback code for tokens and persists
// them.
func (s *ConnectionService) CompleteAuthorization(ctx context.Context, code string) error {
	if !s.config.Enabled {
		return domain.ErrIntegrationDisabled
	}
	if _, err := s.tokens.ExchangeCode(ctx, code); err != nil {
		return err
	}
	s.logger.Info("provider connection authorized")
	return nil
}

// Status reports the integration's credential health without touching the
// provider.
func (s *ConnectionService) Status(ctx context.Context) (*ConnectionStatus, error) {
	status := &ConnectionStatus{Enabled: s.config.Enabled}
	if !s.config.Enabled {
		return status, nil
	}

	if err := s.tokens.LoadFromStore(ctx); err != nil {
		return nil, err
	}
	status.Connected = s.tokens.HasAnyToken()
	status.TokenValid = s.tokens.HasValidToken()
	if status.Connected {
		expiry := s.tokens.Expiry()
		status.TokenExpiry = &expiry
	}
	return status, nil
}

// Disconnect removes the stored credential and clears in-memory tokens.
func (s *ConnectionService) Disconnect(ctx context.Context) error {
	if err := s.tokens.ClearStored(ctx); err != nil {
		return err
	}
	s.logger.Info("provider connection removed")
	return nil
}
