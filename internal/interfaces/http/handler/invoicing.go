package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appinvoicing "github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/application/invoicing"
	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/domain/invoicing"
	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/interfaces/http/dto"
)

// InvoicingHandler exposes the invoice workflow and the provider connection
// management endpoints.
type InvoicingHandler struct {
	BaseHandler
	workflows   *appinvoicing.WorkflowService
	connections *appinvoicing.ConnectionService
	logger      *zap.Logger
}

// NewInvoicingHandler creates a new InvoicingHandler
func NewInvoicingHandler(workflows *appinvoicing.WorkflowService, connections *appinvoicing.ConnectionService, logger *zap.Logger) *InvoicingHandler {
	return &InvoicingHandler{
		workflows:   workflows,
		connections: connections,
		logger:      logger,
	}
}

// RegisterRoutes registers invoicing routes
func (h *InvoicingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/invoicing")
	{
		group.POST("/workflows", h.RunWorkflow)
		group.GET("/connect", h.Connect)
		group.GET("/oauth/callback", h.OAuthCallback)
		group.GET("/status", h.Status)
		group.DELETE("/connection", h.Disconnect)
	}
}

// RunWorkflow executes the invoice workflow for a completed order
// @Router /invoicing/workflows [post]
func (h *InvoicingHandler) RunWorkflow(c *gin.Context) {
	var req appinvoicing.WorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, err.Error())
		return
	}

	result, err := h.workflows.Run(c.Request.Context(), req)
	if err != nil {
		h.handleWorkflowError(c, err)
		return
	}

	h.Created(c, result)
}

// Connect returns the URL the operator must visit to authorize the integration
// @Router /invoicing/connect [get]
func (h *InvoicingHandler) Connect(c *gin.Context) {
	h.Success(c, gin.H{"authorization_url": h.connections.AuthorizationURL()})
}

// OAuthCallback completes the authorization flow with the provider's code
// @Router /invoicing/oauth/callback [get]
func (h *InvoicingHandler) OAuthCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		h.BadRequest(c, "missing authorization code")
		return
	}

	if err := h.connections.CompleteAuthorization(c.Request.Context(), code); err != nil {
		var exchangeErr *invoicing.AuthExchangeError
		if errors.As(err, &exchangeErr) {
			h.Error(c, http.StatusBadGateway, dto.ErrCodeProviderRejected, exchangeErr.Error())
			return
		}
		h.handleWorkflowError(c, err)
		return
	}

	h.Success(c, gin.H{"connected": true})
}

// Status reports the integration's credential health
// @Router /invoicing/status [get]
func (h *InvoicingHandler) Status(c *gin.Context) {
	status, err := h.connections.Status(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to read connection status", zap.Error(err))
		h.InternalError(c, "failed to read connection status")
		return
	}
	h.Success(c, status)
}

// Disconnect removes the stored provider credential
// @Router /invoicing/connection [delete]
func (h *InvoicingHandler) Disconnect(c *gin.Context) {
	if err := h.connections.Disconnect(c.Request.Context()); err != nil {
		h.logger.Error("failed to disconnect provider", zap.Error(err))
		h.InternalError(c, "failed to disconnect provider")
		return
	}
	h.NoContent(c)
}

// handleWorkflowError maps workflow and provider errors to HTTP responses.
// Fatal workflow errors carry the failing step and the last remote message
// verbatim so operators can remediate manually.
func (h *InvoicingHandler) handleWorkflowError(c *gin.Context, err error) {
	requestID := getRequestID(c)

	var reauth *invoicing.ReauthRequiredError
	if errors.As(err, &reauth) {
		c.JSON(dto.GetHTTPStatus(dto.ErrCodeReauthRequired),
			dto.NewReauthResponse(reauth.Error(), reauth.AuthorizationURL, requestID))
		return
	}

	switch {
	case errors.Is(err, invoicing.ErrIntegrationDisabled):
		h.ErrorWithCode(c, dto.ErrCodeIntegrationDisabled, err.Error())
	case errors.Is(err, invoicing.ErrValidation):
		h.ErrorWithCode(c, dto.ErrCodeValidation, err.Error())
	case errors.Is(err, invoicing.ErrJobTimeout):
		h.ErrorWithCode(c, dto.ErrCodeJobTimeout, err.Error())
	case errors.Is(err, invoicing.ErrProviderRateLimited),
		errors.Is(err, invoicing.ErrProviderUnavailable),
		errors.Is(err, invoicing.ErrProviderServer),
		errors.Is(err, invoicing.ErrProviderTransient):
		h.ErrorWithCode(c, dto.ErrCodeProviderUnavailable, err.Error())
	case errors.Is(err, invoicing.ErrFormalization),
		errors.Is(err, invoicing.ErrProviderRequest):
		h.ErrorWithCode(c, dto.ErrCodeProviderRejected, err.Error())
	default:
		var workflowErr *invoicing.WorkflowError
		if errors.As(err, &workflowErr) {
			h.ErrorWithCode(c, dto.ErrCodeWorkflowFailed, workflowErr.Error())
			return
		}
		h.logger.Error("unexpected workflow error", zap.Error(err))
		h.InternalError(c, "an unexpected error occurred")
	}
}
