package parasut

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/domain/invoicing"
)

// Gateway implements invoicing.ProviderGateway against the Parasut v4 API.
// It owns transport resilience; workflow sequencing lives in the application
// layer.
type Gateway struct {
	config *Config
	tokens *TokenManager
	client *Client
	poller *JobPoller
	logger *zap.Logger
}

// NewGateway wires the gateway from its transport parts.
func NewGateway(config *Config, tokens *TokenManager, client *Client, poller *JobPoller, logger *zap.Logger) *Gateway {
	return &Gateway{
		config: config,
		tokens: tokens,
		client: client,
		poller: poller,
		logger: logger,
	}
}

// EnsureSession loads tokens once for the workflow. It fails fast with a
// re-authorization error when no access token exists at all, and otherwise
// runs the full validity check so every later call can use the fast path.
func (g *Gateway) EnsureSession(ctx context.Context) error {
	if err := g.tokens.LoadFromStore(ctx); err != nil {
		return err
	}
	if !g.tokens.HasAnyToken() {
		return &invoicing.ReauthRequiredError{
			AuthorizationURL: g.config.AuthorizationURL(),
			Cause:            invoicing.ErrCredentialNotFound,
		}
	}
	return g.tokens.EnsureValid(ctx)
}

// ---------------------------------------------------------------------------
// Contacts
// ---------------------------------------------------------------------------

// FindContactByTaxNumber looks a contact up by its tax number.
func (g *Gateway) FindContactByTaxNumber(ctx context.Context, taxNumber string) (*invoicing.Contact, error) {
	q := url.Values{}
	q.Set("filter[tax_number]", taxNumber)
	path := g.config.CompanyPath("contacts") + "?" + q.Encode()

	body, err := g.client.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var doc ListDocument[ContactAttributes]
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parasut: failed to parse contacts: %w", err)
	}
	if len(doc.Data) == 0 {
		return nil, invoicing.ErrContactNotFound
	}
	return contactFromResource(doc.Data[0]), nil
}

// CreateContact creates a new counterparty contact.
func (g *Gateway) CreateContact(ctx context.Context, input invoicing.ContactInput) (*invoicing.Contact, error) {
	doc := Document[ContactAttributes]{
		Data: Resource[ContactAttributes]{
			Type: "contacts",
			Attributes: ContactAttributes{
				Name:        input.Name,
				Email:       input.Email,
				TaxNumber:   input.TaxNumber,
				TaxOffice:   input.TaxOffice,
				City:        input.City,
				District:    input.District,
				Address:     input.Address,
				Phone:       input.Phone,
				ContactType: "person",
				AccountType: "customer",
			},
		},
	}

	body, err := g.client.DoFast(ctx, http.MethodPost, g.config.CompanyPath("contacts"), doc)
	if err != nil {
		return nil, err
	}

	var resp Document[ContactAttributes]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parasut: failed to parse contact: %w", err)
	}
	return contactFromResource(resp.Data), nil
}

// UpdateContact overwrites the diffable contact fields. Email is never sent.
func (g *Gateway) UpdateContact(ctx context.Context, id string, input invoicing.ContactInput) (*invoicing.Contact, error) {
	doc := Document[ContactAttributes]{
		Data: Resource[ContactAttributes]{
			ID:   id,
			Type: "contacts",
			Attributes: ContactAttributes{
				Name:      input.Name,
				TaxNumber: input.TaxNumber,
				TaxOffice: input.TaxOffice,
				City:      input.City,
				District:  input.District,
				Address:   input.Address,
				Phone:     input.Phone,
			},
		},
	}

	body, err := g.client.DoFast(ctx, http.MethodPut, g.config.CompanyPath("contacts/"+id), doc)
	if err != nil {
		return nil, err
	}

	var resp Document[ContactAttributes]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parasut: failed to parse contact: %w", err)
	}
	return contactFromResource(resp.Data), nil
}

func contactFromResource(res Resource[ContactAttributes]) *invoicing.Contact {
	return &invoicing.Contact{
		ID:        res.ID,
		Name:      res.Attributes.Name,
		Email:     res.Attributes.Email,
		TaxNumber: res.Attributes.TaxNumber,
		TaxOffice: res.Attributes.TaxOffice,
		City:      res.Attributes.City,
		District:  res.Attributes.District,
		Address:   res.Attributes.Address,
		Phone:     res.Attributes.Phone,
	}
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

// FindProductByCode returns the remote product id for a code, or "".
func (g *Gateway) FindProductByCode(ctx context.Context, code string) (string, error) {
	q := url.Values{}
	q.Set("filter[code]", code)
	path := g.config.CompanyPath("products") + "?" + q.Encode()

	body, err := g.client.DoFast(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}

	var doc ListDocument[ProductAttributes]
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("parasut: failed to parse products: %w", err)
	}
	if len(doc.Data) == 0 {
		return "", nil
	}
	return doc.Data[0].ID, nil
}

// ProductExists verifies a cached product id is still resolvable.
func (g *Gateway) ProductExists(ctx context.Context, id string) (bool, error) {
	_, err := g.client.DoFast(ctx, http.MethodGet, g.config.CompanyPath("products/"+id), nil)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateProduct creates a remote product for a line item.
func (g *Gateway) CreateProduct(ctx context.Context, input invoicing.ProductInput) (string, error) {
	doc := Document[ProductAttributes]{
		Data: Resource[ProductAttributes]{
			Type: "products",
			Attributes: ProductAttributes{
				Name:      input.Name,
				Code:      input.Code,
				VatRate:   input.VatRate.String(),
				ListPrice: input.UnitPrice.String(),
				Currency:  "TRL",
			},
		},
	}

	body, err := g.client.DoFast(ctx, http.MethodPost, g.config.CompanyPath("products"), doc)
	if err != nil {
		return "", err
	}

	var resp Document[ProductAttributes]
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parasut: failed to parse product: %w", err)
	}
	return resp.Data.ID, nil
}

// ---------------------------------------------------------------------------
// Sales invoices and payments
// ---------------------------------------------------------------------------

// CreateSalesInvoice creates a draft sales invoice with inline detail lines.
func (g *Gateway) CreateSalesInvoice(ctx context.Context, input invoicing.InvoiceInput) (*invoicing.Invoice, error) {
	details := make([]Resource[InvoiceDetailAttributes], 0, len(input.Lines))
	for _, line := range input.Lines {
		details = append(details, Resource[InvoiceDetailAttributes]{
			Type: "sales_invoice_details",
			Attributes: InvoiceDetailAttributes{
				Quantity:    line.Quantity.String(),
				UnitPrice:   line.UnitPrice.String(),
				VatRate:     "20",
				Description: line.Description,
			},
			Relationships: map[string]Relationship{
				"product": One(ResourceIdentifier{ID: line.ProductID, Type: "products"}),
			},
		})
	}

	doc := Document[SalesInvoiceAttributes]{
		Data: Resource[SalesInvoiceAttributes]{
			Type: "sales_invoices",
			Attributes: SalesInvoiceAttributes{
				ItemType:    "invoice",
				Description: input.Description,
				IssueDate:   input.IssueDate.Format("2006-01-02"),
				Currency:    "TRL",
			},
			Relationships: map[string]Relationship{
				"contact": One(ResourceIdentifier{ID: input.ContactID, Type: "contacts"}),
				"details": Many(details),
			},
		},
	}

	body, err := g.client.DoFast(ctx, http.MethodPost, g.config.CompanyPath("sales_invoices"), doc)
	if err != nil {
		return nil, err
	}

	var resp Document[SalesInvoiceAttributes]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parasut: failed to parse sales invoice: %w", err)
	}
	return invoiceFromResource(resp.Data), nil
}

// GetInvoice fetches a fresh invoice snapshot (remaining balance, status).
func (g *Gateway) GetInvoice(ctx context.Context, id string) (*invoicing.Invoice, error) {
	body, err := g.client.DoFast(ctx, http.MethodGet, g.config.CompanyPath("sales_invoices/"+id), nil)
	if err != nil {
		return nil, err
	}

	var resp Document[SalesInvoiceAttributes]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parasut: failed to parse sales invoice: %w", err)
	}
	return invoiceFromResource(resp.Data), nil
}

// RecordPayment records a collection against the invoice.
func (g *Gateway) RecordPayment(ctx context.Context, invoiceID string, amount decimal.Decimal, date time.Time, description string) error {
	doc := Document[PaymentAttributes]{
		Data: Resource[PaymentAttributes]{
			Type: "payments",
			Attributes: PaymentAttributes{
				Description: description,
				Date:        date.Format("2006-01-02"),
				Amount:      amount.String(),
			},
		},
	}

	_, err := g.client.DoFast(ctx, http.MethodPost, g.config.CompanyPath("sales_invoices/"+invoiceID+"/payments"), doc)
	return err
}

func invoiceFromResource(res Resource[SalesInvoiceAttributes]) *invoicing.Invoice {
	return &invoicing.Invoice{
		ID:            res.ID,
		InvoiceNo:     res.Attributes.InvoiceNo,
		NetTotal:      parseAmount(res.Attributes.NetTotal),
		GrossTotal:    parseAmount(res.Attributes.GrossTotal),
		Remaining:     parseAmount(res.Attributes.Remaining),
		PaymentStatus: res.Attributes.PaymentStatus,
		AccountEmail:  res.Attributes.AccountEmail,
	}
}

func parseAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return amount
}

// ---------------------------------------------------------------------------
// Formalization
// ---------------------------------------------------------------------------

// EInvoiceMailbox returns the counterparty's registered e-invoice address, or
// "" when the tax number has no mailbox.
func (g *Gateway) EInvoiceMailbox(ctx context.Context, taxNumber string) (string, error) {
	q := url.Values{}
	q.Set("filter[vkn]", taxNumber)
	path := g.config.CompanyPath("e_invoice_inboxes") + "?" + q.Encode()

	body, err := g.client.DoFast(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}

	var doc ListDocument[EInvoiceInboxAttributes]
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("parasut: failed to parse e-invoice inboxes: %w", err)
	}
	if len(doc.Data) == 0 {
		return "", nil
	}
	return doc.Data[0].Attributes.EInvoiceAddress, nil
}

// CreateEArchive starts e-archive formalization and drives its trackable job
// to completion. A rejection telling us the counterparty is an e-invoice user
// maps to ErrCounterpartyEInvoiceUser so callers can switch branches.
func (g *Gateway) CreateEArchive(ctx context.Context, invoiceID string) (*invoicing.RemoteResource, error) {
	doc := Document[EArchiveAttributes]{
		Data: Resource[EArchiveAttributes]{
			Type: "e_archives",
			Relationships: map[string]Relationship{
				"sales_invoice": One(ResourceIdentifier{ID: invoiceID, Type: "sales_invoices"}),
			},
		},
	}

	jobID, err := g.submitFormalization(ctx, "e_archives", doc)
	if err != nil {
		if isEInvoiceUserRejection(err) {
			return nil, fmt.Errorf("%w: %v", invoicing.ErrCounterpartyEInvoiceUser, err)
		}
		return nil, err
	}
	return g.poller.Await(ctx, jobID, "e_archive")
}

// CreateEInvoice starts e-invoice formalization toward the counterparty's
// mailbox and drives its trackable job to completion.
func (g *Gateway) CreateEInvoice(ctx context.Context, invoiceID, mailbox string) (*invoicing.RemoteResource, error) {
	doc := Document[EInvoiceAttributes]{
		Data: Resource[EInvoiceAttributes]{
			Type: "e_invoices",
			Attributes: EInvoiceAttributes{
				Scenario: "basic",
				To:       mailbox,
			},
			Relationships: map[string]Relationship{
				"invoice": One(ResourceIdentifier{ID: invoiceID, Type: "sales_invoices"}),
			},
		},
	}

	jobID, err := g.submitFormalization(ctx, "e_invoices", doc)
	if err != nil {
		return nil, err
	}
	return g.poller.Await(ctx, jobID, "e_invoice")
}

// submitFormalization posts a formalization request and returns the job id.
func (g *Gateway) submitFormalization(ctx context.Context, resource string, doc any) (string, error) {
	body, err := g.client.DoFast(ctx, http.MethodPost, g.config.CompanyPath(resource), doc)
	if err != nil {
		return "", err
	}

	var resp Document[TrackableJobAttributes]
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parasut: failed to parse trackable job: %w", err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("%w: formalization response carried no job id", invoicing.ErrProviderRequest)
	}
	return resp.Data.ID, nil
}

// isEInvoiceUserRejection detects the provider refusing an e-archive because
// the counterparty is registered for e-invoice delivery.
func isEInvoiceUserRejection(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "e-fatura") || strings.Contains(msg, "e-invoice user")
}

// ---------------------------------------------------------------------------
// Sharing
// ---------------------------------------------------------------------------

// CreateSharing creates a customer-facing sharing link for the invoice.
func (g *Gateway) CreateSharing(ctx context.Context, invoiceID, email string, optimized bool) (string, error) {
	path := g.config.CompanyPath("sharings")
	if optimized {
		path += "?optimized=true"
	}

	doc := Document[SharingAttributes]{
		Data: Resource[SharingAttributes]{
			Type: "sharings",
			Attributes: SharingAttributes{
				Email: email,
			},
			Relationships: map[string]Relationship{
				"shareable": One(ResourceIdentifier{ID: invoiceID, Type: "sales_invoices"}),
			},
		},
	}

	body, err := g.client.DoFast(ctx, http.MethodPost, path, doc)
	if err != nil {
		return "", err
	}

	var resp Document[SharingAttributes]
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parasut: failed to parse sharing: %w", err)
	}
	return resp.Data.ID, nil
}

// FindSharing returns an existing sharing for the invoice, if any.
func (g *Gateway) FindSharing(ctx context.Context, invoiceID string) (string, error) {
	q := url.Values{}
	q.Set("filter[shareable_id]", invoiceID)
	path := g.config.CompanyPath("sharings") + "?" + q.Encode()

	body, err := g.client.DoFast(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}

	var doc ListDocument[SharingAttributes]
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("parasut: failed to parse sharings: %w", err)
	}
	if len(doc.Data) == 0 {
		return "", invoicing.ErrSharingNotFound
	}
	return doc.Data[0].ID, nil
}

// Ensure Gateway implements ProviderGateway
var _ invoicing.ProviderGateway = (*Gateway)(nil)
