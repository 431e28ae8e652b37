package parasut

import (
	"encoding/json"
	"strings"
)

// ---------------------------------------------------------------------------
// OAuth2 token endpoint payloads
// ---------------------------------------------------------------------------

// tokenResponse is the JSON body of a successful token grant.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// tokenErrorResponse is the JSON body of a rejected token grant.
type tokenErrorResponse struct {
	ErrorCode   string `json:"error"`
	Description string `json:"error_description"`
}

// ---------------------------------------------------------------------------
// JSON:API envelope
// ---------------------------------------------------------------------------

// Resource is a single JSON:API resource object.
type Resource[A any] struct {
	ID            string                  `json:"id,omitempty"`
	Type          string                  `json:"type"`
	Attributes    A                       `json:"attributes"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
}

// Document wraps a single resource.
type Document[A any] struct {
	Data Resource[A] `json:"data"`
}

// ListDocument wraps a resource collection.
type ListDocument[A any] struct {
	Data []Resource[A] `json:"data"`
}

// Relationship is a JSON:API relationship holding one or many identifiers.
type Relationship struct {
	Data json.RawMessage `json:"data,omitempty"`
}

// ResourceIdentifier references another resource by type and id.
type ResourceIdentifier struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`
}

// One builds a to-one relationship.
func One(id ResourceIdentifier) Relationship {
	raw, _ := json.Marshal(id)
	return Relationship{Data: raw}
}

// Many builds a to-many relationship. Nested resources without ids are
// accepted by the provider for inline creation (e.g. invoice details).
func Many[A any](resources []Resource[A]) Relationship {
	raw, _ := json.Marshal(resources)
	return Relationship{Data: raw}
}

// Identifier decodes a to-one relationship into a ResourceIdentifier.
// Returns false when the relationship is empty or null.
func (r Relationship) Identifier() (ResourceIdentifier, bool) {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return ResourceIdentifier{}, false
	}
	var id ResourceIdentifier
	if err := json.Unmarshal(r.Data, &id); err != nil || id.ID == "" {
		return ResourceIdentifier{}, false
	}
	return id, true
}

// apiErrorResponse is the provider's JSON:API error body.
type apiErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// message joins the error titles and details into one operator-readable line.
func (e *apiErrorResponse) message() string {
	parts := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		switch {
		case item.Title != "" && item.Detail != "":
			parts = append(parts, item.Title+": "+item.Detail)
		case item.Detail != "":
			parts = append(parts, item.Detail)
		case item.Title != "":
			parts = append(parts, item.Title)
		}
	}
	return strings.Join(parts, "; ")
}

// ---------------------------------------------------------------------------
// Resource attributes
// ---------------------------------------------------------------------------

// ContactAttributes models the provider's contact resource.
type ContactAttributes struct {
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	TaxNumber   string `json:"tax_number,omitempty"`
	TaxOffice   string `json:"tax_office,omitempty"`
	City        string `json:"city,omitempty"`
	District    string `json:"district,omitempty"`
	Address     string `json:"address,omitempty"`
	Phone       string `json:"phone,omitempty"`
	ContactType string `json:"contact_type,omitempty"`
	AccountType string `json:"account_type,omitempty"`
}

// ProductAttributes models the provider's product resource.
type ProductAttributes struct {
	Name      string `json:"name"`
	Code      string `json:"code,omitempty"`
	VatRate   string `json:"vat_rate,omitempty"`
	ListPrice string `json:"list_price,omitempty"`
	Currency  string `json:"currency,omitempty"`
}

// SalesInvoiceAttributes models the provider's sales invoice resource.
type SalesInvoiceAttributes struct {
	ItemType      string `json:"item_type,omitempty"`
	Description   string `json:"description,omitempty"`
	IssueDate     string `json:"issue_date,omitempty"`
	DueDate       string `json:"due_date,omitempty"`
	Currency      string `json:"currency,omitempty"`
	InvoiceNo     string `json:"invoice_no,omitempty"`
	NetTotal      string `json:"net_total,omitempty"`
	GrossTotal    string `json:"gross_total,omitempty"`
	Remaining     string `json:"remaining,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
	AccountEmail  string `json:"account_email,omitempty"`
}

// InvoiceDetailAttributes is one inline invoice line.
type InvoiceDetailAttributes struct {
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	VatRate     string `json:"vat_rate,omitempty"`
	Description string `json:"description,omitempty"`
}

// PaymentAttributes models a payment recorded against an invoice.
type PaymentAttributes struct {
	Description string `json:"description,omitempty"`
	AccountID   string `json:"account_id,omitempty"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
}

// EInvoiceInboxAttributes models a registered e-invoice mailbox.
type EInvoiceInboxAttributes struct {
	VKN            string `json:"vkn"`
	EInvoiceAddress string `json:"e_invoice_address"`
}

// EArchiveAttributes models the e-archive formalization request.
type EArchiveAttributes struct {
	Note string `json:"note,omitempty"`
}

// EInvoiceAttributes models the e-invoice formalization request.
type EInvoiceAttributes struct {
	Scenario string `json:"scenario,omitempty"`
	To       string `json:"to,omitempty"`
	Note     string `json:"note,omitempty"`
}

// TrackableJobAttributes models the provider's asynchronous job resource.
type TrackableJobAttributes struct {
	Status string   `json:"status"`
	Errors []string `json:"errors,omitempty"`
}

// SharingAttributes models the customer-facing sharing form.
type SharingAttributes struct {
	Email      string `json:"email,omitempty"`
	SharingURL string `json:"url,omitempty"`
}
