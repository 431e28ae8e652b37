package invoicing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway-level errors surfaced by provider implementations.
var (
	// ErrContactNotFound is returned when no contact matches a tax number.
	ErrContactNotFound = errors.New("invoicing: contact not found")
	// ErrCounterpartyEInvoiceUser is returned when e-archive creation is
	// rejected because the counterparty is registered for e-invoice delivery.
	ErrCounterpartyEInvoiceUser = errors.New("invoicing: counterparty is an e-invoice user")
	// ErrSharingNotFound is returned when no sharing exists for an invoice.
	ErrSharingNotFound = errors.New("invoicing: sharing not found")
	// ErrFormalization marks a fatal formalization failure.
	ErrFormalization = errors.New("invoicing: formalization failed")
)

// Contact is a remote counterparty record.
type Contact struct {
	ID        string
	Name      string
	Email     string
	TaxNumber string
	TaxOffice string
	City      string
	District  string
	Address   string
	Phone     string
}

// ContactInput carries the writable contact fields. Email is written only on
// create; updates never touch it.
type ContactInput struct {
	Name      string
	Email     string
	TaxNumber string
	TaxOffice string
	City      string
	District  string
	Address   string
	Phone     string
}

// NeedsUpdate compares the fields an update is allowed to overwrite. Email is
// deliberately excluded from the diff.
func (in ContactInput) NeedsUpdate(existing *Contact) bool {
	return in.Name != existing.Name ||
		in.Phone != existing.Phone ||
		in.Address != existing.Address ||
		in.TaxNumber != existing.TaxNumber ||
		in.TaxOffice != existing.TaxOffice ||
		in.City != existing.City ||
		in.District != existing.District
}

// ProductInput carries the fields for creating a remote product.
type ProductInput struct {
	Code      string
	Name      string
	UnitPrice decimal.Decimal
	VatRate   decimal.Decimal
}

// InvoiceLine is one line of a sales invoice, net of VAT.
type InvoiceLine struct {
	ProductID   string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// InvoiceInput carries the fields for creating a sales invoice.
type InvoiceInput struct {
	ContactID   string
	Description string
	IssueDate   time.Time
	Lines       []InvoiceLine
}

// Invoice is a remote sales invoice snapshot.
type Invoice struct {
	ID            string
	InvoiceNo     string
	NetTotal      decimal.Decimal
	GrossTotal    decimal.Decimal
	Remaining     decimal.Decimal
	PaymentStatus string
	AccountEmail  string
}

// Paid reports whether the invoice has no remaining balance to collect.
func (i *Invoice) Paid() bool {
	return i.PaymentStatus == "paid" || i.Remaining.LessThanOrEqual(decimal.Zero)
}

// ProviderGateway is the operation surface the invoice workflow drives against
// the accounting provider. Implementations own transport resilience (token
// lifecycle, retries, job polling); the workflow owns sequencing and
// partial-failure policy.
type ProviderGateway interface {
	// EnsureSession loads tokens once for a workflow and validates them.
	// Returns *ReauthRequiredError when no usable credential exists.
	EnsureSession(ctx context.Context) error

	// FindContactByTaxNumber returns ErrContactNotFound when absent.
	FindContactByTaxNumber(ctx context.Context, taxNumber string) (*Contact, error)
	CreateContact(ctx context.Context, input ContactInput) (*Contact, error)
	UpdateContact(ctx context.Context, id string, input ContactInput) (*Contact, error)

	// FindProductByCode returns the remote product id, or "" when absent.
	FindProductByCode(ctx context.Context, code string) (string, error)
	// ProductExists reports whether a previously cached product id is still valid.
	ProductExists(ctx context.Context, id string) (bool, error)
	CreateProduct(ctx context.Context, input ProductInput) (string, error)

	CreateSalesInvoice(ctx context.Context, input InvoiceInput) (*Invoice, error)
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	RecordPayment(ctx context.Context, invoiceID string, amount decimal.Decimal, date time.Time, description string) error

	// EInvoiceMailbox returns the counterparty's registered e-invoice mailbox
	// address, or "" when the tax number is not registered.
	EInvoiceMailbox(ctx context.Context, taxNumber string) (string, error)
	// CreateEArchive drives the e-archive formalization job to completion.
	CreateEArchive(ctx context.Context, invoiceID string) (*RemoteResource, error)
	// CreateEInvoice drives the e-invoice formalization job to completion.
	CreateEInvoice(ctx context.Context, invoiceID, mailbox string) (*RemoteResource, error)

	// CreateSharing creates a customer-facing sharing link. The optimized path
	// is attempted first by callers; on failure they fall back to FindSharing.
	CreateSharing(ctx context.Context, invoiceID, email string, optimized bool) (string, error)
	// FindSharing returns an existing sharing id, or ErrSharingNotFound.
	FindSharing(ctx context.Context, invoiceID string) (string, error)
}
