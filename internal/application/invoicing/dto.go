package invoicing

import (
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/domain/invoicing"
)

// ---------------------------------------------------------------------------
// Workflow request DTOs
// ---------------------------------------------------------------------------

// CustomerInfo carries the counterparty fields submitted with an order.
type CustomerInfo struct {
	Name      string `json:"name" binding:"required"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	TaxNumber string `json:"tax_number" binding:"required"`
	TaxOffice string `json:"tax_office"`
	City      string `json:"city"`
	District  string `json:"district"`
	Address   string `json:"address"`
}

// OrderItem is one purchased line, priced tax-inclusive.
type OrderItem struct {
	Code       string          `json:"code" binding:"required"`
	Name       string          `json:"name" binding:"required"`
	Quantity   decimal.Decimal `json:"quantity"`
	GrossPrice decimal.Decimal `json:"gross_price"`
}

// Order is the purchase the invoice is issued for.
type Order struct {
	ID    string      `json:"id" binding:"required"`
	Items []OrderItem `json:"items" binding:"required"`
}

// PaymentInfo reports the outcome of the payment attempt for the order.
type PaymentInfo struct {
	Succeeded bool            `json:"succeeded"`
	Amount    decimal.Decimal `json:"amount"`
	Date      time.Time       `json:"date"`
}

// WorkflowRequest is the single entry point payload for the invoice workflow.
type WorkflowRequest struct {
	Customer     CustomerInfo `json:"customer" binding:"required"`
	Order        Order        `json:"order" binding:"required"`
	Payment      PaymentInfo  `json:"payment"`
	Description  string       `json:"description"`
	AccountEmail string       `json:"account_email"`
}

// ---------------------------------------------------------------------------
// Workflow result DTOs
// ---------------------------------------------------------------------------

// WorkflowResult is the terminal outcome of a completed workflow.
type WorkflowResult struct {
	Status          string                   `json:"status"`
	ContactID       string                   `json:"contact_id"`
	InvoiceID       string                   `json:"invoice_id"`
	InvoiceNo       string                   `json:"invoice_no"`
	Total           decimal.Decimal          `json:"total"`
	PaymentRecorded bool                     `json:"payment_recorded"`
	SharingSent     bool                     `json:"sharing_sent"`
	Formalization   domain.FormalizationKind `json:"formalization"`
}

// ConnectionStatus describes the integration's credential health.
type ConnectionStatus struct {
	Enabled     bool       `json:"enabled"`
	Connected   bool       `json:"connected"`
	TokenValid  bool       `json:"token_valid"`
	TokenExpiry *time.Time `json:"token_expiry,omitempty"`
}
