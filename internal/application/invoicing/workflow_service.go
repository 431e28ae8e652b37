package invoicing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domain "github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/domain/invoicing"
)

// grossDivisor converts a tax-inclusive line price to its net unit price.
var grossDivisor = decimal.NewFromFloat(1.20)

// StatusDisabled is the result status returned when the integration is turned
// off; a disabled integration short-circuits the workflow without error.
const StatusDisabled = "disabled"

const (
	// contactLockTTL bounds how long a crashed workflow can hold the
	// per-counterparty lock.
	contactLockTTL = 30 * time.Second
	// lockAcquireAttempts and lockAcquireDelay bound how long a workflow
	// waits for the lock before proceeding without it.
	lockAcquireAttempts = 10
	lockAcquireDelay    = 300 * time.Millisecond
)

// WorkflowService runs the invoice workflow as a forward-only state machine.
// Token, contact, invoice and formalization failures abort the workflow;
// payment and sharing failures are downgraded to logged warnings because an
// invoice without them is a partial outcome a human can reconcile.
type WorkflowService struct {
	gateway domain.ProviderGateway
	locks   domain.ContactLock
	logger  *zap.Logger
	enabled bool

	// sleep is context-aware and replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error

	// productIDs caches resolved remote product ids by item code. Entries are
	// revalidated against the provider before reuse.
	mu         sync.Mutex
	productIDs map[string]string
}

// NewWorkflowService creates the orchestrator.
func NewWorkflowService(gateway domain.ProviderGateway, locks domain.ContactLock, logger *zap.Logger, enabled bool) *WorkflowService {
	return &WorkflowService{
		gateway:    gateway,
		locks:      locks,
		logger:     logger,
		enabled:    enabled,
		sleep:      sleepCtx,
		productIDs: make(map[string]string),
	}
}

// Run executes the full workflow for one order. It is invoked once per
// completed order; nothing here persists workflow state across invocations.
func (s *WorkflowService) Run(ctx context.Context, req WorkflowRequest) (*WorkflowResult, error) {
	if !s.enabled {
		return &WorkflowResult{Status: StatusDisabled}, nil
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	state := domain.StateStart
	logger := s.logger.With(
		zap.String("workflow_id", uuid.NewString()),
		zap.String("order_id", req.Order.ID),
		zap.String("tax_number", req.Customer.TaxNumber),
	)

	// Start -> TokensLoaded. Tokens are loaded once for the whole workflow.
	if err := s.gateway.EnsureSession(ctx); err != nil {
		return nil, s.abort(logger, domain.StepLoadTokens, state, err)
	}
	state = domain.StepLoadTokens.NextState()

	// TokensLoaded -> ContactResolved
	contact, err := s.resolveContact(ctx, logger, req.Customer)
	if err != nil {
		return nil, s.abort(logger, domain.StepResolveContact, state, err)
	}
	state = domain.StepResolveContact.NextState()
	logger = logger.With(zap.String("contact_id", contact.ID))

	// ContactResolved -> InvoiceCreated
	invoice, err := s.createInvoice(ctx, contact.ID, req)
	if err != nil {
		return nil, s.abort(logger, domain.StepCreateInvoice, state, err)
	}
	state = domain.StepCreateInvoice.NextState()
	logger = logger.With(zap.String("invoice_id", invoice.ID))

	result := &WorkflowResult{
		ContactID: contact.ID,
		InvoiceID: invoice.ID,
		InvoiceNo: invoice.InvoiceNo,
		Total:     invoice.GrossTotal,
	}

	// InvoiceCreated -> PaymentRecorded, only when the caller reports success.
	if req.Payment.Succeeded {
		if err := s.recordPayment(ctx, invoice.ID, req.Payment); err != nil {
			logger.Warn("payment recording failed, invoice left unpaid for manual follow-up",
				zap.String("step", string(domain.StepRecordPayment)),
				zap.Error(err),
			)
		} else {
			result.PaymentRecorded = true
			state = domain.StepRecordPayment.NextState()
		}
	}

	// -> Formalized
	kind, err := s.formalize(ctx, logger, invoice.ID, req.Customer.TaxNumber)
	if err != nil {
		return nil, s.abort(logger, domain.StepFormalize, state, fmt.Errorf("%w: %v", domain.ErrFormalization, err))
	}
	state = domain.StepFormalize.NextState()
	result.Formalization = kind

	// Formalized -> SharingSent
	if err := s.share(ctx, logger, invoice, req); err != nil {
		logger.Warn("sharing failed, invoice formalized but not shared",
			zap.String("step", string(domain.StepShareInvoice)),
			zap.Error(err),
		)
	} else {
		result.SharingSent = true
		state = domain.StepShareInvoice.NextState()
	}

	result.Status = string(domain.StateComplete)
	logger.Info("invoice workflow completed",
		zap.String("invoice_no", invoice.InvoiceNo),
		zap.String("formalization", string(kind)),
		zap.Bool("payment_recorded", result.PaymentRecorded),
		zap.Bool("sharing_sent", result.SharingSent),
	)
	return result, nil
}

// abort wraps a fatal step failure with the step and state it occurred in.
func (s *WorkflowService) abort(logger *zap.Logger, step domain.WorkflowStep, state domain.WorkflowState, err error) error {
	logger.Error("invoice workflow failed",
		zap.String("step", string(step)),
		zap.String("state", string(state)),
		zap.Error(err),
	)
	return &domain.WorkflowError{Step: step, State: state, Err: err}
}

// validateRequest rejects payloads the workflow cannot act on.
func validateRequest(req WorkflowRequest) error {
	if req.Customer.TaxNumber == "" {
		return fmt.Errorf("%w: customer tax number is required", domain.ErrValidation)
	}
	if req.Customer.Name == "" {
		return fmt.Errorf("%w: customer name is required", domain.ErrValidation)
	}
	if len(req.Order.Items) == 0 {
		return fmt.Errorf("%w: order has no line items", domain.ErrValidation)
	}
	return nil
}

// resolveContact finds or creates the remote contact and pushes field updates.
// The per-tax-number lock narrows the lookup-then-create race between
// concurrent workflows for the same new counterparty; it is advisory, so
// failing to take it degrades to the unlocked behavior.
func (s *WorkflowService) resolveContact(ctx context.Context, logger *zap.Logger, customer CustomerInfo) (*domain.Contact, error) {
	if s.acquireLock(ctx, logger, customer.TaxNumber) {
		defer func() {
			if err := s.locks.Release(ctx, customer.TaxNumber); err != nil {
				logger.Warn("failed to release contact lock", zap.Error(err))
			}
		}()
	}

	input := domain.ContactInput{
		Name:      customer.Name,
		Email:     customer.Email,
		TaxNumber: customer.TaxNumber,
		TaxOffice: customer.TaxOffice,
		City:      customer.City,
		District:  customer.District,
		Address:   customer.Address,
		Phone:     customer.Phone,
	}

	existing, err := s.gateway.FindContactByTaxNumber(ctx, customer.TaxNumber)
	if errors.Is(err, domain.ErrContactNotFound) {
		return s.gateway.CreateContact(ctx, input)
	}
	if err != nil {
		return nil, err
	}

	if !input.NeedsUpdate(existing) {
		return existing, nil
	}
	return s.gateway.UpdateContact(ctx, existing.ID, input)
}

// acquireLock tries to take the contact lock, waiting briefly between
// attempts. Returns false when the lock was not taken.
func (s *WorkflowService) acquireLock(ctx context.Context, logger *zap.Logger, taxNumber string) bool {
	for i := 0; i < lockAcquireAttempts; i++ {
		acquired, err := s.locks.Acquire(ctx, taxNumber, contactLockTTL)
		if err != nil {
			logger.Warn("contact lock unavailable, proceeding without it", zap.Error(err))
			return false
		}
		if acquired {
			return true
		}
		if err := s.sleep(ctx, lockAcquireDelay); err != nil {
			return false
		}
	}
	logger.Warn("contact lock held elsewhere, proceeding without it")
	return false
}

// createInvoice resolves each line item to a remote product and creates the
// draft sales invoice.
func (s *WorkflowService) createInvoice(ctx context.Context, contactID string, req WorkflowRequest) (*domain.Invoice, error) {
	lines := make([]domain.InvoiceLine, 0, len(req.Order.Items))
	for _, item := range req.Order.Items {
		unitPrice := item.GrossPrice.Div(grossDivisor)
		if unitPrice.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: item %q has non-positive unit price %s", domain.ErrValidation, item.Code, unitPrice)
		}
		quantity := item.Quantity
		if quantity.LessThanOrEqual(decimal.Zero) {
			quantity = decimal.NewFromInt(1)
		}

		productID, err := s.resolveProduct(ctx, item, unitPrice)
		if err != nil {
			return nil, err
		}

		lines = append(lines, domain.InvoiceLine{
			ProductID:   productID,
			Description: item.Name,
			Quantity:    quantity,
			UnitPrice:   unitPrice,
		})
	}

	return s.gateway.CreateSalesInvoice(ctx, domain.InvoiceInput{
		ContactID:   contactID,
		Description: req.Description,
		IssueDate:   time.Now(),
		Lines:       lines,
	})
}

// resolveProduct returns the remote product id for an item, reusing the cached
// id only after revalidating it against the provider.
func (s *WorkflowService) resolveProduct(ctx context.Context, item OrderItem, unitPrice decimal.Decimal) (string, error) {
	s.mu.Lock()
	cached := s.productIDs[item.Code]
	s.mu.Unlock()

	if cached != "" {
		exists, err := s.gateway.ProductExists(ctx, cached)
		if err != nil {
			return "", err
		}
		if exists {
			return cached, nil
		}
		s.mu.Lock()
		delete(s.productIDs, item.Code)
		s.mu.Unlock()
	}

	id, err := s.gateway.FindProductByCode(ctx, item.Code)
	if err != nil {
		return "", err
	}
	if id == "" {
		id, err = s.gateway.CreateProduct(ctx, domain.ProductInput{
			Code:      item.Code,
			Name:      item.Name,
			UnitPrice: unitPrice,
			VatRate:   decimal.NewFromInt(20),
		})
		if err != nil {
			return "", err
		}
	}

	s.mu.Lock()
	s.productIDs[item.Code] = id
	s.mu.Unlock()
	return id, nil
}

// recordPayment records the collection against the invoice. The amount is
// capped at the invoice's remaining balance; a fully paid invoice is a no-op.
func (s *WorkflowService) recordPayment(ctx context.Context, invoiceID string, payment PaymentInfo) error {
	invoice, err := s.gateway.GetInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	if invoice.Paid() {
		return nil
	}

	amount := payment.Amount
	if amount.GreaterThan(invoice.Remaining) {
		amount = invoice.Remaining
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	date := payment.Date
	if date.IsZero() {
		date = time.Now()
	}
	return s.gateway.RecordPayment(ctx, invoiceID, amount, date, "Online payment")
}

// formalize picks e-invoice when the counterparty's tax number is a registered
// e-invoice mailbox, e-archive otherwise. An e-archive rejection telling us
// the counterparty is an e-invoice user after all switches branches instead of
// failing.
func (s *WorkflowService) formalize(ctx context.Context, logger *zap.Logger, invoiceID, taxNumber string) (domain.FormalizationKind, error) {
	mailbox, err := s.gateway.EInvoiceMailbox(ctx, taxNumber)
	if err != nil {
		return "", err
	}

	if mailbox != "" {
		if _, err := s.gateway.CreateEInvoice(ctx, invoiceID, mailbox); err != nil {
			return "", err
		}
		return domain.FormalizationEInvoice, nil
	}

	_, err = s.gateway.CreateEArchive(ctx, invoiceID)
	if err == nil {
		return domain.FormalizationEArchive, nil
	}
	if !errors.Is(err, domain.ErrCounterpartyEInvoiceUser) {
		return "", err
	}

	logger.Info("e-archive rejected, counterparty is an e-invoice user, switching branch")
	mailbox, mbErr := s.gateway.EInvoiceMailbox(ctx, taxNumber)
	if mbErr != nil {
		return "", mbErr
	}
	if _, err := s.gateway.CreateEInvoice(ctx, invoiceID, mailbox); err != nil {
		return "", err
	}
	return domain.FormalizationEInvoice, nil
}

// share creates the customer-facing sharing link, preferring the invoice's own
// account email over the form-submitted one. The optimized path goes first; on
// failure an existing share is looked up before creating a plain one.
func (s *WorkflowService) share(ctx context.Context, logger *zap.Logger, invoice *domain.Invoice, req WorkflowRequest) error {
	email := invoice.AccountEmail
	if email == "" {
		email = req.AccountEmail
	}
	if email == "" {
		email = req.Customer.Email
	}
	if email == "" {
		return fmt.Errorf("%w: no email address available for sharing", domain.ErrValidation)
	}

	_, err := s.gateway.CreateSharing(ctx, invoice.ID, email, true)
	if err == nil {
		return nil
	}
	logger.Warn("optimized sharing failed, checking for existing share", zap.Error(err))

	if _, findErr := s.gateway.FindSharing(ctx, invoice.ID); findErr == nil {
		return nil
	} else if !errors.Is(findErr, domain.ErrSharingNotFound) {
		return findErr
	}

	_, err = s.gateway.CreateSharing(ctx, invoice.ID, email, false)
	return err
}

// sleepCtx sleeps for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
