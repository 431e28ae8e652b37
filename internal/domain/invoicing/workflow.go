package invoicing

// WorkflowState is the explicit state of one invoice workflow instance.
// Transitions run strictly forward; Failed is reachable from every state.
type WorkflowState string

const (
	StateStart           WorkflowState = "start"
	StateTokensLoaded    WorkflowState = "tokens_loaded"
	StateContactResolved WorkflowState = "contact_resolved"
	StateInvoiceCreated  WorkflowState = "invoice_created"
	StatePaymentRecorded WorkflowState = "payment_recorded"
	StateFormalized      WorkflowState = "formalized"
	StateSharingSent     WorkflowState = "sharing_sent"
	StateComplete        WorkflowState = "complete"
	StateFailed          WorkflowState = "failed"
)

// WorkflowStep names the unit of work that advances the state machine.
type WorkflowStep string

const (
	StepLoadTokens     WorkflowStep = "load_tokens"
	StepResolveContact WorkflowStep = "resolve_contact"
	StepCreateInvoice  WorkflowStep = "create_invoice"
	StepRecordPayment  WorkflowStep = "record_payment"
	StepFormalize      WorkflowStep = "formalize"
	StepShareInvoice   WorkflowStep = "share_invoice"
)

// stepFatality classifies each step's failure mode. Payment and sharing
// failures leave an invoice a human can reconcile, so they are downgraded to
// logged warnings; everything else aborts the workflow.
var stepFatality = map[WorkflowStep]bool{
	StepLoadTokens:     true,
	StepResolveContact: true,
	StepCreateInvoice:  true,
	StepRecordPayment:  false,
	StepFormalize:      true,
	StepShareInvoice:   false,
}

// Fatal reports whether a failure in the step aborts the workflow.
func (s WorkflowStep) Fatal() bool {
	fatal, ok := stepFatality[s]
	if !ok {
		return true
	}
	return fatal
}

// NextState returns the state reached when the step succeeds.
func (s WorkflowStep) NextState() WorkflowState {
	switch s {
	case StepLoadTokens:
		return StateTokensLoaded
	case StepResolveContact:
		return StateContactResolved
	case StepCreateInvoice:
		return StateInvoiceCreated
	case StepRecordPayment:
		return StatePaymentRecorded
	case StepFormalize:
		return StateFormalized
	case StepShareInvoice:
		return StateSharingSent
	default:
		return StateFailed
	}
}

// FormalizationKind selects the legal delivery mechanism for an invoice.
// The two are mutually exclusive: e-invoice when the counterparty's tax number
// is a registered e-invoice mailbox, e-archive otherwise.
type FormalizationKind string

const (
	FormalizationEInvoice FormalizationKind = "e_invoice"
	FormalizationEArchive FormalizationKind = "e_archive"
)
