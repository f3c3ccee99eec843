package workflow

// Standardized reasons for ledger reversals.
// These are human-readable strings carried in the reversal's description.
const (
	ReversalReasonAccrualAutoReverse   = "Accrual auto-reversal"
	ReversalReasonDocumentCancelled    = "Source document cancelled"
	ReversalReasonPostingCorrection    = "Posting error correction"
	ReversalReasonCloseRunRollback     = "Close run rollback"
	ReversalReasonReconciliationAdjust = "Reconciliation adjustment"
)

var reversalReasons = map[string]struct{}{
	ReversalReasonAccrualAutoReverse:   {},
	ReversalReasonDocumentCancelled:    {},
	ReversalReasonPostingCorrection:    {},
	ReversalReasonCloseRunRollback:     {},
	ReversalReasonReconciliationAdjust: {},
}

func IsReversalReason(reason string) bool {
	_, ok := reversalReasons[reason]
	return ok
}
