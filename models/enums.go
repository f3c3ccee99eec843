package models

import (
	"errors"
	"strings"
)

type DocumentKind string

const (
	DocumentKindPurchaseOrder   DocumentKind = "PurchaseOrder"
	DocumentKindGoodsReceipt    DocumentKind = "GoodsReceipt"
	DocumentKindVendorInvoice   DocumentKind = "VendorInvoice"
	DocumentKindApPayment       DocumentKind = "ApPayment"
	DocumentKindDelivery        DocumentKind = "Delivery"
	DocumentKindCustomerInvoice DocumentKind = "CustomerInvoice"
	DocumentKindCustomerReceipt DocumentKind = "CustomerReceipt"
)

// ParseDocumentKind is case-insensitive.
func ParseDocumentKind(s string) (DocumentKind, error) {
	for _, k := range []DocumentKind{
		DocumentKindPurchaseOrder,
		DocumentKindGoodsReceipt,
		DocumentKindVendorInvoice,
		DocumentKindApPayment,
		DocumentKindDelivery,
		DocumentKindCustomerInvoice,
		DocumentKindCustomerReceipt,
	} {
		if strings.EqualFold(strings.TrimSpace(s), string(k)) {
			return k, nil
		}
	}
	return "", errors.New("invalid document kind")
}

type VarianceType string

const (
	VarianceTypeQuantityPoGr      VarianceType = "QUANTITY_PO_GR"
	VarianceTypeQuantityGrInvoice VarianceType = "QUANTITY_GR_INVOICE"
	VarianceTypePricePoInvoice    VarianceType = "PRICE_PO_INVOICE"
	VarianceTypeTotalAmount       VarianceType = "TOTAL_AMOUNT"
	VarianceTypeMissingLine       VarianceType = "MISSING_LINE"
	VarianceTypeExtraLine         VarianceType = "EXTRA_LINE"
)

type SubledgerType string

const (
	SubledgerTypeAR        SubledgerType = "AR"
	SubledgerTypeAP        SubledgerType = "AP"
	SubledgerTypeFA        SubledgerType = "FA"
	SubledgerTypeInventory SubledgerType = "INV"
)

type ReconciliationStatus string

const (
	ReconciliationStatusReconciled          ReconciliationStatus = "Reconciled"
	ReconciliationStatusPartiallyReconciled ReconciliationStatus = "PartiallyReconciled"
	ReconciliationStatusUnreconciled        ReconciliationStatus = "Unreconciled"
	ReconciliationStatusInProgress          ReconciliationStatus = "InProgress"
)

// Label is the short upper-case form used in report summaries.
func (s ReconciliationStatus) Label() string {
	switch s {
	case ReconciliationStatusReconciled:
		return "RECONCILED"
	case ReconciliationStatusPartiallyReconciled:
		return "PARTIAL"
	case ReconciliationStatusUnreconciled:
		return "UNRECONCILED"
	case ReconciliationStatusInProgress:
		return "IN PROGRESS"
	}
	return string(s)
}

type PeriodType string

const (
	PeriodTypeMonthly   PeriodType = "Monthly"
	PeriodTypeQuarterly PeriodType = "Quarterly"
	PeriodTypeSpecial   PeriodType = "Special"
)

type PeriodStatus string

const (
	PeriodStatusOpen       PeriodStatus = "Open"
	PeriodStatusSoftClosed PeriodStatus = "SoftClosed"
	PeriodStatusClosed     PeriodStatus = "Closed"
	PeriodStatusLocked     PeriodStatus = "Locked"
)

type CloseTaskState string

const (
	CloseTaskStatePending               CloseTaskState = "Pending"
	CloseTaskStateInProgress            CloseTaskState = "InProgress"
	CloseTaskStateCompleted             CloseTaskState = "Completed"
	CloseTaskStateCompletedWithWarnings CloseTaskState = "CompletedWithWarnings"
	CloseTaskStateSkipped               CloseTaskState = "Skipped"
	CloseTaskStateFailed                CloseTaskState = "Failed"
)

type PeriodCloseStatus string

const (
	PeriodCloseStatusNotStarted          PeriodCloseStatus = "NotStarted"
	PeriodCloseStatusInProgress          PeriodCloseStatus = "InProgress"
	PeriodCloseStatusCompleted           PeriodCloseStatus = "Completed"
	PeriodCloseStatusCompletedWithErrors PeriodCloseStatus = "CompletedWithErrors"
	PeriodCloseStatusFailed              PeriodCloseStatus = "Failed"
)

type AccrualType string

const (
	AccrualTypeAccruedExpense  AccrualType = "AccruedExpense"
	AccrualTypeAccruedRevenue  AccrualType = "AccruedRevenue"
	AccrualTypePrepaidExpense  AccrualType = "PrepaidExpense"
	AccrualTypeDeferredRevenue AccrualType = "DeferredRevenue"
)

type AccrualCalculationMethod string

const (
	AccrualMethodFixedAmount      AccrualCalculationMethod = "FixedAmount"
	AccrualMethodPercentageOfBase AccrualCalculationMethod = "PercentageOfBase"
	AccrualMethodDaysBased        AccrualCalculationMethod = "DaysBased"
	AccrualMethodManual           AccrualCalculationMethod = "Manual"
)

type AccrualFrequency string

const (
	AccrualFrequencyMonthly   AccrualFrequency = "Monthly"
	AccrualFrequencyQuarterly AccrualFrequency = "Quarterly"
	AccrualFrequencyAnnually  AccrualFrequency = "Annually"
)

type AssetStatus string

const (
	AssetStatusActive            AssetStatus = "Active"
	AssetStatusFullyDepreciated  AssetStatus = "FullyDepreciated"
	AssetStatusDisposed          AssetStatus = "Disposed"
	AssetStatusUnderConstruction AssetStatus = "UnderConstruction"
)
