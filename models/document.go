package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BusinessDocument is any already-materialized source document the poster accepts.
type BusinessDocument interface {
	Kind() DocumentKind
	Header() DocumentHeader
	Lines() []DocumentLine
	// ExplicitTotal is the document's own total field; zero means "derive from lines".
	ExplicitTotal() decimal.Decimal
}

type DocumentHeader struct {
	CompanyCode  string     `json:"company_code" binding:"required"`
	DocumentId   string     `json:"document_id" binding:"required"`
	DocumentDate time.Time  `json:"document_date" binding:"required"`
	PostingDate  *time.Time `json:"posting_date"`
	PartnerId    string     `json:"partner_id"`
}

// EffectivePostingDate falls back to the document date.
func (h DocumentHeader) EffectivePostingDate() time.Time {
	if h.PostingDate != nil && !h.PostingDate.IsZero() {
		return *h.PostingDate
	}
	return h.DocumentDate
}

type DocumentLine struct {
	LineNumber int             `json:"line_number"`
	MaterialId string          `json:"material_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	NetAmount  decimal.Decimal `json:"net_amount"`
	PoLine     *int            `json:"po_line"`
	GrLine     *int            `json:"gr_line"`
}

type PurchaseOrder struct {
	DocumentHeader
	Items          []DocumentLine  `json:"items"`
	TotalNetAmount decimal.Decimal `json:"total_net_amount"`
}

func (d *PurchaseOrder) Kind() DocumentKind             { return DocumentKindPurchaseOrder }
func (d *PurchaseOrder) Header() DocumentHeader         { return d.DocumentHeader }
func (d *PurchaseOrder) Lines() []DocumentLine          { return d.Items }
func (d *PurchaseOrder) ExplicitTotal() decimal.Decimal { return d.TotalNetAmount }

// NetTotal is the explicit total, or the sum of line net amounts when unset.
func (d *PurchaseOrder) NetTotal() decimal.Decimal {
	if !d.TotalNetAmount.IsZero() {
		return d.TotalNetAmount
	}
	return SumNetAmounts(d.Items)
}

type GoodsReceipt struct {
	DocumentHeader
	PurchaseOrderId string          `json:"purchase_order_id"`
	Items           []DocumentLine  `json:"items"`
	TotalValue      decimal.Decimal `json:"total_value"`
}

func (d *GoodsReceipt) Kind() DocumentKind             { return DocumentKindGoodsReceipt }
func (d *GoodsReceipt) Header() DocumentHeader         { return d.DocumentHeader }
func (d *GoodsReceipt) Lines() []DocumentLine          { return d.Items }
func (d *GoodsReceipt) ExplicitTotal() decimal.Decimal { return d.TotalValue }

type VendorInvoiceLine struct {
	DocumentLine
	InvoicedQuantity decimal.Decimal `json:"invoiced_quantity"`
}

type VendorInvoice struct {
	DocumentHeader
	PurchaseOrderId string              `json:"purchase_order_id"`
	Items           []VendorInvoiceLine `json:"items"`
	NetAmount       decimal.Decimal     `json:"net_amount"`
	PayableAmount   decimal.Decimal     `json:"payable_amount"`
}

func (d *VendorInvoice) Kind() DocumentKind     { return DocumentKindVendorInvoice }
func (d *VendorInvoice) Header() DocumentHeader { return d.DocumentHeader }
func (d *VendorInvoice) Lines() []DocumentLine {
	lines := make([]DocumentLine, 0, len(d.Items))
	for _, it := range d.Items {
		lines = append(lines, it.DocumentLine)
	}
	return lines
}
func (d *VendorInvoice) ExplicitTotal() decimal.Decimal {
	if !d.PayableAmount.IsZero() {
		return d.PayableAmount
	}
	return d.NetAmount
}

// NetTotal is the invoice net amount, or the sum of line net amounts when unset.
func (d *VendorInvoice) NetTotal() decimal.Decimal {
	if !d.NetAmount.IsZero() {
		return d.NetAmount
	}
	return SumNetAmounts(d.Lines())
}

// Payment covers both outgoing vendor payments and incoming customer receipts;
// the direction decides the kind.
type Payment struct {
	DocumentHeader
	IsVendor  bool            `json:"is_vendor"`
	Amount    decimal.Decimal `json:"amount"`
	Items     []DocumentLine  `json:"items"`
	InvoiceId string          `json:"invoice_id"`
}

func (d *Payment) Kind() DocumentKind {
	if d.IsVendor {
		return DocumentKindApPayment
	}
	return DocumentKindCustomerReceipt
}
func (d *Payment) Header() DocumentHeader { return d.DocumentHeader }

// Lines synthesizes a single line from Amount when the payment has no items.
func (d *Payment) Lines() []DocumentLine {
	if len(d.Items) > 0 || d.Amount.IsZero() {
		return d.Items
	}
	return []DocumentLine{{LineNumber: 1, Quantity: decimal.NewFromInt(1), UnitPrice: d.Amount, NetAmount: d.Amount}}
}
func (d *Payment) ExplicitTotal() decimal.Decimal { return d.Amount }

type Delivery struct {
	DocumentHeader
	SalesOrderId string          `json:"sales_order_id"`
	Items        []DocumentLine  `json:"items"`
	TotalCost    decimal.Decimal `json:"total_cost"`
}

func (d *Delivery) Kind() DocumentKind             { return DocumentKindDelivery }
func (d *Delivery) Header() DocumentHeader         { return d.DocumentHeader }
func (d *Delivery) Lines() []DocumentLine          { return d.Items }
func (d *Delivery) ExplicitTotal() decimal.Decimal { return d.TotalCost }

type CustomerInvoice struct {
	DocumentHeader
	DeliveryId  string          `json:"delivery_id"`
	Items       []DocumentLine  `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

func (d *CustomerInvoice) Kind() DocumentKind             { return DocumentKindCustomerInvoice }
func (d *CustomerInvoice) Header() DocumentHeader         { return d.DocumentHeader }
func (d *CustomerInvoice) Lines() []DocumentLine          { return d.Items }
func (d *CustomerInvoice) ExplicitTotal() decimal.Decimal { return d.TotalAmount }

// CustomerReceipt is a Payment received from a customer.
type CustomerReceipt = Payment

// P2PDocumentChain groups a procure-to-pay flow.
type P2PDocumentChain struct {
	PurchaseOrder *PurchaseOrder  `json:"purchase_order"`
	GoodsReceipts []*GoodsReceipt `json:"goods_receipts"`
	VendorInvoice *VendorInvoice  `json:"vendor_invoice"`
	Payment       *Payment        `json:"payment"`
}

// O2CDocumentChain groups an order-to-cash flow.
type O2CDocumentChain struct {
	Deliveries      []*Delivery      `json:"deliveries"`
	CustomerInvoice *CustomerInvoice `json:"customer_invoice"`
	CustomerReceipt *Payment         `json:"customer_receipt"`
}

func SumNetAmounts(lines []DocumentLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.NetAmount)
	}
	return total
}
