package workflow

import (
	"time"

	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/shopspring/decimal"
)

const testCompany = "1000"

var jan15 = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func intPtr(v int) *int { return &v }

func hdr(id string) models.DocumentHeader {
	return models.DocumentHeader{CompanyCode: testCompany, DocumentId: id, DocumentDate: jan15, PartnerId: "P-1"}
}

func docLine(n int, qty, price string) models.DocumentLine {
	q, p := d(qty), d(price)
	return models.DocumentLine{LineNumber: n, MaterialId: "MAT-1", Quantity: q, UnitPrice: p, NetAmount: q.Mul(p)}
}

func purchaseOrder(qty, price string) *models.PurchaseOrder {
	return &models.PurchaseOrder{DocumentHeader: hdr("PO-1"), Items: []models.DocumentLine{docLine(1, qty, price)}}
}

func goodsReceipt(id, qty, price string) *models.GoodsReceipt {
	l := docLine(1, qty, price)
	l.PoLine = intPtr(1)
	return &models.GoodsReceipt{DocumentHeader: hdr(id), PurchaseOrderId: "PO-1", Items: []models.DocumentLine{l}}
}

func vendorInvoice(qty, price string) *models.VendorInvoice {
	l := docLine(1, qty, price)
	l.PoLine = intPtr(1)
	return &models.VendorInvoice{
		DocumentHeader:  hdr("VI-1"),
		PurchaseOrderId: "PO-1",
		Items:           []models.VendorInvoiceLine{{DocumentLine: l, InvoicedQuantity: d(qty)}},
	}
}

func january() models.FiscalPeriod { return models.NewMonthlyPeriod(2024, 1) }
