package workflow

import (
	"testing"

	"github.com/mmdatafocus/settlement_backend/models"
)

func newMatcher() *ThreeWayMatcher {
	return NewThreeWayMatcher(models.DefaultToleranceConfig(), nil)
}

func TestThreeWayMatch_ExactMatchPasses(t *testing.T) {
	r := newMatcher().Validate(purchaseOrder("10", "100"), []*models.GoodsReceipt{goodsReceipt("GR-1", "10", "100")}, vendorInvoice("10", "100"))
	if !r.Passed {
		t.Fatalf("expected pass, got %+v", r)
	}
	if len(r.Variances) != 0 {
		t.Fatalf("expected no variances, got %d", len(r.Variances))
	}
	if r.Message != "Three-way match passed" {
		t.Fatalf("message=%q", r.Message)
	}
}

func TestThreeWayMatch_PriceAtToleranceBoundary(t *testing.T) {
	grs := []*models.GoodsReceipt{goodsReceipt("GR-1", "10", "100")}

	// Exactly 5% over the PO price is still inside tolerance.
	r := newMatcher().Validate(purchaseOrder("10", "100"), grs, vendorInvoice("10", "105"))
	if !r.Passed {
		t.Fatalf("5%% price variance should pass, got %+v", r.Variances)
	}

	r = newMatcher().Validate(purchaseOrder("10", "100"), grs, vendorInvoice("10", "105.01"))
	if r.Passed || r.PriceMatched {
		t.Fatalf("5.01%% price variance should fail, got %+v", r)
	}
	pv := r.VariancesOfType(models.VarianceTypePricePoInvoice)
	if len(pv) != 1 || !pv[0].VariancePct.Equal(d("5.01")) {
		t.Fatalf("unexpected price variances: %+v", pv)
	}
}

func TestThreeWayMatch_UnderDelivery(t *testing.T) {
	r := newMatcher().Validate(purchaseOrder("10", "100"), []*models.GoodsReceipt{goodsReceipt("GR-1", "9", "100")}, vendorInvoice("9", "100"))
	if r.QuantityMatched || r.Passed {
		t.Fatalf("under-delivery of 10%% should fail quantity, got %+v", r)
	}
	qv := r.VariancesOfType(models.VarianceTypeQuantityPoGr)
	if len(qv) != 1 || !qv[0].Variance.Equal(d("-1")) {
		t.Fatalf("unexpected quantity variances: %+v", qv)
	}
}

func TestThreeWayMatch_OverDeliveryWithinAllowance(t *testing.T) {
	r := newMatcher().Validate(purchaseOrder("10", "100"), []*models.GoodsReceipt{goodsReceipt("GR-1", "11", "100")}, vendorInvoice("11", "100"))
	if !r.QuantityMatched {
		t.Fatalf("10%% over-delivery is allowed, got %+v", r.Variances)
	}

	r = newMatcher().Validate(purchaseOrder("10", "100"), []*models.GoodsReceipt{goodsReceipt("GR-1", "12", "100")}, vendorInvoice("12", "100"))
	if r.QuantityMatched {
		t.Fatalf("20%% over-delivery should fail, got %+v", r)
	}
}

func TestThreeWayMatch_OverDeliveryDisallowed(t *testing.T) {
	cfg := models.DefaultToleranceConfig()
	cfg.AllowOverDelivery = false
	r := NewThreeWayMatcher(cfg, nil).Validate(purchaseOrder("10", "100"), []*models.GoodsReceipt{goodsReceipt("GR-1", "10.5", "100")}, vendorInvoice("10.5", "100"))
	if r.QuantityMatched {
		t.Fatalf("any over-delivery should fail when not allowed")
	}
}

func TestThreeWayMatch_ReceiptsAccumulateAcrossGoodsReceipts(t *testing.T) {
	grs := []*models.GoodsReceipt{goodsReceipt("GR-1", "4", "100"), goodsReceipt("GR-2", "6", "100")}
	r := newMatcher().Validate(purchaseOrder("10", "100"), grs, vendorInvoice("10", "100"))
	if !r.Passed {
		t.Fatalf("split receipts should match, got %+v", r.Variances)
	}
}

func TestThreeWayMatch_MissingAndExtraInvoiceLines(t *testing.T) {
	po := purchaseOrder("10", "100")
	po.Items = append(po.Items, docLine(2, "5", "20"))
	inv := vendorInvoice("10", "100")
	extra := docLine(3, "1", "50")
	extra.PoLine = intPtr(9)
	inv.Items = append(inv.Items, models.VendorInvoiceLine{DocumentLine: extra, InvoicedQuantity: d("1")})

	r := newMatcher().Validate(po, []*models.GoodsReceipt{goodsReceipt("GR-1", "10", "100")}, inv)
	if r.AmountMatched || r.Passed {
		t.Fatalf("expected amount mismatch, got %+v", r)
	}
	if len(r.VariancesOfType(models.VarianceTypeMissingLine)) != 1 {
		t.Fatalf("expected one missing line, got %+v", r.Variances)
	}
	extras := r.VariancesOfType(models.VarianceTypeExtraLine)
	if len(extras) != 1 || extras[0].LineNumber != 3 {
		t.Fatalf("expected extra line 3, got %+v", extras)
	}
}

func TestThreeWayMatch_InvoiceQuantityAgainstReceipt(t *testing.T) {
	r := newMatcher().Validate(purchaseOrder("10", "100"), []*models.GoodsReceipt{goodsReceipt("GR-1", "10", "100")}, vendorInvoice("8", "100"))
	if len(r.VariancesOfType(models.VarianceTypeQuantityGrInvoice)) != 1 {
		t.Fatalf("expected GR/invoice quantity variance, got %+v", r.Variances)
	}
}

func TestCheckQuantities(t *testing.T) {
	m := newMatcher()
	if !m.CheckQuantities(purchaseOrder("100", "1"), []*models.GoodsReceipt{goodsReceipt("GR-1", "98", "1")}) {
		t.Fatalf("2%% short should be within tolerance")
	}
	if m.CheckQuantities(purchaseOrder("100", "1"), []*models.GoodsReceipt{goodsReceipt("GR-1", "103", "1")}) {
		t.Fatalf("3%% over should be outside tolerance")
	}
	if m.CheckQuantities(purchaseOrder("100", "1"), nil) {
		t.Fatalf("nothing received should fail")
	}
}
