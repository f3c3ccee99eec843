package workflow

import (
	"testing"

	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/shopspring/decimal"
)

func p2pChain() models.P2PDocumentChain {
	return models.P2PDocumentChain{
		PurchaseOrder: purchaseOrder("10", "100"),
		GoodsReceipts: []*models.GoodsReceipt{goodsReceipt("GR-1", "10", "100")},
		VendorInvoice: vendorInvoice("10", "100"),
		Payment:       &models.Payment{DocumentHeader: hdr("PAY-1"), IsVendor: true, Amount: d("1000"), InvoiceId: "VI-1"},
	}
}

func assertTwoLine(t *testing.T, e models.JournalEntry, debit, credit string, amount decimal.Decimal) {
	t.Helper()
	if err := e.Validate(); err != nil {
		t.Fatalf("%s: %v", e.DocumentId, err)
	}
	if len(e.Lines) != 2 {
		t.Fatalf("%s: expected 2 lines, got %d", e.DocumentId, len(e.Lines))
	}
	if e.Lines[0].AccountCode != debit || !e.Lines[0].DebitAmount.Equal(amount) {
		t.Fatalf("%s: debit line %+v, want %s %s", e.DocumentId, e.Lines[0], debit, amount)
	}
	if e.Lines[1].AccountCode != credit || !e.Lines[1].CreditAmount.Equal(amount) {
		t.Fatalf("%s: credit line %+v, want %s %s", e.DocumentId, e.Lines[1], credit, amount)
	}
}

func TestPostP2PChain(t *testing.T) {
	m := DefaultAccountMapping()
	entries := NewDocumentPoster(m, nil).PostP2PChain(p2pChain())
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries (PO does not post), got %d", len(entries))
	}
	amount := d("1000")
	assertTwoLine(t, entries[0], m.InventoryAccount, m.GrIrClearingAccount, amount)
	assertTwoLine(t, entries[1], m.GrIrClearingAccount, m.ApAccount, amount)
	assertTwoLine(t, entries[2], m.ApAccount, m.CashAccount, amount)

	if entries[0].Reference != "GR:GR-1" || entries[2].Reference != "PAY:PAY-1" {
		t.Fatalf("unexpected references %q %q", entries[0].Reference, entries[2].Reference)
	}
	if entries[1].Description != "Vendor Invoice VI-1 - P-1" {
		t.Fatalf("description=%q", entries[1].Description)
	}

	// GR/IR clearing nets to zero once the invoice is posted.
	net := decimal.Zero
	for _, e := range entries {
		for _, l := range e.Lines {
			if l.AccountCode == m.GrIrClearingAccount {
				net = net.Add(l.DebitAmount).Sub(l.CreditAmount)
			}
		}
	}
	if !net.IsZero() {
		t.Fatalf("GR/IR clearing should net to zero, got %s", net)
	}
}

func TestPostO2CChain(t *testing.T) {
	m := DefaultAccountMapping()
	chain := models.O2CDocumentChain{
		Deliveries:      []*models.Delivery{{DocumentHeader: hdr("DEL-1"), Items: []models.DocumentLine{docLine(1, "2", "30")}}},
		CustomerInvoice: &models.CustomerInvoice{DocumentHeader: hdr("CI-1"), Items: []models.DocumentLine{docLine(1, "2", "50")}, TotalAmount: d("110")},
		CustomerReceipt: &models.Payment{DocumentHeader: hdr("RCP-1"), Amount: d("110")},
	}
	entries := NewDocumentPoster(m, nil).PostO2CChain(chain)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	assertTwoLine(t, entries[0], m.CogsAccount, m.InventoryAccount, d("60"))
	// The explicit total wins over line amounts.
	assertTwoLine(t, entries[1], m.ArAccount, m.RevenueAccount, d("110"))
	assertTwoLine(t, entries[2], m.CashAccount, m.ArAccount, d("110"))
}

func TestPoster_NoEntryDocumentsLeaveCounter(t *testing.T) {
	p := NewDocumentPoster(DefaultAccountMapping(), nil)
	empty := &models.GoodsReceipt{DocumentHeader: hdr("GR-EMPTY")}
	zero := &models.CustomerInvoice{DocumentHeader: hdr("CI-ZERO"), Items: []models.DocumentLine{docLine(1, "0", "10")}}

	if got := p.PostAll(purchaseOrder("1", "1"), empty, zero); len(got) != 0 {
		t.Fatalf("expected no entries, got %d", len(got))
	}
	if p.Counter() != 0 {
		t.Fatalf("counter moved to %d", p.Counter())
	}

	entries := p.PostAll(goodsReceipt("GR-1", "1", "5"))
	if len(entries) != 1 || p.Counter() != 1 {
		t.Fatalf("expected first real entry to take counter 1, got %d entries counter %d", len(entries), p.Counter())
	}
}

func TestPoster_DeterministicEntryIds(t *testing.T) {
	a := NewDocumentPoster(DefaultAccountMapping(), nil).PostP2PChain(p2pChain())
	b := NewDocumentPoster(DefaultAccountMapping(), nil).PostP2PChain(p2pChain())
	if len(a) != len(b) {
		t.Fatalf("length mismatch %d vs %d", len(a), len(b))
	}
	seen := map[string]bool{}
	for i := range a {
		if a[i].EntryId != b[i].EntryId {
			t.Fatalf("entry %d id differs: %s vs %s", i, a[i].EntryId, b[i].EntryId)
		}
		if seen[a[i].EntryId.String()] {
			t.Fatalf("duplicate id %s", a[i].EntryId)
		}
		seen[a[i].EntryId.String()] = true
		if a[i].EntryId.Version() != 4 {
			t.Fatalf("id %s is not v4-shaped", a[i].EntryId)
		}
	}
}

func TestDeriveEntryId_VariesByDocument(t *testing.T) {
	if DeriveEntryId(1, "GR-1") == DeriveEntryId(1, "GR-2") {
		t.Fatalf("different documents must give different ids")
	}
	if DeriveEntryId(1, "GR-1") == DeriveEntryId(2, "GR-1") {
		t.Fatalf("different counters must give different ids")
	}
}

func TestPostingDatePrefersPostingDate(t *testing.T) {
	gr := goodsReceipt("GR-1", "1", "10")
	posting := jan15.AddDate(0, 0, 3)
	gr.PostingDate = &posting
	entries := NewDocumentPoster(DefaultAccountMapping(), nil).PostAll(gr)
	if len(entries) != 1 || !entries[0].PostingDate.Equal(posting) {
		t.Fatalf("posting date not used: %+v", entries)
	}
}

func TestProcureToPayScenarios(t *testing.T) {
	tests := []struct {
		name         string
		invoicePrice string
		wantPassed   bool
		wantPricePct string
		wantInvoice  string
	}{
		{name: "invoice at PO price", invoicePrice: "50", wantPassed: true, wantInvoice: "5000"},
		{name: "price up 10 percent", invoicePrice: "55", wantPassed: false, wantPricePct: "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			po := purchaseOrder("100", "50")
			grs := []*models.GoodsReceipt{goodsReceipt("GR-1", "100", "50")}
			inv := vendorInvoice("100", tt.invoicePrice)

			r := newMatcher().Validate(po, grs, inv)
			if r.Passed != tt.wantPassed {
				t.Fatalf("passed=%v, want %v: %+v", r.Passed, tt.wantPassed, r.Variances)
			}
			if !tt.wantPassed {
				pv := r.VariancesOfType(models.VarianceTypePricePoInvoice)
				if r.PriceMatched || len(pv) != 1 || !pv[0].VariancePct.Equal(d(tt.wantPricePct)) {
					t.Fatalf("price variances=%+v", pv)
				}
				return
			}

			m := DefaultAccountMapping()
			entries := NewDocumentPoster(m, nil).PostP2PChain(models.P2PDocumentChain{PurchaseOrder: po, GoodsReceipts: grs, VendorInvoice: inv})
			if len(entries) != 2 {
				t.Fatalf("expected GR and invoice entries, got %d", len(entries))
			}
			assertTwoLine(t, entries[0], m.InventoryAccount, m.GrIrClearingAccount, d("5000"))
			assertTwoLine(t, entries[1], m.GrIrClearingAccount, m.ApAccount, d(tt.wantInvoice))
		})
	}
}
