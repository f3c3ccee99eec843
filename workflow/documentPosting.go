package workflow

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/mmdatafocus/settlement_backend/config"
	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// AccountMapping is the chart-of-accounts slice the poster needs.
type AccountMapping struct {
	InventoryAccount    string `json:"inventory_account"`
	GrIrClearingAccount string `json:"gr_ir_clearing_account"`
	ApAccount           string `json:"ap_account"`
	CashAccount         string `json:"cash_account"`
	ArAccount           string `json:"ar_account"`
	RevenueAccount      string `json:"revenue_account"`
	CogsAccount         string `json:"cogs_account"`
}

func DefaultAccountMapping() AccountMapping {
	return AccountMapping{
		InventoryAccount:    "140000",
		GrIrClearingAccount: "290000",
		ApAccount:           "210000",
		CashAccount:         "110000",
		ArAccount:           "120000",
		RevenueAccount:      "400000",
		CogsAccount:         "500000",
	}
}

// LoadAccountMapping applies ACCOUNT_* env overrides to the defaults.
func LoadAccountMapping() AccountMapping {
	def := DefaultAccountMapping()
	return AccountMapping{
		InventoryAccount:    config.StringFromEnv("ACCOUNT_INVENTORY", def.InventoryAccount),
		GrIrClearingAccount: config.StringFromEnv("ACCOUNT_GR_IR_CLEARING", def.GrIrClearingAccount),
		ApAccount:           config.StringFromEnv("ACCOUNT_AP", def.ApAccount),
		CashAccount:         config.StringFromEnv("ACCOUNT_CASH", def.CashAccount),
		ArAccount:           config.StringFromEnv("ACCOUNT_AR", def.ArAccount),
		RevenueAccount:      config.StringFromEnv("ACCOUNT_REVENUE", def.RevenueAccount),
		CogsAccount:         config.StringFromEnv("ACCOUNT_COGS", def.CogsAccount),
	}
}

type postingRule struct {
	Debit     string
	Credit    string
	RefPrefix string
	Title     string
}

// rule returns the debit/credit pair for kind. Purchase orders do not post.
func (m AccountMapping) rule(kind models.DocumentKind) (postingRule, bool) {
	switch kind {
	case models.DocumentKindGoodsReceipt:
		return postingRule{m.InventoryAccount, m.GrIrClearingAccount, "GR", "Goods Receipt"}, true
	case models.DocumentKindVendorInvoice:
		return postingRule{m.GrIrClearingAccount, m.ApAccount, "VI", "Vendor Invoice"}, true
	case models.DocumentKindApPayment:
		return postingRule{m.ApAccount, m.CashAccount, "PAY", "Payment"}, true
	case models.DocumentKindDelivery:
		return postingRule{m.CogsAccount, m.InventoryAccount, "DEL", "Delivery"}, true
	case models.DocumentKindCustomerInvoice:
		return postingRule{m.ArAccount, m.RevenueAccount, "CI", "Customer Invoice"}, true
	case models.DocumentKindCustomerReceipt:
		return postingRule{m.CashAccount, m.ArAccount, "RCP", "Customer Receipt"}, true
	case models.DocumentKindPurchaseOrder:
		return postingRule{}, false
	}
	return postingRule{}, false
}

// Markers sit in bytes 8..11 of every derived entry id and tell the producers apart.
var (
	flowMarker     = [4]byte{'F', 'L', 'O', 'W'}
	accrualMarker  = [4]byte{'A', 'C', 'C', 'R'}
	deprMarker     = [4]byte{'D', 'E', 'P', 'R'}
	taxMarker      = [4]byte{'T', 'A', 'X', 'P'}
	reversalMarker = [4]byte{'R', 'E', 'V', 'S'}
)

// DeriveEntryId builds an RFC 4122 v4-shaped id from the poster counter and the source document id.
// It never reads the clock or a random source.
func DeriveEntryId(counter uint64, documentId string) uuid.UUID {
	return deriveEntryId(flowMarker, counter, documentId)
}

func deriveEntryId(marker [4]byte, counter uint64, key string) uuid.UUID {
	var id uuid.UUID
	binary.LittleEndian.PutUint64(id[0:8], counter)
	copy(id[8:12], marker[:])
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	binary.BigEndian.PutUint32(id[12:16], h.Sum32())

	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id
}

// periodScopedKey keeps generator ids distinct across companies and periods,
// since generator counters restart for every run.
func periodScopedKey(companyCode string, period models.FiscalPeriod, documentNumber string) string {
	return companyCode + "|" + period.Key() + "|" + documentNumber
}

// DocumentPoster turns business documents into two-line balanced journal entries.
// A poster is not safe for concurrent use; its counter starts at zero so a fresh
// poster replaying the same documents yields identical entries.
type DocumentPoster struct {
	Mapping AccountMapping
	Logger  *logrus.Logger
	counter uint64
}

func NewDocumentPoster(mapping AccountMapping, logger *logrus.Logger) *DocumentPoster {
	return &DocumentPoster{Mapping: mapping, Logger: logger}
}

func (p *DocumentPoster) Counter() uint64 {
	return p.counter
}

// PostingAmount is the explicit total when non-zero, otherwise the sum of line net amounts.
func PostingAmount(doc models.BusinessDocument) decimal.Decimal {
	if total := doc.ExplicitTotal(); !total.IsZero() {
		return total
	}
	return models.SumNetAmounts(doc.Lines())
}

// Post returns ok=false for documents that produce no entry: no lines, zero amount,
// or a kind without a posting rule.
func (p *DocumentPoster) Post(doc models.BusinessDocument) (models.JournalEntry, bool) {
	rule, ok := p.Mapping.rule(doc.Kind())
	if !ok {
		return models.JournalEntry{}, false
	}
	header := doc.Header()
	if len(doc.Lines()) == 0 {
		p.logSkip(header, doc.Kind(), "no lines")
		return models.JournalEntry{}, false
	}
	amount := PostingAmount(doc)
	if amount.IsZero() {
		p.logSkip(header, doc.Kind(), "zero amount")
		return models.JournalEntry{}, false
	}

	p.counter++
	partner := header.PartnerId
	if partner == "" {
		partner = "Unknown"
	}
	entry := models.JournalEntry{
		EntryId:     DeriveEntryId(p.counter, header.DocumentId),
		CompanyCode: header.CompanyCode,
		PostingDate: header.EffectivePostingDate(),
		DocumentId:  header.DocumentId,
		Reference:   fmt.Sprintf("%s:%s", rule.RefPrefix, header.DocumentId),
		Description: fmt.Sprintf("%s %s - %s", rule.Title, header.DocumentId, partner),
		Source:      models.JournalSourceDocumentFlow,
	}
	entry.AddLine(models.DebitLine(1, rule.Debit, amount))
	entry.AddLine(models.CreditLine(2, rule.Credit, amount))
	return entry, true
}

func (p *DocumentPoster) logSkip(header models.DocumentHeader, kind models.DocumentKind, reason string) {
	if p.Logger == nil {
		return
	}
	p.Logger.WithFields(logrus.Fields{
		"field":        "DocumentPoster",
		"company_code": header.CompanyCode,
		"document_id":  header.DocumentId,
		"kind":         kind,
	}).Debug("posting skipped: " + reason)
}

// PostAll posts docs in order, dropping the ones that produce no entry.
func (p *DocumentPoster) PostAll(docs ...models.BusinessDocument) []models.JournalEntry {
	var entries []models.JournalEntry
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		if entry, ok := p.Post(doc); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

// PostP2PChain posts goods receipts, then the vendor invoice, then the payment.
func (p *DocumentPoster) PostP2PChain(chain models.P2PDocumentChain) []models.JournalEntry {
	var docs []models.BusinessDocument
	for _, gr := range chain.GoodsReceipts {
		if gr != nil {
			docs = append(docs, gr)
		}
	}
	if chain.VendorInvoice != nil {
		docs = append(docs, chain.VendorInvoice)
	}
	if chain.Payment != nil {
		docs = append(docs, chain.Payment)
	}
	return p.PostAll(docs...)
}

// PostO2CChain posts deliveries, then the customer invoice, then the receipt.
func (p *DocumentPoster) PostO2CChain(chain models.O2CDocumentChain) []models.JournalEntry {
	var docs []models.BusinessDocument
	for _, d := range chain.Deliveries {
		if d != nil {
			docs = append(docs, d)
		}
	}
	if chain.CustomerInvoice != nil {
		docs = append(docs, chain.CustomerInvoice)
	}
	if chain.CustomerReceipt != nil {
		docs = append(docs, chain.CustomerReceipt)
	}
	return p.PostAll(docs...)
}
