package workflow

import (
	"fmt"

	"github.com/mmdatafocus/settlement_backend/config"
	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var hundred = decimal.NewFromInt(100)

// ThreeWayMatcher checks PO, goods receipts and vendor invoice against a ToleranceConfig.
// Percentages in variances are expressed x100 and tolerances compare strictly,
// so a variance exactly at the tolerance passes.
type ThreeWayMatcher struct {
	Config models.ToleranceConfig
	Logger *logrus.Logger
}

func NewThreeWayMatcher(cfg models.ToleranceConfig, logger *logrus.Logger) *ThreeWayMatcher {
	return &ThreeWayMatcher{Config: cfg, Logger: logger}
}

// LoadToleranceConfig reads MATCH_* overrides. Percentages stay fractional (0.05 = 5%).
func LoadToleranceConfig() models.ToleranceConfig {
	def := models.DefaultToleranceConfig()
	return models.ToleranceConfig{
		PriceTolerance:          config.DecimalFromEnv("MATCH_PRICE_TOLERANCE", def.PriceTolerance),
		QuantityTolerance:       config.DecimalFromEnv("MATCH_QUANTITY_TOLERANCE", def.QuantityTolerance),
		AbsoluteAmountTolerance: config.DecimalFromEnv("MATCH_ABSOLUTE_TOLERANCE", def.AbsoluteAmountTolerance),
		AllowOverDelivery:       config.BoolFromEnv("MATCH_ALLOW_OVER_DELIVERY", def.AllowOverDelivery),
		MaxOverDeliveryPct:      config.DecimalFromEnv("MATCH_MAX_OVER_DELIVERY_PCT", def.MaxOverDeliveryPct),
	}
}

// variancePct is |variance| / base * 100, or zero when base is not positive.
func variancePct(variance, base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	return variance.Abs().Div(base).Mul(hundred)
}

func receivedByPoLine(grs []*models.GoodsReceipt) map[int]decimal.Decimal {
	received := make(map[int]decimal.Decimal)
	for _, gr := range grs {
		if gr == nil {
			continue
		}
		for _, item := range gr.Items {
			if item.PoLine == nil {
				continue
			}
			received[*item.PoLine] = received[*item.PoLine].Add(item.Quantity)
		}
	}
	return received
}

func (m *ThreeWayMatcher) Validate(po *models.PurchaseOrder, grs []*models.GoodsReceipt, invoice *models.VendorInvoice) models.MatchResult {
	cfg := m.Config
	qtyTolPct := cfg.QuantityTolerance.Mul(hundred)
	priceTolPct := cfg.PriceTolerance.Mul(hundred)
	overTolPct := cfg.MaxOverDeliveryPct.Mul(hundred)

	quantityMatched, priceMatched, amountMatched := true, true, true
	var variances []models.MatchVariance

	received := receivedByPoLine(grs)
	poLines := make(map[int]struct{}, len(po.Items))

	for _, poItem := range po.Items {
		line := poItem.LineNumber
		poLines[line] = struct{}{}
		poQty := poItem.Quantity
		poPrice := poItem.UnitPrice

		grQty := received[line]
		qtyVariance := grQty.Sub(poQty)
		qtyPct := variancePct(qtyVariance, poQty)

		if qtyVariance.IsNegative() && qtyPct.GreaterThan(qtyTolPct) {
			quantityMatched = false
			variances = append(variances, models.MatchVariance{
				LineNumber:   line,
				VarianceType: models.VarianceTypeQuantityPoGr,
				Expected:     poQty,
				Actual:       grQty,
				Variance:     qtyVariance,
				VariancePct:  qtyPct,
				Description:  fmt.Sprintf("Under-delivery: received %s vs ordered %s", grQty, poQty),
			})
		}
		if qtyVariance.IsPositive() && (!cfg.AllowOverDelivery || qtyPct.GreaterThan(overTolPct)) {
			quantityMatched = false
			variances = append(variances, models.MatchVariance{
				LineNumber:   line,
				VarianceType: models.VarianceTypeQuantityPoGr,
				Expected:     poQty,
				Actual:       grQty,
				Variance:     qtyVariance,
				VariancePct:  qtyPct,
				Description:  fmt.Sprintf("Over-delivery: received %s vs ordered %s", grQty, poQty),
			})
		}

		invItem, ok := findInvoiceLine(invoice, line)
		if !ok {
			amountMatched = false
			variances = append(variances, models.MatchVariance{
				LineNumber:   line,
				VarianceType: models.VarianceTypeMissingLine,
				Expected:     poQty,
				Actual:       decimal.Zero,
				Variance:     poQty,
				VariancePct:  hundred,
				Description:  fmt.Sprintf("PO line %d not found on invoice", line),
			})
			continue
		}

		priceVariance := invItem.UnitPrice.Sub(poPrice)
		pricePct := variancePct(priceVariance, poPrice)
		if pricePct.GreaterThan(priceTolPct) && priceVariance.Abs().GreaterThan(cfg.AbsoluteAmountTolerance) {
			priceMatched = false
			variances = append(variances, models.MatchVariance{
				LineNumber:   line,
				VarianceType: models.VarianceTypePricePoInvoice,
				Expected:     poPrice,
				Actual:       invItem.UnitPrice,
				Variance:     priceVariance,
				VariancePct:  pricePct,
				Description:  fmt.Sprintf("Price variance: invoiced %s vs PO price %s", invItem.UnitPrice, poPrice),
			})
		}

		invQty := invItem.InvoicedQuantity
		invGrVariance := invQty.Sub(grQty)
		invGrPct := variancePct(invGrVariance, grQty)
		if invGrPct.GreaterThan(qtyTolPct) && invGrVariance.Abs().GreaterThan(cfg.AbsoluteAmountTolerance) {
			quantityMatched = false
			variances = append(variances, models.MatchVariance{
				LineNumber:   line,
				VarianceType: models.VarianceTypeQuantityGrInvoice,
				Expected:     grQty,
				Actual:       invQty,
				Variance:     invGrVariance,
				VariancePct:  invGrPct,
				Description:  fmt.Sprintf("Invoice qty %s doesn't match GR qty %s", invQty, grQty),
			})
		}
	}

	// Invoice lines pointing at PO lines that do not exist.
	for _, invItem := range invoice.Items {
		if invItem.PoLine == nil {
			continue
		}
		if _, ok := poLines[*invItem.PoLine]; ok {
			continue
		}
		amountMatched = false
		variances = append(variances, models.MatchVariance{
			LineNumber:   invItem.LineNumber,
			VarianceType: models.VarianceTypeExtraLine,
			Expected:     decimal.Zero,
			Actual:       invItem.InvoicedQuantity,
			Variance:     invItem.InvoicedQuantity,
			VariancePct:  hundred,
			Description:  fmt.Sprintf("Invoice line %d references unknown PO line %d", invItem.LineNumber, *invItem.PoLine),
		})
	}

	poTotal := po.NetTotal()
	invoiceTotal := invoice.NetTotal()
	totalVariance := invoiceTotal.Sub(poTotal)
	totalPct := variancePct(totalVariance, poTotal)
	if totalVariance.Abs().GreaterThan(cfg.AbsoluteAmountTolerance) && totalPct.GreaterThan(priceTolPct) {
		amountMatched = false
		variances = append(variances, models.MatchVariance{
			LineNumber:   0,
			VarianceType: models.VarianceTypeTotalAmount,
			Expected:     poTotal,
			Actual:       invoiceTotal,
			Variance:     totalVariance,
			VariancePct:  totalPct,
			Description:  fmt.Sprintf("Total amount variance: invoice %s vs PO %s", invoiceTotal, poTotal),
		})
	}

	result := models.MatchResult{
		QuantityMatched: quantityMatched,
		PriceMatched:    priceMatched,
		AmountMatched:   amountMatched,
		Passed:          quantityMatched && priceMatched && amountMatched,
		Variances:       variances,
		Message:         "Three-way match passed",
	}
	if !result.Passed {
		result.Message = fmt.Sprintf("Three-way match failed with %d variance(s)", len(variances))
		if m.Logger != nil {
			m.Logger.WithFields(logrus.Fields{
				"field":          "ThreeWayMatch",
				"company_code":   po.CompanyCode,
				"purchase_order": po.DocumentId,
				"invoice":        invoice.DocumentId,
				"variances":      len(variances),
			}).Info(result.Message)
		}
	}
	return result
}

func findInvoiceLine(invoice *models.VendorInvoice, poLine int) (models.VendorInvoiceLine, bool) {
	for _, it := range invoice.Items {
		if it.PoLine != nil && *it.PoLine == poLine {
			return it, true
		}
	}
	return models.VendorInvoiceLine{}, false
}

// CheckQuantities is a quantity-only pre-check: every PO line must be received within QuantityTolerance
// in either direction.
func (m *ThreeWayMatcher) CheckQuantities(po *models.PurchaseOrder, grs []*models.GoodsReceipt) bool {
	tolPct := m.Config.QuantityTolerance.Mul(hundred)
	received := receivedByPoLine(grs)
	for _, poItem := range po.Items {
		grQty := received[poItem.LineNumber]
		if variancePct(grQty.Sub(poItem.Quantity), poItem.Quantity).GreaterThan(tolPct) {
			return false
		}
	}
	return true
}
