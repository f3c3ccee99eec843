package models

import "github.com/shopspring/decimal"

// ToleranceConfig percentages are fractions (0.05 = 5%).
type ToleranceConfig struct {
	PriceTolerance          decimal.Decimal `json:"price_tolerance"`
	QuantityTolerance       decimal.Decimal `json:"quantity_tolerance"`
	AbsoluteAmountTolerance decimal.Decimal `json:"absolute_amount_tolerance"`
	AllowOverDelivery       bool            `json:"allow_over_delivery"`
	MaxOverDeliveryPct      decimal.Decimal `json:"max_over_delivery_pct"`
}

func DefaultToleranceConfig() ToleranceConfig {
	return ToleranceConfig{
		PriceTolerance:          decimal.New(5, -2),
		QuantityTolerance:       decimal.New(2, -2),
		AbsoluteAmountTolerance: decimal.New(1, -2),
		AllowOverDelivery:       true,
		MaxOverDeliveryPct:      decimal.New(10, -2),
	}
}

type MatchVariance struct {
	LineNumber   int             `json:"line_number"`
	VarianceType VarianceType    `json:"variance_type"`
	Expected     decimal.Decimal `json:"expected"`
	Actual       decimal.Decimal `json:"actual"`
	Variance     decimal.Decimal `json:"variance"`
	VariancePct  decimal.Decimal `json:"variance_pct"`
	Description  string          `json:"description"`
}

type MatchResult struct {
	Passed          bool            `json:"passed"`
	QuantityMatched bool            `json:"quantity_matched"`
	PriceMatched    bool            `json:"price_matched"`
	AmountMatched   bool            `json:"amount_matched"`
	Variances       []MatchVariance `json:"variances"`
	Message         string          `json:"message"`
}

// VariancesOfType filters in original order.
func (r MatchResult) VariancesOfType(t VarianceType) []MatchVariance {
	var out []MatchVariance
	for _, v := range r.Variances {
		if v.VarianceType == t {
			out = append(out, v)
		}
	}
	return out
}
