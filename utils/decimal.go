package utils

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount accepts user-formatted amounts such as "20,000", "USD 1,234.50" or "-20,000".
// Only digits, '.' and a leading '-' survive.
func ParseAmount(i interface{}) (decimal.Decimal, error) {
	switch v := i.(type) {
	case string:
		s := strings.TrimSpace(v)
		neg := false
		if idx := strings.IndexAny(s, "-0123456789."); idx >= 0 && s[idx] == '-' {
			neg = true
			s = s[idx+1:]
		}
		var b strings.Builder
		b.Grow(len(s) + 1)
		for _, r := range s {
			if (r >= '0' && r <= '9') || r == '.' {
				b.WriteRune(r)
			}
		}
		clean := b.String()
		if clean == "" {
			return decimal.Zero, ErrInvalidAmount
		}
		if neg {
			clean = "-" + clean
		}
		return decimal.NewFromString(clean)
	case json.Number:
		return decimal.NewFromString(v.String())
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case decimal.Decimal:
		return v, nil
	default:
		return decimal.Zero, ErrInvalidAmount
	}
}

// RoundMoney rounds half away from zero to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
