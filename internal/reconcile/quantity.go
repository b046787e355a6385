package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// QuantityScaleRule rescales quantities the portal reports in a smaller
// unit: anything above Threshold is divided by Divisor.
type QuantityScaleRule struct {
	Threshold decimal.Decimal
	Divisor   decimal.Decimal
}

// NewQuantityScaleRule builds a rule from configuration values.
func NewQuantityScaleRule(threshold, divisor float64) (QuantityScaleRule, error) {
	if divisor == 0 {
		return QuantityScaleRule{}, errors.New("quantity scale divisor must not be zero")
	}
	return QuantityScaleRule{
		Threshold: decimal.NewFromFloat(threshold),
		Divisor:   decimal.NewFromFloat(divisor),
	}, nil
}

// DefaultQuantityScaleRule treats quantities above 100 as thousandths.
func DefaultQuantityScaleRule() QuantityScaleRule {
	return QuantityScaleRule{Threshold: decimal.NewFromInt(100), Divisor: decimal.NewFromInt(1000)}
}

// Apply rescales q once.
func (r QuantityScaleRule) Apply(q decimal.Decimal) decimal.Decimal {
	if q.GreaterThan(r.Threshold) {
		return q.Div(r.Divisor)
	}
	return q
}

// SplitQuantity separates "150 kg" into its amount and upper-cased unit.
// Blank text is a zero quantity without unit.
func SplitQuantity(text string) (decimal.Decimal, string, error) {
	fields := strings.Fields(strings.ToUpper(text))
	if len(fields) == 0 {
		return decimal.Zero, "", nil
	}
	amount, err := ParseAmount(fields[0])
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("invalid quantity %q: %w", text, err)
	}
	unit := ""
	if len(fields) > 1 {
		unit = fields[1]
	}
	return amount, unit, nil
}

// ParseAmount reads a number as the portal prints it, with optional
// thousands separators. Blank is zero.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "-" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
