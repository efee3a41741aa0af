package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"goldwatch/internal/storage"
)

// EvaluateRule reports whether the spot price satisfies the alert's rule.
//
// When rule type and direction agree the comparison is strict; when they
// disagree it is inclusive. The inclusive branch is long-standing behaviour
// that existing alert rows depend on, so it is kept as-is.
func EvaluateRule(alert storage.Alert, price decimal.Decimal) (bool, error) {
	switch alert.RuleType {
	case storage.RulePriceAbove:
		if alert.Direction == storage.DirectionAbove {
			return price.GreaterThan(alert.Threshold), nil
		}
		return price.GreaterThanOrEqual(alert.Threshold), nil
	case storage.RulePriceBelow:
		if alert.Direction == storage.DirectionBelow {
			return price.LessThan(alert.Threshold), nil
		}
		return price.LessThanOrEqual(alert.Threshold), nil
	default:
		return false, fmt.Errorf("unknown rule type %q", alert.RuleType)
	}
}
