package pricing

import (
	"fmt"

	"wms/internal/model"

	"github.com/shopspring/decimal"
)

// NoRateError is returned when no active rule matches a
// (serviceType, uom, qty) lookup. Callers that tolerate unpriced events
// check for it with errors.As and degrade instead of failing.
type NoRateError struct {
	ServiceType string
	UOM         string
	Qty         decimal.Decimal
}

func (e *NoRateError) Error() string {
	return fmt.Sprintf("no applicable rate for service_type=%s uom=%s qty=%s", e.ServiceType, e.UOM, e.Qty.String())
}

// Breakdown explains how a price was computed
type Breakdown struct {
	Quantity      decimal.Decimal `json:"quantity"`
	UOM           string          `json:"uom"`
	UnitRate      decimal.Decimal `json:"unit_rate"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	MinFeeApplied bool            `json:"min_fee_applied"`
}

// Result is the outcome of a successful price calculation
type Result struct {
	BasePrice   decimal.Decimal    `json:"base_price"`
	MinFee      decimal.Decimal    `json:"min_fee"`
	FinalPrice  decimal.Decimal    `json:"final_price"`
	AppliedRule model.RateCardRule `json:"applied_rule"`
	Breakdown   Breakdown          `json:"breakdown"`
}

// Calculate resolves the applicable tier for (serviceType, qty, uom)
// against the card's rules and computes the charge.
//
// Resolution walks the rules in stored order and takes the first active
// rule whose service type and uom match and whose [tier_from, tier_to]
// bounds contain qty (tier_to nil = unbounded). First match wins: when
// tiers overlap, the earlier rule is applied. Rule authors are expected
// to keep tiers disjoint; ValidateRules flags violations.
//
// final = max(qty * price, min_fee). Pure function, no I/O.
func Calculate(rules []model.RateCardRule, serviceType string, qty decimal.Decimal, uom string) (Result, error) {
	for _, rule := range rules {
		if !rule.IsActive || rule.ServiceType != serviceType || rule.UOM != uom {
			continue
		}

		if qty.LessThan(rule.TierFrom) {
			continue
		}
		if rule.TierTo != nil && qty.GreaterThan(*rule.TierTo) {
			continue
		}

		base := qty.Mul(rule.Price)
		minFee := decimal.Zero
		if rule.MinFee != nil {
			minFee = *rule.MinFee
		}
		final := base
		if minFee.GreaterThan(base) {
			final = minFee
		}

		return Result{
			BasePrice:   base,
			MinFee:      minFee,
			FinalPrice:  final,
			AppliedRule: rule,
			Breakdown: Breakdown{
				Quantity:      qty,
				UOM:           uom,
				UnitRate:      rule.Price,
				Subtotal:      base,
				MinFeeApplied: final.GreaterThan(base),
			},
		}, nil
	}

	// Same error whether the candidate set was empty or no tier
	// contained qty
	return Result{}, &NoRateError{ServiceType: serviceType, UOM: uom, Qty: qty}
}

// StorageCharge prices storage as volume (m3) held over a number of days
func StorageCharge(rules []model.RateCardRule, volumeM3 decimal.Decimal, days int64) (Result, error) {
	qty := volumeM3.Mul(decimal.NewFromInt(days))
	return Calculate(rules, model.ServiceTypeStorage, qty, "m3")
}

// HandlingCharge prices a handling operation (receipt, picking, packing)
// by weight
func HandlingCharge(rules []model.RateCardRule, serviceType string, weightKg decimal.Decimal) (Result, error) {
	return Calculate(rules, serviceType, weightKg, "kg")
}

// DeliveryCharge prices a delivery by distance, falling back to weight
// when the card has no distance tier. The first failure is swallowed;
// only a failure on both attempts is surfaced.
func DeliveryCharge(rules []model.RateCardRule, distanceKm, weightKg decimal.Decimal) (Result, error) {
	if res, err := Calculate(rules, model.ServiceTypeDelivery, distanceKm, "km"); err == nil {
		return res, nil
	}
	return Calculate(rules, model.ServiceTypeDelivery, weightKg, "kg")
}

// ServiceTypes returns the deduplicated service types across the rules.
// Order follows first appearance.
func ServiceTypes(rules []model.RateCardRule) []string {
	seen := make(map[string]bool, len(rules))
	out := make([]string, 0, len(rules))
	for _, rule := range rules {
		if !seen[rule.ServiceType] {
			seen[rule.ServiceType] = true
			out = append(out, rule.ServiceType)
		}
	}
	return out
}

// UnitsOfMeasure returns the deduplicated units of measure appearing in
// rules of the given service type
func UnitsOfMeasure(rules []model.RateCardRule, serviceType string) []string {
	seen := make(map[string]bool, len(rules))
	out := make([]string, 0, len(rules))
	for _, rule := range rules {
		if rule.ServiceType != serviceType {
			continue
		}
		if !seen[rule.UOM] {
			seen[rule.UOM] = true
			out = append(out, rule.UOM)
		}
	}
	return out
}
