package pricing

import (
	"sort"

	"wms/internal/model"

	"github.com/shopspring/decimal"
)

// TierIssueKind tags a validation finding
const (
	TierIssueOverlap = "overlap"
	TierIssueGap     = "gap"
)

// TierIssue flags a pair of tiers that overlap, or a hole between two
// adjacent tiers, within one (service_type, uom) group. Issues are
// advisory: resolution stays first-match-wins regardless.
type TierIssue struct {
	Kind        string           `json:"kind"` // overlap, gap
	ServiceType string           `json:"service_type"`
	UOM         string           `json:"uom"`
	From        decimal.Decimal  `json:"from"`
	To          *decimal.Decimal `json:"to,omitempty"`
	RuleIDs     []string         `json:"rule_ids"`
}

// ValidateRules checks that, per (service_type, uom) pair, the active
// tiers partition the quantity axis without overlaps or gaps. Violations
// make pricing order-dependent, so they are surfaced to the rate card
// author at write time.
func ValidateRules(rules []model.RateCardRule) []TierIssue {
	type key struct{ serviceType, uom string }
	groups := make(map[key][]model.RateCardRule)
	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		k := key{r.ServiceType, r.UOM}
		groups[k] = append(groups[k], r)
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].serviceType != keys[j].serviceType {
			return keys[i].serviceType < keys[j].serviceType
		}
		return keys[i].uom < keys[j].uom
	})

	var issues []TierIssue
	for _, k := range keys {
		group := groups[k]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].TierFrom.LessThan(group[j].TierFrom)
		})

		for i := 1; i < len(group); i++ {
			prev, cur := group[i-1], group[i]

			// An exact boundary touch (prev.tier_to == cur.tier_from) is
			// the conventional continuation point and is not flagged,
			// even though first-match-wins decides the shared boundary.
			if prev.TierTo == nil || prev.TierTo.GreaterThan(cur.TierFrom) {
				issue := TierIssue{
					Kind:        TierIssueOverlap,
					ServiceType: k.serviceType,
					UOM:         k.uom,
					From:        cur.TierFrom,
					RuleIDs:     []string{prev.ID.String(), cur.ID.String()},
				}
				if prev.TierTo != nil {
					to := *prev.TierTo
					issue.To = &to
				}
				issues = append(issues, issue)
				continue
			}

			if prev.TierTo.LessThan(cur.TierFrom) {
				from := *prev.TierTo
				to := cur.TierFrom
				issues = append(issues, TierIssue{
					Kind:        TierIssueGap,
					ServiceType: k.serviceType,
					UOM:         k.uom,
					From:        from,
					To:          &to,
					RuleIDs:     []string{prev.ID.String(), cur.ID.String()},
				})
			}
		}
	}

	return issues
}
