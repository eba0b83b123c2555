package service

import (
	"fmt"

	"go.uber.org/zap"

	"matchengine/internal/model"
	"matchengine/internal/utils"
)

// Hard filter rule names, used as metric labels and in ExcludedCandidate.Rule.
const (
	RuleBudget       = "budget"
	RuleRooms        = "rooms"
	RuleCity         = "city"
	RuleFeatures     = "features"
	RuleFloor        = "floor"
	RuleNeighborhood = "neighborhood"
)

// Exclusion reason prefixes. A detail may follow after ": ".
const (
	ReasonBelowBudget        = "below budget"
	ReasonAboveBudget        = "above budget"
	ReasonPriceUnknown       = "price unknown"
	ReasonTooFewRooms        = "too few rooms"
	ReasonRoomsUnknown       = "rooms unknown"
	ReasonCityNotTargeted    = "city not targeted"
	ReasonFloorTooLow        = "floor too low"
	ReasonFloorUnknown       = "floor unknown"
	ReasonFloorTooHigh       = "floor too high"
	ReasonNeighborhoodNotHit = "neighborhood not targeted"
)

// Verdict is the outcome of evaluating one property. Reason is empty on pass.
type Verdict struct {
	Pass   bool
	Reason string
	Rule   string
}

type check struct {
	rule  string
	apply func(c *model.Criteria, p *model.Property) (reason string, ok bool)
}

// checks run in this order; the first failure wins.
var checks = []check{
	{rule: RuleBudget, apply: checkBudget},
	{rule: RuleRooms, apply: checkRooms},
	{rule: RuleCity, apply: checkCity},
	{rule: RuleFeatures, apply: checkFeatures},
	{rule: RuleFloor, apply: checkFloor},
	{rule: RuleNeighborhood, apply: checkNeighborhood},
}

// Evaluate applies the hard filter rules to one property. It has no side effects.
func Evaluate(c *model.Criteria, p *model.Property) Verdict {
	for _, ch := range checks {
		if reason, ok := ch.apply(c, p); !ok {
			return Verdict{Pass: false, Reason: reason, Rule: ch.rule}
		}
	}
	return Verdict{Pass: true}
}

// Budgets stretch by 20% on both sides: [min*0.8, max*1.2]. The comparison
// is done on integers scaled by 5 so the upper edge is exact.
func checkBudget(c *model.Criteria, p *model.Property) (string, bool) {
	if c.BudgetMin == nil && c.BudgetMax == nil {
		return "", true
	}
	if p.Price == nil {
		return ReasonPriceUnknown, false
	}
	price := *p.Price
	if c.BudgetMin != nil && price*5 < *c.BudgetMin*4 {
		return fmt.Sprintf("%s: %.0f < %.0f", ReasonBelowBudget, price, *c.BudgetMin*4/5), false
	}
	if c.BudgetMax != nil && price*5 > *c.BudgetMax*6 {
		return fmt.Sprintf("%s: %.0f > %.0f", ReasonAboveBudget, price, *c.BudgetMax*6/5), false
	}
	return "", true
}

func checkRooms(c *model.Criteria, p *model.Property) (string, bool) {
	if c.MinRooms == nil {
		return "", true
	}
	if p.Rooms == nil {
		return ReasonRoomsUnknown, false
	}
	if *p.Rooms < *c.MinRooms {
		return fmt.Sprintf("%s: %g < %g", ReasonTooFewRooms, *p.Rooms, *c.MinRooms), false
	}
	return "", true
}

func checkCity(c *model.Criteria, p *model.Property) (string, bool) {
	if len(c.TargetCities) == 0 {
		return "", true
	}
	if !utils.ContainsKey(c.TargetCities, p.City) {
		return fmt.Sprintf("%s: %s", ReasonCityNotTargeted, p.City), false
	}
	return "", true
}

func checkFeatures(c *model.Criteria, p *model.Property) (string, bool) {
	for _, f := range c.RequiredFeatures {
		if !p.HasFeature(f) {
			return "no " + f.Label(), false
		}
	}
	return "", true
}

// A missing floor fails floor_min but passes floor_max.
func checkFloor(c *model.Criteria, p *model.Property) (string, bool) {
	if c.FloorMin != nil {
		if p.Floor == nil {
			return ReasonFloorUnknown, false
		}
		if *p.Floor < *c.FloorMin {
			return fmt.Sprintf("%s: %d < %d", ReasonFloorTooLow, *p.Floor, *c.FloorMin), false
		}
	}
	if c.FloorMax != nil && p.Floor != nil && *p.Floor > *c.FloorMax {
		return fmt.Sprintf("%s: %d > %d", ReasonFloorTooHigh, *p.Floor, *c.FloorMax), false
	}
	return "", true
}

func checkNeighborhood(c *model.Criteria, p *model.Property) (string, bool) {
	// Empty target list is a wildcard, not "nothing allowed".
	if len(c.TargetNeighborhoods) == 0 {
		return "", true
	}
	if p.Neighborhood == nil || *p.Neighborhood == "" {
		return ReasonNeighborhoodNotHit, false
	}
	if !utils.ContainsKey(c.TargetNeighborhoods, *p.Neighborhood) {
		return fmt.Sprintf("%s: %s", ReasonNeighborhoodNotHit, *p.Neighborhood), false
	}
	return "", true
}

// FilterResult splits the inventory into passing properties and exclusions.
type FilterResult struct {
	Passed   []model.Property
	Excluded []model.ExcludedCandidate
	// FailuresByRule counts exclusions per rule name.
	FailuresByRule map[string]int
}

// HardFilter runs Evaluate over a candidate list and logs the split.
type HardFilter struct {
	logger *zap.Logger
}

func NewHardFilter(logger *zap.Logger) *HardFilter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HardFilter{logger: logger}
}

// Partition evaluates every candidate. Already-assigned properties must be
// removed by the caller beforehand.
func (f *HardFilter) Partition(c *model.Criteria, candidates []model.Property) FilterResult {
	result := FilterResult{
		Passed:         make([]model.Property, 0, len(candidates)),
		FailuresByRule: make(map[string]int),
	}
	for i := range candidates {
		verdict := Evaluate(c, &candidates[i])
		if verdict.Pass {
			result.Passed = append(result.Passed, candidates[i])
			continue
		}
		result.Excluded = append(result.Excluded, model.ExcludedCandidate{
			PropertyID: candidates[i].ID,
			Reason:     verdict.Reason,
			Rule:       verdict.Rule,
		})
		result.FailuresByRule[verdict.Rule]++
	}

	f.logger.Info("hard filter",
		zap.Int("initial", len(candidates)),
		zap.Int("dropped", len(result.Excluded)),
		zap.Int("left", len(result.Passed)),
	)
	return result
}
