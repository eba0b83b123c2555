package service

import (
	"strings"
	"testing"

	"matchengine/internal/model"
)

func ptr[T any](v T) *T { return &v }

func telAvivCriteria() model.Criteria {
	return model.Criteria{
		BudgetMin:        ptr(1_000_000.0),
		BudgetMax:        ptr(1_500_000.0),
		MinRooms:         ptr(3.0),
		TargetCities:     model.StringSet{"Tel Aviv"},
		RequiredFeatures: model.FeatureSet{model.FeatureElevator},
	}
}

func TestEvaluate(t *testing.T) {
	base := model.Property{
		ID:          "p",
		City:        "Tel Aviv",
		Price:       ptr(1_400_000.0),
		Rooms:       ptr(3.0),
		HasElevator: true,
	}

	tests := []struct {
		name       string
		criteria   func(*model.Criteria)
		property   func(*model.Property)
		wantPass   bool
		wantReason string
		wantRule   string
	}{
		{name: "passes", wantPass: true},
		{name: "upper budget edge passes", property: func(p *model.Property) { p.Price = ptr(1_800_000.0) }, wantPass: true},
		{name: "above budget", property: func(p *model.Property) { p.Price = ptr(1_800_001.0) }, wantReason: ReasonAboveBudget, wantRule: RuleBudget},
		{name: "lower budget edge passes", property: func(p *model.Property) { p.Price = ptr(800_000.0) }, wantPass: true},
		{name: "below budget", property: func(p *model.Property) { p.Price = ptr(799_999.0) }, wantReason: ReasonBelowBudget, wantRule: RuleBudget},
		{name: "price unknown", property: func(p *model.Property) { p.Price = nil }, wantReason: ReasonPriceUnknown, wantRule: RuleBudget},
		{name: "price unknown with max only", criteria: func(c *model.Criteria) { c.BudgetMin = nil }, property: func(p *model.Property) { p.Price = nil }, wantReason: ReasonPriceUnknown, wantRule: RuleBudget},
		{name: "no budget ignores price", criteria: func(c *model.Criteria) { c.BudgetMin, c.BudgetMax = nil, nil }, property: func(p *model.Property) { p.Price = nil }, wantPass: true},
		{name: "too few rooms", property: func(p *model.Property) { p.Rooms = ptr(2.5) }, wantReason: ReasonTooFewRooms, wantRule: RuleRooms},
		{name: "rooms unknown", property: func(p *model.Property) { p.Rooms = nil }, wantReason: ReasonRoomsUnknown, wantRule: RuleRooms},
		{name: "city not targeted", property: func(p *model.Property) { p.City = "Haifa" }, wantReason: ReasonCityNotTargeted, wantRule: RuleCity},
		{name: "city compare folds case", property: func(p *model.Property) { p.City = "  tel   AVIV " }, wantPass: true},
		{name: "no elevator", property: func(p *model.Property) { p.HasElevator = false }, wantReason: "no elevator", wantRule: RuleFeatures},
		{
			name:       "zero parking is no parking",
			criteria:   func(c *model.Criteria) { c.RequiredFeatures = model.FeatureSet{model.FeatureParking} },
			property:   func(p *model.Property) { p.ParkingSpots = ptr(0) },
			wantReason: "no parking",
			wantRule:   RuleFeatures,
		},
		{
			name:     "parking spot counts",
			criteria: func(c *model.Criteria) { c.RequiredFeatures = model.FeatureSet{model.FeatureParking} },
			property: func(p *model.Property) { p.ParkingSpots = ptr(1) },
			wantPass: true,
		},
		{name: "floor unknown with min", criteria: func(c *model.Criteria) { c.FloorMin = ptr(2) }, wantReason: ReasonFloorUnknown, wantRule: RuleFloor},
		{name: "floor too low", criteria: func(c *model.Criteria) { c.FloorMin = ptr(2) }, property: func(p *model.Property) { p.Floor = ptr(1) }, wantReason: ReasonFloorTooLow, wantRule: RuleFloor},
		{name: "floor unknown with max passes", criteria: func(c *model.Criteria) { c.FloorMax = ptr(5) }, wantPass: true},
		{name: "floor too high", criteria: func(c *model.Criteria) { c.FloorMax = ptr(5) }, property: func(p *model.Property) { p.Floor = ptr(6) }, wantReason: ReasonFloorTooHigh, wantRule: RuleFloor},
		{
			name:       "neighborhood not targeted",
			criteria:   func(c *model.Criteria) { c.TargetNeighborhoods = model.StringSet{"Florentin"} },
			property:   func(p *model.Property) { p.Neighborhood = ptr("Neve Tzedek") },
			wantReason: ReasonNeighborhoodNotHit,
			wantRule:   RuleNeighborhood,
		},
		{
			name:       "null neighborhood with targets fails",
			criteria:   func(c *model.Criteria) { c.TargetNeighborhoods = model.StringSet{"Florentin"} },
			wantReason: ReasonNeighborhoodNotHit,
			wantRule:   RuleNeighborhood,
		},
		{
			name:     "neighborhood targeted",
			criteria: func(c *model.Criteria) { c.TargetNeighborhoods = model.StringSet{"florentin"} },
			property: func(p *model.Property) { p.Neighborhood = ptr("Florentin") },
			wantPass: true,
		},
		{
			name:       "first failure wins",
			property:   func(p *model.Property) { p.Price = ptr(5_000_000.0); p.City = "Haifa"; p.HasElevator = false },
			wantReason: ReasonAboveBudget,
			wantRule:   RuleBudget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := telAvivCriteria()
			if tt.criteria != nil {
				tt.criteria(&c)
			}
			p := base
			if tt.property != nil {
				tt.property(&p)
			}

			got := Evaluate(&c, &p)
			if got.Pass != tt.wantPass {
				t.Fatalf("Pass = %v, want %v (reason %q)", got.Pass, tt.wantPass, got.Reason)
			}
			if tt.wantPass {
				if got.Reason != "" || got.Rule != "" {
					t.Fatalf("passing verdict carries reason %q rule %q", got.Reason, got.Rule)
				}
				return
			}
			if got.Reason != tt.wantReason && !strings.HasPrefix(got.Reason, tt.wantReason+": ") {
				t.Fatalf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
			if got.Rule != tt.wantRule {
				t.Fatalf("Rule = %q, want %q", got.Rule, tt.wantRule)
			}
		})
	}
}

func TestEvaluateWildcardNeighborhood(t *testing.T) {
	c := model.Criteria{TargetCities: model.StringSet{"X"}}
	for _, n := range []*string{nil, ptr(""), ptr("North"), ptr("South")} {
		p := model.Property{City: "X", Neighborhood: n}
		if got := Evaluate(&c, &p); !got.Pass {
			t.Fatalf("neighborhood %v failed with %q", n, got.Reason)
		}
	}
}

func TestEvaluateEmptyCriteriaPassesEverything(t *testing.T) {
	c := model.Criteria{}
	p := model.Property{City: "Anywhere"}
	if got := Evaluate(&c, &p); !got.Pass {
		t.Fatalf("unexpected failure %q", got.Reason)
	}
}

func TestPartition(t *testing.T) {
	c := telAvivCriteria()
	props := []model.Property{
		{ID: "a", City: "Tel Aviv", Price: ptr(1_400_000.0), Rooms: ptr(3.0), HasElevator: true},
		{ID: "b", City: "Tel Aviv", Price: ptr(1_400_000.0), Rooms: ptr(3.0)},
		{ID: "c", City: "Haifa", Price: ptr(1_400_000.0), Rooms: ptr(3.0), HasElevator: true},
	}

	res := NewHardFilter(nil).Partition(&c, props)

	if len(res.Passed) != 1 || res.Passed[0].ID != "a" {
		t.Fatalf("unexpected passed set: %+v", res.Passed)
	}
	if len(res.Excluded) != 2 {
		t.Fatalf("expected 2 exclusions, got %d", len(res.Excluded))
	}
	if res.Excluded[0].PropertyID != "b" || res.Excluded[0].Reason != "no elevator" {
		t.Fatalf("unexpected exclusion: %+v", res.Excluded[0])
	}
	for _, ex := range res.Excluded {
		if ex.Reason == "" {
			t.Fatalf("exclusion %s has empty reason", ex.PropertyID)
		}
	}
	if res.FailuresByRule[RuleFeatures] != 1 || res.FailuresByRule[RuleCity] != 1 {
		t.Fatalf("unexpected rule counts: %v", res.FailuresByRule)
	}
}
