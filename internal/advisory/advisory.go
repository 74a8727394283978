// Package advisory produces counterfactual context-repair recommendations.
package advisory

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/cropctx/internal/contextstats"
)

// Recommendation is a suggested agronomic adjustment.
type Recommendation struct {
	SoilPHAdjustment             string `json:"Soil_pH_Adjustment" yaml:"soil_ph_adjustment"`
	NutrientAction               string `json:"Nutrient_Action" yaml:"nutrient_action"`
	ClimateAdaptation            string `json:"Climate_Adaptation" yaml:"climate_adaptation"`
	ExecutionTiming              string `json:"Execution_Timing" yaml:"execution_timing"`
	ExpectedStabilizationHorizon string `json:"Expected_Stabilization_Horizon" yaml:"expected_stabilization_horizon"`
	Rationale                    string `json:"Rationale,omitempty" yaml:"rationale,omitempty"`
}

// Fields returns the five adjustment fields as ordered key/value pairs.
func (r Recommendation) Fields() [][2]string {
	return [][2]string{
		{"Soil_pH_Adjustment", r.SoilPHAdjustment},
		{"Nutrient_Action", r.NutrientAction},
		{"Climate_Adaptation", r.ClimateAdaptation},
		{"Execution_Timing", r.ExecutionTiming},
		{"Expected_Stabilization_Horizon", r.ExpectedStabilizationHorizon},
	}
}

// Static returns the fixed repair payload, independent of any statistics.
func Static() Recommendation {
	return Recommendation{
		SoilPHAdjustment:             "+0.3",
		NutrientAction:               "NPK Rebalancing",
		ClimateAdaptation:            "Sowing window shift",
		ExecutionTiming:              "Next crop cycle",
		ExpectedStabilizationHorizon: "2 seasons",
	}
}

// Mode selects how recommendations are produced.
type Mode string

const (
	ModeStatic  Mode = "static"
	ModeDerived Mode = "derived"
)

// ParseMode accepts "static" or "derived" in any case; empty means derived.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeDerived:
		return ModeDerived, nil
	case ModeStatic:
		return ModeStatic, nil
	default:
		return "", fmt.Errorf("invalid advisory mode: %s (use static or derived)", s)
	}
}

// Key addresses one rule: the failure flag and the stability bucket.
type Key struct {
	Failure bool
	Bucket  contextstats.Bucket
}

func (k Key) String() string {
	state := "holding"
	if k.Failure {
		state = "failing"
	}
	return fmt.Sprintf("%s/%s", state, k.Bucket)
}

// Advisor maps statistics to a recommendation. The zero value is not usable;
// construct with New.
type Advisor struct {
	mode       Mode
	thresholds contextstats.Thresholds
	rules      map[Key]Recommendation
}

// New returns an Advisor using the default rule table. rules, when non-nil,
// override individual entries.
func New(mode Mode, thresholds contextstats.Thresholds, rules map[Key]Recommendation) *Advisor {
	table := DefaultRules()
	for k, v := range rules {
		table[k] = v
	}
	return &Advisor{mode: mode, thresholds: thresholds, rules: table}
}

// Mode reports the advisor's mode.
func (a *Advisor) Mode() Mode { return a.mode }

// Recommend returns the recommendation for r. In derived mode the output
// depends only on r.ContextFailure and the stability bucket of r.
func (a *Advisor) Recommend(r contextstats.Result) Recommendation {
	if a.mode == ModeStatic {
		return Static()
	}
	k := Key{Failure: r.ContextFailure, Bucket: r.Bucket(a.thresholds)}
	if rec, ok := a.rules[k]; ok {
		return rec
	}
	return DefaultRules()[k]
}
