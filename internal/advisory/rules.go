package advisory

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/cropctx/internal/contextstats"
)

// ErrUnknownBucket is returned when a rule names a bucket that does not exist.
var ErrUnknownBucket = errors.New("unknown stability bucket")

// DefaultRules returns a fresh copy of the built-in rule table, one entry per
// failure flag and bucket.
func DefaultRules() map[Key]Recommendation {
	failingVolatile := Static()
	failingVolatile.Rationale = "latest yield is outside the expected band and the series swings widely between readings"
	return map[Key]Recommendation{
		{Failure: false, Bucket: contextstats.BucketStable}: {
			SoilPHAdjustment:             "0.0",
			NutrientAction:               "Maintain current NPK schedule",
			ClimateAdaptation:            "None",
			ExecutionTiming:              "Routine monitoring",
			ExpectedStabilizationHorizon: "Already stable",
			Rationale:                    "latest yield is within the expected band and readings change little",
		},
		{Failure: false, Bucket: contextstats.BucketModerate}: {
			SoilPHAdjustment:             "0.0",
			NutrientAction:               "Monitor NPK balance",
			ClimateAdaptation:            "Monitor sowing window",
			ExecutionTiming:              "Next crop cycle",
			ExpectedStabilizationHorizon: "1 season",
			Rationale:                    "latest yield is within the expected band but readings drift between seasons",
		},
		{Failure: false, Bucket: contextstats.BucketVolatile}: {
			SoilPHAdjustment:             "+0.1",
			NutrientAction:               "Split NPK application",
			ClimateAdaptation:            "Sowing window review",
			ExecutionTiming:              "Next crop cycle",
			ExpectedStabilizationHorizon: "2 seasons",
			Rationale:                    "latest yield is within the expected band but consecutive readings swing widely",
		},
		{Failure: true, Bucket: contextstats.BucketStable}: {
			SoilPHAdjustment:             "+0.1",
			NutrientAction:               "Targeted NPK correction",
			ClimateAdaptation:            "Irrigation check",
			ExecutionTiming:              "Current crop cycle",
			ExpectedStabilizationHorizon: "1 season",
			Rationale:                    "latest yield left the expected band after an otherwise steady history",
		},
		{Failure: true, Bucket: contextstats.BucketModerate}: {
			SoilPHAdjustment:             "+0.2",
			NutrientAction:               "NPK Rebalancing",
			ClimateAdaptation:            "Sowing window review",
			ExecutionTiming:              "Next crop cycle",
			ExpectedStabilizationHorizon: "2 seasons",
			Rationale:                    "latest yield left the expected band and readings drift between seasons",
		},
		{Failure: true, Bucket: contextstats.BucketVolatile}: failingVolatile,
	}
}

// ruleFile is the on-disk YAML layout:
//
//	rules:
//	  - failure: true
//	    bucket: volatile
//	    soil_ph_adjustment: "+0.3"
//	    nutrient_action: NPK Rebalancing
//	    ...
type ruleFile struct {
	Rules []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	Failure        bool   `yaml:"failure"`
	Bucket         string `yaml:"bucket"`
	Recommendation `yaml:",inline"`
}

// ParseRules decodes a YAML rule document. Entries override defaults only for
// the keys they name.
func ParseRules(r io.Reader) (map[Key]Recommendation, error) {
	var rf ruleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil {
		if errors.Is(err, io.EOF) {
			return map[Key]Recommendation{}, nil
		}
		return nil, fmt.Errorf("decode advisory rules: %w", err)
	}
	out := make(map[Key]Recommendation, len(rf.Rules))
	for i, e := range rf.Rules {
		b, err := contextstats.ParseBucket(e.Bucket)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w: %q", i+1, ErrUnknownBucket, e.Bucket)
		}
		k := Key{Failure: e.Failure, Bucket: b}
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("rule %d: duplicate entry for %s", i+1, k)
		}
		out[k] = e.Recommendation
	}
	return out, nil
}

// LoadRules reads a YAML rule file from disk.
func LoadRules(path string) (map[Key]Recommendation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open advisory rules: %w", err)
	}
	defer f.Close()
	return ParseRules(f)
}

// WriteRules encodes rules in the same layout ParseRules accepts, ordered by
// failure flag then bucket.
func WriteRules(w io.Writer, rules map[Key]Recommendation) error {
	var rf ruleFile
	for _, failure := range []bool{false, true} {
		for _, b := range contextstats.Buckets {
			k := Key{Failure: failure, Bucket: b}
			rec, ok := rules[k]
			if !ok {
				continue
			}
			rf.Rules = append(rf.Rules, ruleEntry{Failure: failure, Bucket: string(b), Recommendation: rec})
		}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rf); err != nil {
		return fmt.Errorf("encode advisory rules: %w", err)
	}
	return enc.Close()
}
