package contextstats

import (
	"fmt"
	"strings"
)

// Bucket is a coarse classification of a stability index.
type Bucket string

const (
	BucketStable   Bucket = "stable"
	BucketModerate Bucket = "moderate"
	BucketVolatile Bucket = "volatile"
)

// Buckets lists every bucket from most to least stable.
var Buckets = []Bucket{BucketStable, BucketModerate, BucketVolatile}

// Thresholds are the lower bounds (inclusive) of the stable and moderate buckets.
type Thresholds struct {
	Stable   float64 `mapstructure:"stable_threshold" yaml:"stable_threshold"`
	Moderate float64 `mapstructure:"moderate_threshold" yaml:"moderate_threshold"`
}

// DefaultThresholds returns stable >= 0.5 and moderate >= 0.2.
func DefaultThresholds() Thresholds {
	return Thresholds{Stable: 0.5, Moderate: 0.2}
}

// Validate reports whether the thresholds describe ordered, non-empty buckets in (0,1].
func (t Thresholds) Validate() error {
	if t.Moderate <= 0 || t.Stable > 1 || t.Moderate >= t.Stable {
		return fmt.Errorf("invalid stability thresholds: need 0 < moderate (%.3f) < stable (%.3f) <= 1", t.Moderate, t.Stable)
	}
	return nil
}

// Classify maps a stability index to its bucket.
func (t Thresholds) Classify(stability float64) Bucket {
	switch {
	case stability >= t.Stable:
		return BucketStable
	case stability >= t.Moderate:
		return BucketModerate
	default:
		return BucketVolatile
	}
}

// Bucket classifies r.StabilityIndex.
func (r Result) Bucket(t Thresholds) Bucket { return t.Classify(r.StabilityIndex) }

// ParseBucket accepts a bucket name in any case.
func ParseBucket(s string) (Bucket, error) {
	b := Bucket(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Buckets {
		if b == known {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown stability bucket %q (use stable, moderate or volatile)", s)
}
