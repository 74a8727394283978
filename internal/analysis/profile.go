package analysis

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/KaramelBytes/cropctx/internal/dataset"
)

// DefaultOutlierThreshold is the robust |z| above which a value counts as an outlier.
const DefaultOutlierThreshold = 3.5

// minOutlierSamples is the shortest column that gets outlier detection.
const minOutlierSamples = 8

// ColumnSummary captures statistics for one numeric column.
type ColumnSummary struct {
	Name    string  `json:"name"`
	NonNull int     `json:"nonNull"`
	Missing int     `json:"missing"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"`
	// Outliers (robust Z via MAD); zero threshold means detection did not run.
	OutliersCount    int     `json:"outliers"`
	OutliersMaxAbsZ  float64 `json:"outliersMaxAbsZ,omitempty"`
	OutlierThreshold float64 `json:"outlierThreshold,omitempty"`
}

// profileColumns summarizes every numeric column of ds in header order.
func profileColumns(ds *dataset.Dataset, threshold float64) []ColumnSummary {
	if threshold <= 0 {
		threshold = DefaultOutlierThreshold
	}
	cols := ds.NumericColumns()
	out := make([]ColumnSummary, 0, len(cols))
	for _, name := range cols {
		vals, missing := ds.Column(name)
		out = append(out, profileColumn(name, vals, missing, threshold))
	}
	return out
}

func profileColumn(name string, vals []float64, missing int, threshold float64) ColumnSummary {
	s := ColumnSummary{Name: name, NonNull: len(vals), Missing: missing}
	if len(vals) == 0 {
		return s
	}
	// Welford update; sample std (n-1)
	var n int
	var mean, m2 float64
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range vals {
		n++
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
		delta := x - mean
		mean += delta / float64(n)
		m2 += delta * (x - mean)
	}
	s.Min, s.Max, s.Mean = lo, hi, mean
	if n > 1 {
		s.Std = math.Sqrt(m2 / float64(n-1))
	}
	if len(vals) >= minOutlierSamples {
		s.OutliersCount, s.OutliersMaxAbsZ = robustOutliers(vals, threshold)
		s.OutlierThreshold = threshold
	}
	return s
}

// robustOutliers counts values whose modified z-score 0.6745*(v-median)/MAD
// exceeds threshold. A zero MAD reports no outliers.
func robustOutliers(vals []float64, threshold float64) (count int, maxAbsZ float64) {
	median, err := stats.Median(vals)
	if err != nil {
		return 0, 0
	}
	mad, err := stats.MedianAbsoluteDeviation(vals)
	if err != nil || mad == 0 {
		return 0, 0
	}
	for _, v := range vals {
		az := math.Abs(0.6745 * (v - median) / mad)
		if az > threshold {
			count++
		}
		if az > maxAbsZ {
			maxAbsZ = az
		}
	}
	return count, maxAbsZ
}
