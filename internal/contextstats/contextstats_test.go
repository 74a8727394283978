package contextstats

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_ReferenceSeries(t *testing.T) {
	tests := []struct {
		name      string
		series    []float64
		mean      float64
		std       float64
		current   float64
		deviation float64
		failure   bool
		stability float64
	}{
		{
			name:   "constant",
			series: []float64{5, 5, 5, 5},
			mean:   5, std: 0, current: 5, deviation: 0, failure: false, stability: 1.0,
		},
		{
			name:   "linear ramp",
			series: []float64{1, 2, 3, 4, 5},
			mean:   3, std: math.Sqrt2, current: 5, deviation: 2, failure: false, stability: 0.5,
		},
		{
			name:   "late spike",
			series: []float64{10, 10, 10, 100},
			mean:   32.5, std: math.Sqrt(1518.75), current: 100, deviation: 67.5, failure: true, stability: 0.032,
		},
		{
			name:   "two readings",
			series: []float64{4, 6},
			mean:   5, std: 1, current: 6, deviation: 1, failure: false, stability: 0.333,
		},
		{
			name:   "negative yields allowed",
			series: []float64{-2, -4, -6},
			mean:   -4, std: math.Sqrt(8.0 / 3.0), current: -6, deviation: 2, failure: false, stability: 0.333,
		},
		{
			name:   "stability tie rounds to even",
			series: []float64{0, 15},
			mean:   7.5, std: 7.5, current: 15, deviation: 7.5, failure: false, stability: 0.062,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Compute(tt.series)
			require.NoError(t, err)
			assert.Equal(t, len(tt.series), r.Samples)
			assert.InDelta(t, tt.mean, r.MeanYield, 1e-12)
			assert.InDelta(t, tt.std, r.StdYield, 1e-9)
			assert.Equal(t, tt.current, r.CurrentYield)
			assert.InDelta(t, tt.deviation, r.ContextDeviation, 1e-12)
			assert.Equal(t, tt.failure, r.ContextFailure)
			assert.Equal(t, tt.stability, r.StabilityIndex)
			assert.Equal(t, DefaultFailureSigma, r.FailureSigma)
		})
	}
}

func TestCompute_StabilityTiesRoundHalfToEven(t *testing.T) {
	tests := []struct {
		series []float64
		want   float64
	}{
		// mean step delta 15 gives 1/16 = 0.0625
		{[]float64{0, 15}, 0.062},
		{[]float64{0, 15, 0}, 0.062},
		{[]float64{10, 25}, 0.062},
		{[]float64{0, 7, 14}, 0.125},
		{[]float64{1, 2, 3, 4, 5}, 0.5},
	}
	for _, tt := range tests {
		r, err := Compute(tt.series)
		require.NoError(t, err)
		assert.Equal(t, tt.want, r.StabilityIndex, "series %v", tt.series)
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.062, round(0.0625, 3))
	assert.Equal(t, 0.188, round(0.1875, 3))
	assert.Equal(t, 0.5, round(0.5, 3))
	assert.Equal(t, 2.0, round(2.5, 0))
	assert.Equal(t, 4.0, round(3.5, 0))
	assert.Equal(t, 0.333, round(1.0/3.0, 3))
}

func TestCompute_LinearRampStepDelta(t *testing.T) {
	r, err := Compute([]float64{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.MeanStepDelta)
	// 2 is below 1.5*sqrt(2) ~ 2.121
	lo, hi := r.FailureBand()
	assert.InDelta(t, 3-1.5*math.Sqrt2, lo, 1e-12)
	assert.InDelta(t, 3+1.5*math.Sqrt2, hi, 1e-12)
}

func TestCompute_InsufficientData(t *testing.T) {
	for _, series := range [][]float64{nil, {}, {42}} {
		r, err := Compute(series)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInsufficientData))
		var ide *InsufficientDataError
		require.True(t, errors.As(err, &ide))
		assert.Equal(t, len(series), ide.Got)
		assert.Equal(t, MinSamples, ide.Need)
		assert.Equal(t, Result{}, r, "no partial result on error")
	}
}

func TestCompute_ConstantSeriesNeverFails(t *testing.T) {
	for _, v := range []float64{0, 0.1, -3.7, 1e9, 123.456} {
		series := []float64{v, v, v, v, v, v, v}
		r, err := Compute(series)
		require.NoError(t, err)
		assert.False(t, r.ContextFailure, "value %v", v)
		assert.Equal(t, 1.0, r.StabilityIndex)
	}
}

func TestCompute_StabilityBoundsAndMonotonic(t *testing.T) {
	base := []float64{3, 4.5, 2, 6, 5.5, 7}
	prev := 2.0
	for k := 1.0; k <= 8; k *= 2 {
		scaled := make([]float64, len(base))
		for i, v := range base {
			scaled[i] = v * k
		}
		r, err := Compute(scaled)
		require.NoError(t, err)
		assert.Greater(t, r.StabilityIndex, 0.0)
		assert.LessOrEqual(t, r.StabilityIndex, 1.0)
		assert.Less(t, r.StabilityIndex, prev, "doubling deltas must lower stability (k=%v)", k)
		prev = r.StabilityIndex
	}
}

func TestCompute_Deterministic(t *testing.T) {
	series := []float64{12.1, 13.4, 11.9, 14.2, 10.3, 15.8, 9.9}
	first, err := Compute(series)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]Result, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := Compute(series)
			if err == nil {
				results[i] = r
			}
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, math.Float64bits(first.MeanYield), math.Float64bits(r.MeanYield))
		assert.Equal(t, math.Float64bits(first.StdYield), math.Float64bits(r.StdYield))
		assert.Equal(t, first, r)
	}
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	series := []float64{3, 1, 2}
	_, err := Compute(series)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 2}, series)
}

func TestComputeWithOptions(t *testing.T) {
	series := []float64{1, 2, 3, 4, 5}

	r, err := ComputeWithOptions(series, Options{FailureSigma: 1.0, Precision: 1})
	require.NoError(t, err)
	assert.True(t, r.ContextFailure, "2 > 1.0*1.414")
	assert.Equal(t, 0.5, r.StabilityIndex)

	r, err = ComputeWithOptions([]float64{0, 1, 3}, Options{FailureSigma: -1, Precision: -2})
	require.NoError(t, err)
	assert.Equal(t, DefaultFailureSigma, r.FailureSigma)
	assert.Equal(t, 0.4, r.StabilityIndex) // 1/(1+1.5)
}

func TestThresholds(t *testing.T) {
	th := DefaultThresholds()
	require.NoError(t, th.Validate())
	assert.Equal(t, BucketStable, th.Classify(1.0))
	assert.Equal(t, BucketStable, th.Classify(0.5))
	assert.Equal(t, BucketModerate, th.Classify(0.2))
	assert.Equal(t, BucketVolatile, th.Classify(0.032))

	r, err := Compute([]float64{10, 10, 10, 100})
	require.NoError(t, err)
	assert.Equal(t, BucketVolatile, r.Bucket(th))

	assert.Error(t, Thresholds{Stable: 0.2, Moderate: 0.5}.Validate())
	assert.Error(t, Thresholds{Stable: 1.5, Moderate: 0.5}.Validate())
	assert.Error(t, Thresholds{Stable: 0.5, Moderate: 0}.Validate())
}

func TestParseBucket(t *testing.T) {
	b, err := ParseBucket(" Moderate ")
	require.NoError(t, err)
	assert.Equal(t, BucketModerate, b)

	_, err = ParseBucket("chaotic")
	assert.Error(t, err)
}
