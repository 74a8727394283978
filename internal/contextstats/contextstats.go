// Package contextstats computes temporal-context statistics over a yield series.
//
// The statistics treat yield purely as a temporal signal: how far the latest
// reading sits from the historical mean, and how much consecutive readings move.
// Nothing here predicts yield.
package contextstats

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

const (
	// MinSamples is the shortest series Compute accepts.
	MinSamples = 2
	// DefaultFailureSigma is the deviation, in population standard deviations,
	// above which the latest reading is flagged as a context failure.
	DefaultFailureSigma = 1.5
	// DefaultPrecision is the number of decimal places kept in StabilityIndex.
	DefaultPrecision = 3
)

// Options tunes the thresholds used by ComputeWithOptions.
type Options struct {
	FailureSigma float64
	Precision    int
}

// DefaultOptions returns the thresholds used by Compute.
func DefaultOptions() Options {
	return Options{FailureSigma: DefaultFailureSigma, Precision: DefaultPrecision}
}

func (o Options) normalized() Options {
	if o.FailureSigma <= 0 || math.IsNaN(o.FailureSigma) || math.IsInf(o.FailureSigma, 0) {
		o.FailureSigma = DefaultFailureSigma
	}
	if o.Precision < 0 {
		o.Precision = DefaultPrecision
	}
	return o
}

// Result holds the derived scalars for one series. It is a plain value:
// callers receive their own copy and nothing retains a reference to it.
type Result struct {
	Samples          int     `json:"samples"`
	MeanYield        float64 `json:"meanYield"`
	StdYield         float64 `json:"stdYield"`
	CurrentYield     float64 `json:"currentYield"`
	ContextDeviation float64 `json:"contextDeviation"`
	ContextFailure   bool    `json:"contextFailure"`
	MeanStepDelta    float64 `json:"meanStepDelta"`
	StabilityIndex   float64 `json:"stabilityIndex"`
	FailureSigma     float64 `json:"failureSigma"`
}

// FailureBand returns the interval of readings that do not trip ContextFailure.
func (r Result) FailureBand() (lo, hi float64) {
	w := r.FailureSigma * r.StdYield
	return r.MeanYield - w, r.MeanYield + w
}

// Compute derives the context statistics of series using DefaultOptions.
func Compute(series []float64) (Result, error) {
	return ComputeWithOptions(series, DefaultOptions())
}

// ComputeWithOptions derives the context statistics of series.
// A series with fewer than MinSamples readings yields an *InsufficientDataError
// and a zero Result.
func ComputeWithOptions(series []float64, opt Options) (Result, error) {
	if len(series) < MinSamples {
		return Result{}, &InsufficientDataError{Got: len(series), Need: MinSamples}
	}
	opt = opt.normalized()

	mean, err := stats.Mean(series)
	if err != nil {
		return Result{}, fmt.Errorf("mean yield: %w", err)
	}
	// population standard deviation (divide by n)
	std, err := stats.StandardDeviationPopulation(series)
	if err != nil {
		return Result{}, fmt.Errorf("std yield: %w", err)
	}
	current := series[len(series)-1]
	deviation := math.Abs(current - mean)

	meanDelta, err := stats.Mean(stepDeltas(series))
	if err != nil {
		return Result{}, fmt.Errorf("step deltas: %w", err)
	}

	return Result{
		Samples:          len(series),
		MeanYield:        mean,
		StdYield:         std,
		CurrentYield:     current,
		ContextDeviation: deviation,
		ContextFailure:   deviation > opt.FailureSigma*std,
		MeanStepDelta:    meanDelta,
		StabilityIndex:   round(1/(1+meanDelta), opt.Precision),
		FailureSigma:     opt.FailureSigma,
	}, nil
}

// stepDeltas returns |s[i]-s[i-1]| for every consecutive pair.
func stepDeltas(series []float64) []float64 {
	out := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		out = append(out, math.Abs(series[i]-series[i-1]))
	}
	return out
}

// round rounds half to even at the given number of decimal places.
func round(x float64, places int) float64 {
	p := math.Pow10(places)
	return math.RoundToEven(x*p) / p
}
