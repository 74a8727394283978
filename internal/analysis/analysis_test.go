package analysis

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/cropctx/internal/advisory"
	"github.com/KaramelBytes/cropctx/internal/contextstats"
	"github.com/KaramelBytes/cropctx/internal/dataset"
)

var fieldRows = []string{
	"Crop_Yield,Soil_pH,Temperature,Humidity,N,P,K",
	"1,6.0,24,50,10,5,5",
	"2,6.1,23,50,30,5,6",
	"3,6.2,22,50,20,5,7",
	"4,6.3,21,50,50,5,8",
	"5,6.4,20,50,40,5,9",
}

func loadRows(t *testing.T, rows []string) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.ReadCSV(strings.NewReader(strings.Join(rows, "\n")+"\n"), "field.csv", dataset.DefaultOptions())
	require.NoError(t, err)
	return ds
}

func fixedNow() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

func TestRun(t *testing.T) {
	ds := loadRows(t, fieldRows)
	opt := DefaultOptions()
	opt.Now = fixedNow

	rep, err := Run(ds, opt)
	require.NoError(t, err)

	assert.NotEmpty(t, rep.ID)
	assert.Equal(t, "field.csv", rep.Dataset)
	assert.Equal(t, fixedNow(), rep.GeneratedAt)
	assert.Equal(t, 5, rep.Rows)
	assert.Equal(t, 5, rep.Stats.Samples)
	assert.InDelta(t, 3.0, rep.Stats.MeanYield, 1e-12)
	assert.InDelta(t, 2.0, rep.Stats.ContextDeviation, 1e-12)
	assert.False(t, rep.Stats.ContextFailure)
	assert.Equal(t, 0.5, rep.Stats.StabilityIndex)
	assert.Equal(t, contextstats.BucketStable, rep.Bucket)
	assert.Equal(t, advisory.ModeDerived, rep.AdvisoryMode)
	assert.Equal(t, "Maintain current NPK schedule", rep.Advisory.NutrientAction)

	require.Len(t, rep.Snapshot, 6)
	assert.Equal(t, 6.4, rep.Snapshot[0].Value)

	require.NotEmpty(t, rep.Columns)
	assert.Equal(t, dataset.ColCropYield, rep.Columns[0].Name)
	assert.InDelta(t, 1.5811388, rep.Columns[0].Std, 1e-6)
	assert.Zero(t, rep.Columns[0].OutlierThreshold)

	require.Len(t, rep.Drivers, 4)
	last := rep.Drivers[3]
	assert.Equal(t, dataset.ColNitrogen, last.Column)
	assert.InDelta(t, 0.8, last.R, 1e-9)
	for _, d := range rep.Drivers[:3] {
		assert.InDelta(t, 1.0, abs(d.R), 1e-9, d.Column)
	}
	joined := strings.Join(rep.Warnings, "\n")
	assert.Contains(t, joined, "Humidity: correlation undefined")
	assert.Contains(t, joined, "Phosphorus (P): correlation undefined")
}

func TestRun_InsufficientData(t *testing.T) {
	ds := loadRows(t, fieldRows[:2])
	_, err := Run(ds, DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, contextstats.ErrInsufficientData))

	_, err = Run(nil, DefaultOptions())
	assert.Error(t, err)
}

func TestRun_StaticAdvisor(t *testing.T) {
	ds := loadRows(t, fieldRows)
	opt := DefaultOptions()
	opt.Advisor = advisory.New(advisory.ModeStatic, opt.Thresholds, nil)
	opt.Profile = false
	opt.Drivers = false

	rep, err := Run(ds, opt)
	require.NoError(t, err)
	assert.Equal(t, advisory.Static(), rep.Advisory)
	assert.Empty(t, rep.Columns)
	assert.Empty(t, rep.Drivers)

	md := rep.Markdown()
	assert.Contains(t, md, "[COUNTERFACTUAL CONTEXT REPAIR] (static)")
	assert.Contains(t, md, "- Soil_pH_Adjustment: +0.3")
	assert.NotContains(t, md, "[COLUMN PROFILE]")
	assert.NotContains(t, md, "[CONTEXT DRIVERS]")
}

func TestRun_DoesNotShareWarnings(t *testing.T) {
	ds := loadRows(t, append(append([]string(nil), fieldRows...), ",6,20,50,1,1,1"))
	require.Len(t, ds.Warnings, 1)

	_, err := Run(ds, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, ds.Warnings, 1)
}

func TestMarkdown(t *testing.T) {
	ds := loadRows(t, fieldRows)
	rep, err := Run(ds, DefaultOptions())
	require.NoError(t, err)

	md := rep.Markdown()
	for _, section := range []string{
		"[CONTEXT STABILITY INDICATORS]",
		"[CURRENT CONTEXT SNAPSHOT]",
		"[COUNTERFACTUAL CONTEXT REPAIR]",
		"[COLUMN PROFILE]",
		"[CONTEXT DRIVERS]",
		"[NOTES]",
	} {
		assert.Contains(t, md, section)
	}
	assert.True(t, strings.HasPrefix(md, "> "+Disclaimer))
	assert.Contains(t, md, "- Yield Stability Index: 0.500 (stable)")
	assert.Contains(t, md, "- Context Deviation: 2.00")
	assert.Contains(t, md, "- Latent Context Failure: NO")
	assert.Contains(t, md, "- Humidity: 50")
	assert.Contains(t, md, "- Nitrogen (N) ~ Crop_Yield: r=0.800 (n=5)")
	assert.Contains(t, md, Closing)
}

func TestMarkdown_FailureAndMissingReading(t *testing.T) {
	rows := []string{
		"Crop_Yield,Soil_pH,Temperature,Humidity,N,P,K",
		"10,6,20,50,1,1,1",
		"10,6,20,50,1,1,1",
		"10,6,20,50,1,1,1",
		"100,6,20,,1,1,1",
	}
	rep, err := Run(loadRows(t, rows), DefaultOptions())
	require.NoError(t, err)
	assert.True(t, rep.Stats.ContextFailure)
	assert.Equal(t, contextstats.BucketVolatile, rep.Bucket)

	md := rep.Markdown()
	assert.Contains(t, md, "- Latent Context Failure: YES")
	assert.Contains(t, md, "- Context Deviation: 67.50")
	assert.Contains(t, md, "- Humidity: n/a")
	assert.Contains(t, md, "- Nutrient_Action: NPK Rebalancing")
}

func TestMarkdown_SnapshotKeepsAllDigits(t *testing.T) {
	rows := []string{
		"Crop_Yield,Soil_pH,Temperature,Humidity,N,P,K",
		"1,6.1,22,80,12000,45,40",
		"2,6.4567,23.456,81.234,12345,45.678,41",
		",7.9,30,90,99999,50,50",
	}
	opt := DefaultOptions()
	opt.Profile = false
	rep, err := Run(loadRows(t, rows), opt)
	require.NoError(t, err)

	md := rep.Markdown()
	for _, want := range []string{
		"- Soil_pH: 6.4567",
		"- Temperature: 23.456",
		"- Humidity: 81.234",
		"- Nitrogen (N): 12345",
		"- Phosphorus (P): 45.678",
		"- Potassium (K): 41",
	} {
		assert.Contains(t, md, want)
	}
	assert.NotContains(t, md, "e+04")
	// the trailing row has no yield and stays out of the snapshot
	assert.NotContains(t, md, "99999")
}

func TestJSON(t *testing.T) {
	rep, err := Run(loadRows(t, fieldRows), DefaultOptions())
	require.NoError(t, err)

	b, err := rep.JSON()
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, rep.ID, m["id"])
	assert.Equal(t, "stable", m["bucket"])

	snap, ok := m["snapshot"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 50.0, snap["Humidity"])

	adv, ok := m["advisory"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, adv, "Soil_pH_Adjustment")
	assert.Contains(t, adv, "Expected_Stabilization_Horizon")

	st, ok := m["stats"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.5, st["stabilityIndex"])
}

func TestHeadline(t *testing.T) {
	rep, err := Run(loadRows(t, fieldRows), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "stability 0.500 (stable), deviation 2.00, failure NO", rep.Headline())
}

func TestProfileColumn_Outliers(t *testing.T) {
	vals := []float64{10, 10.5, 9.5, 10, 10.2, 9.8, 10.1, 9.9, 50}
	s := profileColumn("Rainfall", vals, 2, DefaultOutlierThreshold)
	assert.Equal(t, 9, s.NonNull)
	assert.Equal(t, 2, s.Missing)
	assert.Equal(t, 9.5, s.Min)
	assert.Equal(t, 50.0, s.Max)
	assert.Equal(t, 1, s.OutliersCount)
	assert.InDelta(t, 0.6745*40/0.2, s.OutliersMaxAbsZ, 1e-6)
	assert.Equal(t, DefaultOutlierThreshold, s.OutlierThreshold)

	flat := profileColumn("P", []float64{5, 5, 5, 5, 5, 5, 5, 5}, 0, DefaultOutlierThreshold)
	assert.Zero(t, flat.OutliersCount)
	assert.Zero(t, flat.Std)

	empty := profileColumn("K", nil, 4, DefaultOutlierThreshold)
	assert.Equal(t, 4, empty.Missing)
	assert.Zero(t, empty.NonNull)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
