package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/cropctx/internal/analysis"
	"github.com/KaramelBytes/cropctx/internal/dataset"
)

func sampleReport(t *testing.T) (*analysis.Report, []float64) {
	t.Helper()
	csv := "Crop_Yield,Soil_pH,Temperature,Humidity,N,P,K\n10,6,20,50,1,1,1\n10,6,20,50,1,1,1\n10,6,20,50,1,1,1\n100,6.2,21,,2,1,1\n"
	ds, err := dataset.ReadCSV(strings.NewReader(csv), "plot.csv", dataset.DefaultOptions())
	require.NoError(t, err)
	rep, err := analysis.Run(ds, analysis.DefaultOptions())
	require.NoError(t, err)
	return rep, ds.YieldSeries()
}

func TestPanelText(t *testing.T) {
	rep, _ := sampleReport(t)

	ind := indicatorsText(rep)
	assert.Contains(t, ind, "Yield Stability Index: 0.032 (volatile)")
	assert.Contains(t, ind, "Context Deviation: 67.50")
	assert.Contains(t, ind, "[YES]")

	snap := snapshotText(rep)
	assert.Contains(t, snap, "Soil_pH: 6.2")
	assert.Contains(t, snap, "Humidity: n/a")

	adv := advisoryText(rep)
	assert.Contains(t, adv, "Soil_pH_Adjustment: +0.3")
	assert.Equal(t, 4, strings.Count(adv, "\n"))
}

func TestSnapshotTextUnrounded(t *testing.T) {
	csv := "Crop_Yield,Soil_pH,Temperature,Humidity,N,P,K\n1,6.1,22,80,12000,45,40\n2,6.4567,23.456,81.234,12345,45.678,41\n"
	ds, err := dataset.ReadCSV(strings.NewReader(csv), "plot.csv", dataset.DefaultOptions())
	require.NoError(t, err)
	rep, err := analysis.Run(ds, analysis.DefaultOptions())
	require.NoError(t, err)

	snap := snapshotText(rep)
	assert.Contains(t, snap, "Soil_pH: 6.4567")
	assert.Contains(t, snap, "Temperature: 23.456")
	assert.Contains(t, snap, "Nitrogen (N): 12345")
	assert.NotContains(t, snap, "e+")
}

func TestPlotData(t *testing.T) {
	rep, series := sampleReport(t)
	data := plotData(series, rep)
	require.Len(t, data, 4)
	assert.Equal(t, series, data[0])
	lo, hi := rep.Stats.FailureBand()
	for i := range series {
		assert.Equal(t, rep.Stats.MeanYield, data[1][i])
		assert.Equal(t, hi, data[2][i])
		assert.Equal(t, lo, data[3][i])
	}
	data[0][0] = -1
	assert.Equal(t, 10.0, series[0])
}

func TestViewsUpdate(t *testing.T) {
	rep, series := sampleReport(t)
	v := newViews()
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

	v.update(rep, series, nil, now)
	assert.Contains(t, v.status.Text, "plot.csv")
	assert.Contains(t, v.status.Text, "09:30:00")
	require.Len(t, v.plot.Data, 4)
	before := v.indicators.Text

	v.update(nil, nil, errors.New("dataset vanished"), now)
	assert.Contains(t, v.status.Text, "dataset vanished")
	assert.Equal(t, before, v.indicators.Text)
}
