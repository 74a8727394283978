package field_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/cropctx/internal/analysis"
	"github.com/KaramelBytes/cropctx/internal/dataset"
	"github.com/KaramelBytes/cropctx/internal/field"
)

const sample = "Crop_Yield,Soil_pH,Temperature,Humidity,N,P,K\n1,6,20,50,1,1,1\n2,6,21,51,1,1,1\n3,6,22,52,1,1,1\n"

func report(t *testing.T, at time.Time) *analysis.Report {
	t.Helper()
	ds, err := dataset.ReadCSV(strings.NewReader(sample), "plot.csv", dataset.DefaultOptions())
	require.NoError(t, err)
	opt := analysis.DefaultOptions()
	opt.Now = func() time.Time { return at }
	rep, err := analysis.Run(ds, opt)
	require.NoError(t, err)
	return rep
}

func TestFieldLifecycle(t *testing.T) {
	tdir := t.TempDir()
	data := filepath.Join(tdir, "plot.csv")
	require.NoError(t, os.WriteFile(data, []byte(sample), 0o644))

	root := filepath.Join(tdir, "fields", "north")
	f := field.New("north", "north plot", root)
	require.NoError(t, f.SetDataset(data))
	require.NoError(t, f.Save())

	loaded, err := field.Load(root)
	require.NoError(t, err)
	assert.Equal(t, "north", loaded.Name)
	assert.Equal(t, data, loaded.Dataset)
	assert.Equal(t, root, loaded.RootDir())
	assert.Nil(t, loaded.Latest())

	first := report(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	second := report(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	_, err = loaded.AttachReport(second, []byte(second.Markdown()), "md")
	require.NoError(t, err)
	ref, err := loaded.AttachReport(first, []byte("{}"), ".json")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref.File, ".json"))
	require.NoError(t, loaded.Save())

	again, err := field.Find(filepath.Join(root, ref.File))
	require.NoError(t, err)
	require.Len(t, again.Reports, 2)
	latest := again.Latest()
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, second.Headline(), latest.Headline)

	b, err := os.ReadFile(filepath.Join(root, latest.File))
	require.NoError(t, err)
	assert.Contains(t, string(b), "[CONTEXT STABILITY INDICATORS]")
}

func TestSetDatasetErrors(t *testing.T) {
	f := field.New("x", "", t.TempDir())
	assert.Error(t, f.SetDataset(filepath.Join(t.TempDir(), "absent.csv")))
	assert.Error(t, f.SetDataset(t.TempDir()))
}

func TestSaveWithoutRoot(t *testing.T) {
	f := field.New("x", "", "")
	assert.Error(t, f.Save())
	_, err := f.AttachReport(&analysis.Report{ID: "abc"}, nil, "md")
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"south", "east"} {
		require.NoError(t, field.New(name, "", filepath.Join(dir, name)).Save())
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scratch"), 0o755))

	fields, err := field.List(dir)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "east", fields[0].Name)
	assert.Equal(t, "south", fields[1].Name)

	none, err := field.List(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.Empty(t, none)
}
