package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/cropctx/internal/analysis"
	"github.com/KaramelBytes/cropctx/internal/dataset"
)

const cropCSV = `Crop_Yield,Soil_pH,Temperature,Humidity,N,P,K
10,6.5,20,60,80,40,35
10,6.4,21,61,81,41,36
10,6.6,22,59,79,39,34
100,6.7,23,58,82,42,37
`

func newTestServer(t *testing.T, content string) (*Server, *[]*analysis.Report) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crop_yield_dataset.csv")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	var mu sync.Mutex
	var seen []*analysis.Report
	s, err := New(Config{
		DataPath: path,
		Dataset:  dataset.DefaultOptions(),
		Analysis: analysis.DefaultOptions(),
		OnReport: func(_ context.Context, rep *analysis.Report) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, rep)
		},
	}, nil)
	require.NoError(t, err)
	return s, &seen
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, cropCSV)
	rec := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestAnalysisEndpoint(t *testing.T) {
	s, seen := newTestServer(t, cropCSV)
	rec := get(t, s, "/api/analysis")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		ID    string `json:"id"`
		Stats struct {
			ContextFailure   bool    `json:"contextFailure"`
			ContextDeviation float64 `json:"contextDeviation"`
			StabilityIndex   float64 `json:"stabilityIndex"`
		} `json:"stats"`
		Snapshot map[string]float64 `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.ID)
	assert.True(t, body.Stats.ContextFailure)
	assert.InDelta(t, 67.5, body.Stats.ContextDeviation, 1e-9)
	assert.Equal(t, 0.032, body.Stats.StabilityIndex)
	assert.Equal(t, 6.7, body.Snapshot["Soil_pH"])
	assert.Equal(t, 82.0, body.Snapshot["Nitrogen (N)"])
	require.Len(t, *seen, 1)
	assert.Equal(t, body.ID, (*seen)[0].ID)
}

func TestAdvisoryEndpoint(t *testing.T) {
	s, seen := newTestServer(t, cropCSV)
	rec := get(t, s, "/api/advisory")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "derived", body["mode"])
	assert.Equal(t, "volatile", body["bucket"])
	assert.Equal(t, true, body["contextFailure"])
	recm, ok := body["recommendation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "+0.3", recm["Soil_pH_Adjustment"])
	assert.Equal(t, "2 seasons", recm["Expected_Stabilization_Horizon"])
	assert.Empty(t, *seen)
}

func TestChartEndpoint(t *testing.T) {
	s, _ := newTestServer(t, cropCSV)
	rec := get(t, s, "/chart.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	_, err := png.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	assert.NoError(t, err)
}

func TestIndex(t *testing.T) {
	s, _ := newTestServer(t, cropCSV)
	rec := get(t, s, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	html := rec.Body.String()
	assert.Contains(t, html, "does NOT perform crop yield prediction")
	assert.Contains(t, html, "<h2")
	assert.Contains(t, html, "CONTEXT STABILITY INDICATORS")
	assert.Contains(t, html, `src="chart.png"`)
	assert.Contains(t, html, "0.032")
	assert.Contains(t, html, "YES")
}

func TestErrorStatuses(t *testing.T) {
	tests := []struct {
		name    string
		content string
		target  string
		status  int
		msg     string
	}{
		{"missing file", "", "/api/analysis", http.StatusNotFound, "no such file"},
		{"missing columns", "Crop_Yield,Soil_pH\n1,2\n2,3\n", "/api/analysis", http.StatusUnprocessableEntity, "Temperature"},
		{"insufficient data", "Crop_Yield,Soil_pH,Temperature,Humidity,N,P,K\n1,6,20,50,1,1,1\n", "/api/advisory", http.StatusUnprocessableEntity, "insufficient"},
		{"chart insufficient", "Crop_Yield,Soil_pH,Temperature,Humidity,N,P,K\n1,6,20,50,1,1,1\n", "/chart.png", http.StatusUnprocessableEntity, "insufficient"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, tt.content)
			rec := get(t, s, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body.Status)
			assert.Contains(t, strings.ToLower(body.Error), strings.ToLower(tt.msg))
		})
	}
}

func TestIndexError(t *testing.T) {
	s, _ := newTestServer(t, "")
	rec := get(t, s, "/")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `class="error"`)
}

func TestRenderHTML(t *testing.T) {
	out := string(renderHTML("[NOTES]\n- <script>x</script> kept as text\n"))
	assert.Contains(t, out, "<h2")
	assert.Contains(t, out, "NOTES")
	assert.NotContains(t, out, "<script>")
}
