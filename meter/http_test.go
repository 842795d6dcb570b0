package meter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/ambient/sim"
	"github.com/mklimuk/ambient/store"
)

func seedRecords(t *testing.T, st *store.Store, jobID string) time.Time {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 8, 10, 8, 0, 0, 0, time.UTC)
	for i, lux := range []float64{400, 12000, 15000} {
		_, err := st.Insert(ctx, store.Record{
			JobID: jobID, Lux: lux, FullSpectrum: uint16(1000 * (i + 1)),
			Infrared: uint16(200 * (i + 1)), Visible: uint16(800 * (i + 1)),
			Gain: "1x", IntegrationMs: 100,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
	return base
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, string(body)
}

func post(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(url, "", nil)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, string(body)
}

func TestRoutes_Status(t *testing.T) {
	m, _ := newTestMeter(t, sim.Constant(100, 700))
	srv := httptest.NewServer(m.Routes())
	defer srv.Close()

	resp, body := get(t, srv.URL+"/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var status Status
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	assert.False(t, status.Recording)
	assert.Equal(t, "1x", status.Gain)
	assert.Equal(t, "100ms", status.IntegrationTime)
}

func TestRoutes_Current(t *testing.T) {
	// 600 visible counts over 100ms at 1x are 6000 lux.
	m, _ := newTestMeter(t, sim.Constant(100, 700))
	srv := httptest.NewServer(m.Routes())
	defer srv.Close()

	resp, body := get(t, srv.URL+"/current")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var conditions Conditions
	require.NoError(t, json.Unmarshal([]byte(body), &conditions))
	assert.Equal(t, 6000.0, conditions.Lux)
	assert.Equal(t, PartialSun, conditions.Condition)
}

func TestRoutes_StartStopLifecycle(t *testing.T) {
	m, _ := newTestMeter(t, sim.Constant(100, 1200))
	srv := httptest.NewServer(m.Routes())
	defer srv.Close()

	resp, _ := post(t, srv.URL+"/start?duration=bogus")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := post(t, srv.URL+"/start?duration=1s")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var started map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &started))
	assert.NotEmpty(t, started["jobID"])

	resp, _ = post(t, srv.URL+"/start")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = post(t, srv.URL+"/stop")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = post(t, srv.URL+"/stop")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRoutes_SummaryNotFound(t *testing.T) {
	m, _ := newTestMeter(t, sim.Constant(100, 700))
	srv := httptest.NewServer(m.Routes())
	defer srv.Close()

	resp, _ := get(t, srv.URL+"/summary")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoutes_Summary(t *testing.T) {
	m, st := newTestMeter(t, sim.Constant(100, 700))
	seedRecords(t, st, "job-1")
	srv := httptest.NewServer(m.Routes())
	defer srv.Close()

	resp, body := get(t, srv.URL+"/summary?job=job-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var summary JobSummary
	require.NoError(t, json.Unmarshal([]byte(body), &summary))
	assert.Equal(t, "job-1", summary.JobID)
	assert.Equal(t, 3, summary.Samples)
	assert.Equal(t, 15000.0, summary.PeakLux)
	assert.InDelta(t, 2.0/3.0, summary.FullSunRatio, 0.001)
	assert.Equal(t, FullSun, summary.Condition)
}

func TestRoutes_Export(t *testing.T) {
	m, st := newTestMeter(t, sim.Constant(100, 700))
	seedRecords(t, st, "job-1")
	srv := httptest.NewServer(m.Routes())
	defer srv.Close()

	resp, body := get(t, srv.URL+"/export")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "id,job_id,created_at,lux,full_spectrum,infrared,visible,gain,integration_ms", lines[0])
	assert.Contains(t, lines[1], "job-1")
	assert.Contains(t, lines[1], "400.0000")

	resp, _ = get(t, srv.URL+"/export?from=yesterday")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRoutes_Graph(t *testing.T) {
	m, st := newTestMeter(t, sim.Constant(100, 700))
	base := seedRecords(t, st, "job-1")
	srv := httptest.NewServer(m.Routes())
	defer srv.Close()

	url := srv.URL + "/graph?from=" + base.Format(time.RFC3339) +
		"&to=" + base.Add(3*time.Hour).Format(time.RFC3339)
	resp, body := get(t, url)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "Recorded lux")
}
