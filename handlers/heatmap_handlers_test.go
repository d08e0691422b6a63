package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heatlens/api/models"
	"heatlens/api/query"
)

type fakeHeatmapSource struct {
	result  query.Result
	cached  bool
	lastReq models.HeatmapRequest
}

func (f *fakeHeatmapSource) Heatmap(_ context.Context, req models.HeatmapRequest) (query.Result, bool, error) {
	f.lastReq = req
	return f.result, f.cached, nil
}

func newHeatmapRouter(src *fakeHeatmapSource) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHeatmapHandlers(src, zerolog.Nop())
	h.now = func() time.Time {
		return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	}
	r := gin.New()
	r.GET("/api/heatmap", h.GetHeatmap)
	return r
}

func TestGetHeatmapFlatPointEnvelope(t *testing.T) {
	updated := time.Date(2025, 6, 15, 2, 0, 0, 0, time.UTC)
	src := &fakeHeatmapSource{
		result: query.Result{
			Points:        []models.Point{{X: 100, Y: 200, Count: 5}},
			FromAggregate: true,
			LastUpdated:   updated,
		},
		cached: true,
	}
	r := newHeatmapRouter(src)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/heatmap?site_id=s1&page_url=/pricing&heatmap_type=click", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success       bool           `json:"success"`
		Data          []models.Point `json:"data"`
		Cached        bool           `json:"cached"`
		FromAggregate bool           `json:"from_aggregate"`
		LastUpdated   *time.Time     `json:"last_updated"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.True(t, body.Success)
	assert.True(t, body.Cached)
	assert.True(t, body.FromAggregate)
	require.Len(t, body.Data, 1)
	assert.Equal(t, int32(100), body.Data[0].X)
	assert.Equal(t, uint64(5), body.Data[0].Count)
	require.NotNil(t, body.LastUpdated)
	assert.True(t, updated.Equal(*body.LastUpdated))
}

func TestGetHeatmapOmitsLastUpdatedForRawResults(t *testing.T) {
	src := &fakeHeatmapSource{result: query.Result{Points: []models.Point{}}}
	r := newHeatmapRouter(src)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/heatmap?site_id=s1&page_url=/pricing", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "last_updated")
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestGetHeatmapAppliesNamedRange(t *testing.T) {
	src := &fakeHeatmapSource{result: query.Result{Points: []models.Point{}}}
	r := newHeatmapRouter(src)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/heatmap?site_id=s1&page_url=/p&range=7d", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7d", src.lastReq.Range)
	assert.Equal(t, time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC), src.lastReq.Start)
	assert.True(t, src.lastReq.End.IsZero())
}

func TestGetHeatmapValidation(t *testing.T) {
	cases := []struct {
		name string
		url  string
	}{
		{"missing site_id", "/api/heatmap?page_url=/p"},
		{"missing page_url", "/api/heatmap?site_id=s1"},
		{"bad type", "/api/heatmap?site_id=s1&page_url=/p&heatmap_type=hover"},
		{"bad range", "/api/heatmap?site_id=s1&page_url=/p&range=90d"},
		{"bad date", "/api/heatmap?site_id=s1&page_url=/p&start_date=yesterday"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newHeatmapRouter(&fakeHeatmapSource{})
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.url, nil))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}
