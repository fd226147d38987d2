package knnserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partnerknn/knnserve/internal/knn"
	"github.com/partnerknn/knnserve/internal/logging"
)

// fakeNative is a minimal knn.NativeIndex for exercising the HTTP boundary
// without any real on-disk index or ANN backend.
type fakeNative struct {
	dim     int
	labels  []int64
	vectors map[int64][]float32
	results []knn.IndexResult
}

func (f *fakeNative) Count() int      { return len(f.labels) }
func (f *fakeNative) Dimension() int  { return f.dim }
func (f *fakeNative) Labels() []int64 { return f.labels }

func (f *fakeNative) Reconstruct(label int64) ([]float32, bool) {
	v, ok := f.vectors[label]
	return v, ok
}

func (f *fakeNative) Search(ctx context.Context, query []float32, k int) ([]knn.IndexResult, error) {
	if k > len(f.results) {
		k = len(f.results)
	}
	return f.results[:k], nil
}

func newTestRouter(t *testing.T) *knn.Router {
	t.Helper()
	loadIndex := func(path string) (*knn.Registry, error) {
		reco := knn.NewShard(&fakeNative{
			dim:     2,
			labels:  []int64{10, 20},
			vectors: map[int64][]float32{10: {1, 0}, 20: {0, 1}},
			results: []knn.IndexResult{{Label: 10, Distance: 0.1}},
		}, true)
		pi := knn.NewPartnerIndex(2, []*knn.Shard{reco})
		return knn.NewRegistry(2, map[int32]*knn.PartnerIndex{5: pi}), nil
	}

	r := knn.NewRouter(knn.RouterConfig{
		IndicesRoot: "/data", Platform: "web", Version: "v1",
		Models: []knn.Model{{Name: "avg", ModelType: knn.ModelTypeAverage, IsDefault: true}},
	})
	require.NoError(t, r.Load("FR", loadIndex))
	require.NoError(t, r.Load("XX", loadIndex))
	return r
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	router := newTestRouter(t)
	health := NewHealthChecker()
	health.SetStatus("FR", StatusServing)
	health.SetStatus("XX", StatusServing)
	return NewServer(router, logging.NewNop(), health)
}

func TestHandleSearch_Success(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(SearchRequest{
		Country:     "FR",
		IndexID:     5,
		ResultCount: 3,
		UserEvents: []SearchUserEvent{
			{PartnerID: 5, ProductID: 10},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Products, 1)
	assert.Equal(t, int64(10), resp.Products[0].ProductID)
}

func TestHandleSearch_UnknownCountryFallsBackToXX(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(SearchRequest{
		Country:     "DE",
		IndexID:     5,
		ResultCount: 3,
		UserEvents:  []SearchUserEvent{{PartnerID: 5, ProductID: 10}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleSearch_TrulyUnresolvableCountry(t *testing.T) {
	router := knn.NewRouter(knn.RouterConfig{IndicesRoot: "/data", Platform: "web", Version: "v1"})
	s := NewServer(router, logging.NewNop(), NewHealthChecker())

	body, _ := json.Marshal(SearchRequest{Country: "DE", IndexID: 5, ResultCount: 3})
	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleAvailableCountries(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/countries", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AvailableCountriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Countries, 2)
}

func TestHandleHealthz(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "SERVING", resp.Status)
}

func TestHandleHealthz_NotServingWhenAnyServiceDown(t *testing.T) {
	s := newTestServer(t)
	s.health.SetStatus("FR", StatusNotServing)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleMultiSearch_NotImplemented(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/multi_search", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
