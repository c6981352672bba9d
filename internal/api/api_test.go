package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/railflow/internal/runtime/logging"
	"github.com/drblury/railflow/internal/store"
)

type fakeStore struct {
	active    []store.ActiveTrain
	cancelled []store.CancelledTrain
	err       error
	pingErr   error
	pages     []store.Page
}

func (f *fakeStore) ListActiveTrains(ctx context.Context, page store.Page) ([]store.ActiveTrain, error) {
	f.pages = append(f.pages, page)
	return f.active, f.err
}

func (f *fakeStore) ListCancelledTrains(ctx context.Context, page store.Page) ([]store.CancelledTrain, error) {
	f.pages = append(f.pages, page)
	return f.cancelled, f.err
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }

func serve(t *testing.T, st Store, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	NewRouter(st, logging.NewNopLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		query string
		want  store.Page
	}{
		{"", store.Page{Limit: 10}},
		{"?limit=25&offset=50", store.Page{Limit: 25, Offset: 50}},
		{"?limit=500", store.Page{Limit: MaxLimit}},
		{"?limit=abc&offset=xyz", store.Page{Limit: 10}},
		{"?limit=-3&offset=-1", store.Page{Limit: 10}},
		{"?limit=0", store.Page{Limit: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/active-trains"+tt.query, nil)
			assert.Equal(t, tt.want, ParsePage(req))
		})
	}
}

func TestActiveTrains(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	st := &fakeStore{active: []store.ActiveTrain{{ID: 1, TrainID: "T123", Stanox: "8201", Timestamp: ts}}}

	rec := serve(t, st, "/api/v1/active-trains?limit=5&offset=2")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `[{"id":1,"train_id":"T123","stanox":"8201","timestamp":"2024-05-01T10:00:00Z"}]`, rec.Body.String())
	assert.Equal(t, []store.Page{{Limit: 5, Offset: 2}}, st.pages)
}

func TestCancelledTrains(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	st := &fakeStore{cancelled: []store.CancelledTrain{{ID: 7, TrainID: "T9", Stanox: "N/A", ReasonCode: "A1", Timestamp: ts}}}

	rec := serve(t, st, "/api/v1/cancelled-trains")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":7,"train_id":"T9","stanox":"N/A","reason_code":"A1","timestamp":"2024-05-01T10:00:00Z"}]`, rec.Body.String())
	assert.Equal(t, []store.Page{{Limit: DefaultLimit}}, st.pages)
}

func TestEmptyResultIsEmptyArray(t *testing.T) {
	rec := serve(t, &fakeStore{active: []store.ActiveTrain{}}, "/api/v1/active-trains")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestStoreFailure(t *testing.T) {
	for _, path := range []string{"/api/v1/active-trains", "/api/v1/cancelled-trains"} {
		t.Run(path, func(t *testing.T) {
			rec := serve(t, &fakeStore{err: errors.New("connection refused")}, path)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())
		})
	}
}

func TestHealthz(t *testing.T) {
	rec := serve(t, &fakeStore{}, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, &fakeStore{pingErr: errors.New("down")}, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	rec := serve(t, &fakeStore{}, "/api/v1/reinstated-trains")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
