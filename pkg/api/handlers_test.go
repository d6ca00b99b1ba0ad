package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gerritevents/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	records    []storage.RefUpdateRecord
	lastFilter storage.RefUpdateFilter
	err        error
}

func (s *fakeStore) SaveRefUpdate(ctx context.Context, record storage.RefUpdateRecord) error {
	s.records = append(s.records, record)
	return s.err
}

func (s *fakeStore) LatestRefUpdate(ctx context.Context, project, refName string) (*storage.RefUpdateRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].Project == project && s.records[i].RefName == refName {
			record := s.records[i]
			return &record, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListRefUpdates(ctx context.Context, filter storage.RefUpdateFilter) ([]storage.RefUpdateRecord, error) {
	s.lastFilter = filter
	return s.records, s.err
}

func (s *fakeStore) Close() error {
	return nil
}

func TestRefUpdatesHandlerFilter(t *testing.T) {
	store := &fakeStore{records: []storage.RefUpdateRecord{{ID: 1, Project: "demo", RefName: "master", NewRev: "bbb"}}}
	handler := &RefUpdatesHandler{Store: store}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ref-updates?project=demo&ref_name=refs/heads/master&since=2026-01-02T03:04:05Z&limit=1000", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "demo", store.lastFilter.Project)
	assert.Equal(t, "master", store.lastFilter.RefName)
	assert.Equal(t, maxListLimit, store.lastFilter.Limit)
	require.NotNil(t, store.lastFilter.Since)
	assert.True(t, store.lastFilter.Since.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "bbb", body[0]["new_rev"])
}

func TestRefUpdatesHandlerSinceOffset(t *testing.T) {
	store := &fakeStore{}
	handler := &RefUpdatesHandler{Store: store}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ref-updates?since=2026-01-01T10:00:00%2B02:00", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, store.lastFilter.Since)
	assert.Equal(t, time.UTC, store.lastFilter.Since.Location())
	assert.True(t, store.lastFilter.Since.Equal(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)))
}

func TestRefUpdatesHandlerRejects(t *testing.T) {
	cases := []struct {
		name   string
		method string
		target string
		store  storage.RefUpdateStore
		code   int
	}{
		{name: "method", method: http.MethodPost, target: "/api/ref-updates", store: &fakeStore{}, code: http.StatusMethodNotAllowed},
		{name: "no store", method: http.MethodGet, target: "/api/ref-updates", code: http.StatusServiceUnavailable},
		{name: "bad since", method: http.MethodGet, target: "/api/ref-updates?since=yesterday", store: &fakeStore{}, code: http.StatusBadRequest},
		{name: "bad limit", method: http.MethodGet, target: "/api/ref-updates?limit=-1", store: &fakeStore{}, code: http.StatusBadRequest},
		{name: "store error", method: http.MethodGet, target: "/api/ref-updates", store: &fakeStore{err: errors.New("down")}, code: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			(&RefUpdatesHandler{Store: tc.store}).ServeHTTP(rec, httptest.NewRequest(tc.method, tc.target, nil))
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestLatestRefUpdateHandler(t *testing.T) {
	store := &fakeStore{records: []storage.RefUpdateRecord{
		{ID: 1, Project: "demo", RefName: "master", NewRev: "bbb"},
		{ID: 2, Project: "demo", RefName: "master", NewRev: "ccc"},
	}}
	handler := &LatestRefUpdateHandler{Store: store}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ref-updates/latest?project=demo&ref_name=master", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var record storage.RefUpdateRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, uint64(2), record.ID)
	assert.Equal(t, "ccc", record.NewRev)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ref-updates/latest?project=demo&ref_name=stable", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ref-updates/latest?project=demo", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
