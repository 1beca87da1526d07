package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// stubMarketService backs the handler with canned archive data. The embedded
// interface leaves every method the tests do not touch unimplemented.
type stubMarketService struct {
	MarketService
	archives []domain.BlobInfo
	bundles  map[string]string
	err      error
}

func (s *stubMarketService) ListArchives(context.Context) ([]domain.BlobInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.archives, nil
}

func (s *stubMarketService) OpenArchive(_ context.Context, path string) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	body, ok := s.bundles[path]
	if !ok {
		return nil, fmt.Errorf("stub: archive %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func newArchiveHandler(svc MarketService) *MarketHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMarketHandler(svc, logger)
}

func TestListArchivesEndpoint(t *testing.T) {
	h := newArchiveHandler(&stubMarketService{archives: []domain.BlobInfo{
		{Path: "archive/markets/2026-01.jsonl", Size: 120},
	}})

	w := httptest.NewRecorder()
	h.ListArchives(w, httptest.NewRequest(http.MethodGet, "/api/archives", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Archives []struct {
			Path string `json:"path"`
			Size int64  `json:"size"`
		} `json:"archives"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Archives, 1)
	assert.Equal(t, "archive/markets/2026-01.jsonl", resp.Archives[0].Path)
	assert.Equal(t, int64(120), resp.Archives[0].Size)
}

func TestListArchivesEndpointEmpty(t *testing.T) {
	h := newArchiveHandler(&stubMarketService{})

	w := httptest.NewRecorder()
	h.ListArchives(w, httptest.NewRequest(http.MethodGet, "/api/archives", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"archives":[],"total":0}`, w.Body.String())
}

func TestGetArchiveEndpointStreamsBundle(t *testing.T) {
	bundle := `{"market":{"id":"m1"}}` + "\n" + `{"market":{"id":"m2"}}` + "\n"
	h := newArchiveHandler(&stubMarketService{bundles: map[string]string{
		"archive/markets/2026-01.jsonl": bundle,
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/archives/archive/markets/2026-01.jsonl", nil)
	req.SetPathValue("path", "archive/markets/2026-01.jsonl")
	w := httptest.NewRecorder()
	h.GetArchive(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
	assert.Equal(t, bundle, w.Body.String())
}

func TestGetArchiveEndpointNotFound(t *testing.T) {
	h := newArchiveHandler(&stubMarketService{})

	req := httptest.NewRequest(http.MethodGet, "/api/archives/archive/markets/2099-12.jsonl", nil)
	req.SetPathValue("path", "archive/markets/2099-12.jsonl")
	w := httptest.NewRecorder()
	h.GetArchive(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetArchiveEndpointMissingPath(t *testing.T) {
	h := newArchiveHandler(&stubMarketService{})

	req := httptest.NewRequest(http.MethodGet, "/api/archives/", nil)
	w := httptest.NewRecorder()
	h.GetArchive(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestArchiveEndpointsWhenArchivalDisabled(t *testing.T) {
	h := newArchiveHandler(&stubMarketService{
		err: fmt.Errorf("market_service: list archives: %w", domain.ErrNotFound),
	})

	w := httptest.NewRecorder()
	h.ListArchives(w, httptest.NewRequest(http.MethodGet, "/api/archives", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
