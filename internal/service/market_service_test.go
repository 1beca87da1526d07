package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// fakeBlobReader serves objects from a map, mimicking the cold-storage
// bucket.
type fakeBlobReader struct {
	objects map[string]string
}

func (f *fakeBlobReader) Get(_ context.Context, path string) (io.ReadCloser, error) {
	body, ok := f.objects[path]
	if !ok {
		return nil, fmt.Errorf("fake: get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeBlobReader) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for path, body := range f.objects {
		if strings.HasPrefix(path, prefix) {
			out = append(out, domain.BlobInfo{Path: path, Size: int64(len(body))})
		}
	}
	return out, nil
}

func (f *fakeBlobReader) Exists(_ context.Context, path string) (bool, error) {
	_, ok := f.objects[path]
	return ok, nil
}

func newArchiveService(reader domain.BlobReader) *MarketService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMarketService(nil, nil, nil, nil, nil, nil, nil, reader, logger)
}

func TestListArchivesScopesToArchivePrefix(t *testing.T) {
	svc := newArchiveService(&fakeBlobReader{objects: map[string]string{
		"archive/markets/2026-01.jsonl": "{}\n",
		"archive/markets/2026-02.jsonl": "{}\n{}\n",
		"tmp/scratch":                   "x",
	}})

	infos, err := svc.ListArchives(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 2)

	paths := make(map[string]bool, len(infos))
	for _, info := range infos {
		paths[info.Path] = true
	}
	assert.True(t, paths["archive/markets/2026-01.jsonl"])
	assert.True(t, paths["archive/markets/2026-02.jsonl"])
}

func TestOpenArchiveStreamsBundle(t *testing.T) {
	svc := newArchiveService(&fakeBlobReader{objects: map[string]string{
		"archive/markets/2026-01.jsonl": `{"market":{"id":"m1"}}` + "\n",
	}})

	rc, err := svc.OpenArchive(context.Background(), "archive/markets/2026-01.jsonl")
	require.NoError(t, err)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"id":"m1"`)

	_, err = svc.OpenArchive(context.Background(), "archive/markets/2099-12.jsonl")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOpenArchiveRejectsPathsOutsidePrefix(t *testing.T) {
	svc := newArchiveService(&fakeBlobReader{objects: map[string]string{
		"internal/credentials": "secret",
	}})

	_, err := svc.OpenArchive(context.Background(), "internal/credentials")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestArchiveSurfaceWithoutReader(t *testing.T) {
	svc := newArchiveService(nil)

	_, err := svc.ListArchives(context.Background())
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.OpenArchive(context.Background(), "archive/markets/2026-01.jsonl")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
