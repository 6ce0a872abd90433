package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/catalog-ingestor/internal/agent/document/pdf"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

type fakeRenderer struct {
	pages int
	err   error
	opts  pdf.RenderOptions
}

func (f *fakeRenderer) Render(ctx context.Context, path, outDir string, opts pdf.RenderOptions) ([]pdf.Page, error) {
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	var pages []pdf.Page
	for i := 1; i <= f.pages; i++ {
		p := filepath.Join(outDir, fmt.Sprintf("page-%d.png", i))
		if err := os.WriteFile(p, []byte("png"), 0644); err != nil {
			return nil, err
		}
		pages = append(pages, pdf.Page{Number: i, Path: p})
	}
	return pages, nil
}

type fakeStore struct {
	mu     sync.Mutex
	keys   []string
	failOn string
}

func (s *fakeStore) Store(ctx context.Context, r io.Reader, size int64, key, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && strings.HasSuffix(key, s.failOn) {
		return "", errors.New("upload refused")
	}
	s.keys = append(s.keys, key)
	return "https://cdn.example.com/" + key, nil
}

func (s *fakeStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, nil
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	return nil
}

func (s *fakeStore) CleanupBefore(ctx context.Context, t time.Time) error {
	return nil
}

func (s *fakeStore) EnsureBucket(ctx context.Context) error {
	return nil
}

func (s *fakeStore) URL(key string) string {
	return "https://cdn.example.com/" + key
}

func TestExtractImages_NoRasterizer(t *testing.T) {
	e := NewExtractor(nil, nil, 150, logger.NewTestLogger())

	pages, err := e.ExtractImages(context.Background(), "s1", "catalog.pdf", t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestExtractImages_LocalOnly(t *testing.T) {
	out := t.TempDir()
	renderer := &fakeRenderer{pages: 3}
	e := NewExtractor(renderer, nil, 150, logger.NewTestLogger())

	pages, err := e.ExtractImages(context.Background(), "s1", "/uploads/s1/Spring Catalog.pdf", out)
	require.NoError(t, err)

	require.Len(t, pages, 3)
	assert.Equal(t, 150, renderer.opts.DPI)
	assert.Equal(t, "/extracted/s1/Spring_Catalog/page-1.png", pages[0].LocalURL)
	assert.Equal(t, filepath.Join(out, "s1", "Spring_Catalog", "page-3.png"), pages[2].LocalPath)
	for _, p := range pages {
		assert.Empty(t, p.RemoteURL)
	}
}

func TestExtractImages_UploadFailureIsNotFatal(t *testing.T) {
	store := &fakeStore{failOn: "page-2.png"}
	log := logger.NewTestLogger()
	e := NewExtractor(&fakeRenderer{pages: 3}, store, 150, log)

	pages, err := e.ExtractImages(context.Background(), "s1", "catalog.pdf", t.TempDir())
	require.NoError(t, err)

	require.Len(t, pages, 3)
	assert.Equal(t, "https://cdn.example.com/catalog/s1/catalog/page-1.png", pages[0].RemoteURL)
	assert.Empty(t, pages[1].RemoteURL)
	assert.NotEmpty(t, pages[2].RemoteURL)
	assert.Equal(t, []string{"catalog/s1/catalog/page-1.png", "catalog/s1/catalog/page-3.png"}, store.keys)
	assert.Equal(t, 1, log.Count("WARN", "Failed to upload page image"))
}

func TestExtractImages_RenderFailureDegrades(t *testing.T) {
	e := NewExtractor(&fakeRenderer{err: errors.New("pdftoppm: exit status 1")}, nil, 150, logger.NewTestLogger())

	pages, err := e.ExtractImages(context.Background(), "s1", "catalog.pdf", t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestExtractImages_OutputDirFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	e := NewExtractor(&fakeRenderer{pages: 1}, nil, 150, logger.NewTestLogger())
	_, err := e.ExtractImages(context.Background(), "s1", "catalog.pdf", blocker)
	assert.Error(t, err)
}

// pageRunner writes pages[doc] zero padded page files the way pdftoppm does.
type pageRunner struct {
	pages map[string]int
}

func (r *pageRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	doc := args[len(args)-2]
	prefix := args[len(args)-1]
	for i := 1; i <= r.pages[doc]; i++ {
		if err := os.WriteFile(fmt.Sprintf("%s-%02d.png", prefix, i), []byte(doc), 0644); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func TestExtractImages_SameFileNameInTwoSessions(t *testing.T) {
	out := t.TempDir()
	runner := &pageRunner{pages: map[string]int{
		"/uploads/s1/catalog.pdf": 4,
		"/uploads/s2/catalog.pdf": 2,
	}}
	e := NewExtractor(pdf.NewRasterizer(runner, logger.NewTestLogger()), nil, 150, logger.NewTestLogger())

	first, err := e.ExtractImages(context.Background(), "s1", "/uploads/s1/catalog.pdf", out)
	require.NoError(t, err)
	require.Len(t, first, 4)

	second, err := e.ExtractImages(context.Background(), "s2", "/uploads/s2/catalog.pdf", out)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "/extracted/s2/catalog/page-1.png", second[0].LocalURL)
	assert.Equal(t, "/extracted/s2/catalog/page-2.png", second[1].LocalURL)

	// the first session's pages are untouched
	data, err := os.ReadFile(first[3].LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/s1/catalog.pdf", string(data))
	assert.Equal(t, "/extracted/s1/catalog/page-4.png", first[3].LocalURL)
}

func TestExtractImages_RerunDropsStalePages(t *testing.T) {
	out := t.TempDir()
	runner := &pageRunner{pages: map[string]int{"/uploads/s1/catalog.pdf": 3}}
	e := NewExtractor(pdf.NewRasterizer(runner, logger.NewTestLogger()), nil, 150, logger.NewTestLogger())

	_, err := e.ExtractImages(context.Background(), "s1", "/uploads/s1/catalog.pdf", out)
	require.NoError(t, err)

	runner.pages["/uploads/s1/catalog.pdf"] = 1
	pages, err := e.ExtractImages(context.Background(), "s1", "/uploads/s1/catalog.pdf", out)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.NoFileExists(t, filepath.Join(out, "s1", "catalog", "page-3.png"))
}
