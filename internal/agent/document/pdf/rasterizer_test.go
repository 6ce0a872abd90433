package pdf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

// fakeRunner records the call and writes the named files into the output
// prefix's directory the way pdftoppm would.
type fakeRunner struct {
	files []string
	out   []byte
	err   error
	name  string
	args  []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.name = name
	f.args = args
	if f.err != nil {
		return nil, f.err
	}
	if len(f.files) > 0 {
		dir := filepath.Dir(args[len(args)-1])
		for _, file := range f.files {
			if err := os.WriteFile(filepath.Join(dir, file), []byte("png"), 0644); err != nil {
				return nil, err
			}
		}
	}
	return f.out, nil
}

func TestRasterizer_RenderSortsNumerically(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{files: []string{"page-10.png", "page-02.png", "page-01.png", "notes.txt"}}
	r := NewRasterizer(runner, logger.NewTestLogger())

	pages, err := r.Render(context.Background(), "/tmp/catalog.pdf", dir, RenderOptions{DPI: 150})
	require.NoError(t, err)

	require.Len(t, pages, 3)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 2, pages[1].Number)
	assert.Equal(t, 10, pages[2].Number)
	assert.Equal(t, filepath.Join(dir, "page-2.png"), pages[1].Path)
	assert.FileExists(t, filepath.Join(dir, "page-2.png"))

	assert.Equal(t, "pdftoppm", runner.name)
	assert.Equal(t, []string{"-png", "-r", "150", "/tmp/catalog.pdf", filepath.Join(dir, "page")}, runner.args)
}

func TestRasterizer_RenderPageRange(t *testing.T) {
	runner := &fakeRunner{}
	r := NewRasterizer(runner, logger.NewTestLogger())

	pages, err := r.Render(context.Background(), "in.pdf", t.TempDir(), RenderOptions{DPI: 300, FirstPage: 1, LastPage: 5, Prefix: "ocr"})
	require.NoError(t, err)
	assert.Empty(t, pages)
	assert.Contains(t, runner.args, "-l")
	assert.Contains(t, runner.args, "5")
}

func TestRasterizer_RenderFailure(t *testing.T) {
	r := NewRasterizer(&fakeRunner{err: errors.New("exit status 1")}, logger.NewTestLogger())
	_, err := r.Render(context.Background(), "in.pdf", t.TempDir(), RenderOptions{})
	assert.Error(t, err)
}

func TestToolTextReader_CountsPages(t *testing.T) {
	runner := &fakeRunner{out: []byte("Oak Table\n$899.99\fWalnut Chair\n\f")}
	r := NewToolTextReader(runner, logger.NewTestLogger())

	text, pages, err := r.ReadText(context.Background(), "in.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
	assert.Contains(t, text, "Walnut Chair")
	assert.NotContains(t, text, "\f")
	assert.Equal(t, []string{"-layout", "in.pdf", "-"}, runner.args)
}

func TestNativeTextReader_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf"), 0644))

	r := NewNativeTextReader(logger.NewTestLogger())
	_, _, err := r.ReadText(context.Background(), path)
	assert.Error(t, err)
}
