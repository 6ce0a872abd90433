package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

// Page is one rendered page image.
type Page struct {
	Number int
	Path   string
}

// RenderOptions bounds a pdftoppm run. Zero pages mean the whole document.
type RenderOptions struct {
	DPI       int
	FirstPage int
	LastPage  int
	Prefix    string
}

// Rasterizer renders PDF pages to PNG files with pdftoppm.
type Rasterizer struct {
	runner Runner
	logger logger.Logger
}

func NewRasterizer(runner Runner, log logger.Logger) *Rasterizer {
	return &Rasterizer{
		runner: runner,
		logger: log.Named("pdftoppm"),
	}
}

// Render writes <outDir>/<prefix>-N.png for each page and returns them in
// page order. outDir must exist.
func (r *Rasterizer) Render(ctx context.Context, path, outDir string, opts RenderOptions) ([]Page, error) {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "page"
	}

	args := []string{"-png"}
	if opts.DPI > 0 {
		args = append(args, "-r", strconv.Itoa(opts.DPI))
	}
	if opts.FirstPage > 0 {
		args = append(args, "-f", strconv.Itoa(opts.FirstPage))
	}
	if opts.LastPage > 0 {
		args = append(args, "-l", strconv.Itoa(opts.LastPage))
	}
	args = append(args, path, filepath.Join(outDir, prefix))

	if _, err := r.runner.Run(ctx, "pdftoppm", args...); err != nil {
		return nil, err
	}

	pages, err := collectPages(outDir, prefix)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Rendered pages",
		logger.String("file", filepath.Base(path)),
		logger.Int("pages", len(pages)),
	)
	return pages, nil
}

// collectPages finds <prefix>-N.png files, drops pdftoppm's zero padding
// from their names and sorts them numerically.
func collectPages(dir, prefix string) ([]Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list rendered pages: %w", err)
	}

	var pages []Page
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ".png") {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix+"-"), ".png"))
		if err != nil {
			continue
		}

		path := filepath.Join(dir, name)
		canonical := filepath.Join(dir, fmt.Sprintf("%s-%d.png", prefix, num))
		if canonical != path {
			if err := os.Rename(path, canonical); err != nil {
				return nil, fmt.Errorf("failed to rename %s: %w", name, err)
			}
		}
		pages = append(pages, Page{Number: num, Path: canonical})
	}

	sort.Slice(pages, func(i, j int) bool {
		return pages[i].Number < pages[j].Number
	})
	return pages, nil
}
