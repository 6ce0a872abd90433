package document

import (
	"context"
	"errors"
	"fmt"
	stdimage "image"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pageimage "github.com/feichai0017/catalog-ingestor/internal/agent/document/image"
	"github.com/feichai0017/catalog-ingestor/internal/agent/document/pdf"
	"github.com/feichai0017/catalog-ingestor/internal/models"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

type stubReader struct {
	name  string
	text  string
	err   error
	calls int
}

func (r *stubReader) Name() string {
	return r.name
}

func (r *stubReader) ReadText(ctx context.Context, path string) (string, int, error) {
	r.calls++
	return r.text, 2, r.err
}

type pngRenderer struct {
	pages int
	opts  pdf.RenderOptions
	err   error
}

func (r *pngRenderer) Render(ctx context.Context, path, outDir string, opts pdf.RenderOptions) ([]pdf.Page, error) {
	r.opts = opts
	if r.err != nil {
		return nil, r.err
	}
	var pages []pdf.Page
	for i := 1; i <= r.pages; i++ {
		p := filepath.Join(outDir, fmt.Sprintf("%s-%d.png", opts.Prefix, i))
		if err := imaging.Save(stdimage.NewGray(stdimage.Rect(0, 0, 4, 4)), p); err != nil {
			return nil, err
		}
		pages = append(pages, pdf.Page{Number: i, Path: p})
	}
	return pages, nil
}

type stubRecognizer struct {
	name  string
	err   error
	calls atomic.Int32
}

func (r *stubRecognizer) Name() string {
	return r.name
}

func (r *stubRecognizer) Recognize(ctx context.Context, img stdimage.Image) (string, error) {
	n := r.calls.Add(1)
	if r.err != nil {
		return "", r.err
	}
	return fmt.Sprintf("%s text %d", r.name, n), nil
}

func TestExtractText_DirectWins(t *testing.T) {
	direct := &stubReader{name: "pdftotext", text: "Modern Oak Table\n$899.99"}
	ocr := NewOCRStrategy(&pngRenderer{pages: 1}, nil, OCROptions{}, logger.NewTestLogger())
	e := NewExtractor(logger.NewTestLogger(), NewPlainStrategy(), NewDirectStrategy(direct), ocr)

	result := e.ExtractText(context.Background(), "catalog.pdf")

	assert.Equal(t, models.MethodDirect, result.Method)
	assert.Equal(t, "Modern Oak Table\n$899.99", result.Text)
	assert.Equal(t, 2, result.Pages)
}

func TestExtractText_BlankDirectFallsBackToOCR(t *testing.T) {
	renderer := &pngRenderer{pages: 3}
	rec := &stubRecognizer{name: "tesseract"}
	e := NewExtractor(logger.NewTestLogger(),
		NewDirectStrategy(&stubReader{name: "native", text: "  \n\t"}),
		NewOCRStrategy(renderer, []pageimage.Recognizer{rec}, OCROptions{MaxPages: 5, DPI: 300, Concurrency: 2}, logger.NewTestLogger()),
	)

	result := e.ExtractText(context.Background(), "scan.pdf")

	assert.Equal(t, models.MethodOCR, result.Method)
	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, int32(3), rec.calls.Load())
	assert.Equal(t, 300, renderer.opts.DPI)
	assert.Equal(t, 1, renderer.opts.FirstPage)
	assert.Equal(t, 5, renderer.opts.LastPage)
}

func TestExtractText_NothingWorks(t *testing.T) {
	e := NewExtractor(logger.NewTestLogger(),
		NewDirectStrategy(&stubReader{name: "pdftotext", err: errors.New("exit status 1")}),
		NewOCRStrategy(&pngRenderer{err: errors.New("no pdftoppm")}, []pageimage.Recognizer{&stubRecognizer{name: "tesseract"}}, OCROptions{}, logger.NewTestLogger()),
	)

	result := e.ExtractText(context.Background(), "catalog.pdf")

	assert.Equal(t, models.MethodNone, result.Method)
	assert.Empty(t, result.Text)
}

func TestExtractText_NoStrategies(t *testing.T) {
	result := NewExtractor(logger.NewTestLogger()).ExtractText(context.Background(), "catalog.pdf")
	assert.Equal(t, models.MethodNone, result.Method)
}

func TestExtractText_PlainSkipsPDFStrategies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.txt")
	require.NoError(t, os.WriteFile(path, []byte("Walnut Chair\n$149.00\n"), 0644))

	direct := &stubReader{name: "pdftotext", text: "should not be used"}
	e := NewExtractor(logger.NewTestLogger(), NewPlainStrategy(), NewDirectStrategy(direct))

	result := e.ExtractText(context.Background(), path)

	assert.Equal(t, models.MethodPlain, result.Method)
	assert.Equal(t, "Walnut Chair\n$149.00\n", result.Text)
	assert.Zero(t, direct.calls)
}

func TestOCRStrategy_FallsBackToSecondRecognizer(t *testing.T) {
	local := &stubRecognizer{name: "tesseract", err: errors.New("no eng.traineddata")}
	cloud := &stubRecognizer{name: "textract"}
	s := NewOCRStrategy(&pngRenderer{pages: 2}, []pageimage.Recognizer{local, cloud}, OCROptions{Concurrency: 1}, logger.NewTestLogger())

	text, pages, err := s.Extract(context.Background(), "scan.pdf")
	require.NoError(t, err)

	assert.Equal(t, 2, pages)
	assert.Equal(t, "textract text 1\n\ntextract text 2", text)
	assert.Equal(t, "ocr:tesseract+textract", s.Name())
}

type panickingRecognizer struct{}

func (panickingRecognizer) Name() string {
	return "tesseract"
}

func (panickingRecognizer) Recognize(ctx context.Context, img stdimage.Image) (string, error) {
	panic("leptonica: bad image")
}

func TestOCRStrategy_RecognizerPanicFallsBack(t *testing.T) {
	cloud := &stubRecognizer{name: "textract"}
	log := logger.NewTestLogger()
	s := NewOCRStrategy(&pngRenderer{pages: 2}, []pageimage.Recognizer{panickingRecognizer{}, cloud}, OCROptions{Concurrency: 2}, log)

	text, pages, err := s.Extract(context.Background(), "scan.pdf")
	require.NoError(t, err)

	assert.Equal(t, 2, pages)
	assert.Contains(t, text, "textract text")
	assert.Equal(t, int32(2), cloud.calls.Load())
}

func TestOCRStrategy_PanicOnEveryRecognizerSkipsPage(t *testing.T) {
	log := logger.NewTestLogger()
	s := NewOCRStrategy(&pngRenderer{pages: 1}, []pageimage.Recognizer{panickingRecognizer{}}, OCROptions{}, log)

	text, _, err := s.Extract(context.Background(), "scan.pdf")
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Equal(t, 1, log.Count("WARN", "Page recognition failed"))
}

func TestOCRStrategy_AllPagesFail(t *testing.T) {
	s := NewOCRStrategy(&pngRenderer{pages: 2}, []pageimage.Recognizer{&stubRecognizer{name: "tesseract", err: errors.New("boom")}}, OCROptions{}, logger.NewTestLogger())

	text, _, err := s.Extract(context.Background(), "scan.pdf")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestPlainStrategy_FlattensCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.csv")
	require.NoError(t, os.WriteFile(path, []byte("Modern Oak Table,\"Solid oak, seats six\",$899.99\n,,\nWalnut Chair,Dining chair,$149.00\n"), 0644))

	text, pages, err := NewPlainStrategy().Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 1, pages)
	assert.Equal(t, "Modern Oak Table\nSolid oak, seats six\n$899.99\n\nWalnut Chair\nDining chair\n$149.00\n\n", text)
}

func TestPlainStrategy_TSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.tsv")
	require.NoError(t, os.WriteFile(path, []byte("Brass Lamp\t$45.00\n"), 0644))

	text, _, err := NewPlainStrategy().Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Brass Lamp\n$45.00\n\n", text)
}

func TestIsPlainText(t *testing.T) {
	assert.True(t, IsPlainText("a.TXT"))
	assert.True(t, IsPlainText("a.md"))
	assert.False(t, IsPlainText("a.pdf"))
}
