// Package capability detects which optional external facilities the process
// can use and exposes the result as an immutable Table.
package capability

import (
	"fmt"
	"strings"
)

// External command-line tools probed on PATH.
const (
	ToolPDFToText = "pdftotext"
	ToolPDFToPPM  = "pdftoppm"
	ToolTesseract = "tesseract"
)

// Table is the read-only capability record for the process lifetime. It is
// passed by value so no stage can mutate what another stage sees.
type Table struct {
	Inference     bool   `json:"inference"`
	Model         string `json:"model"`
	DirectText    bool   `json:"directText"`
	NativePDF     bool   `json:"nativePdf"`
	Rasterizer    bool   `json:"rasterizer"`
	OCR           bool   `json:"ocr"`
	CloudOCR      bool   `json:"cloudOcr"`
	ObjectStorage bool   `json:"objectStorage"`
}

// None is the baseline with nothing available.
func None() Table {
	return Table{}
}

// HasInference reports whether model-assisted extraction can run.
func (t Table) HasInference() bool {
	return t.Inference && t.Model != ""
}

// CanOCR reports whether pages can be rasterized and recognized.
func (t Table) CanOCR() bool {
	return t.Rasterizer && (t.OCR || t.CloudOCR)
}

// String renders the one-line operator summary.
func (t Table) String() string {
	model := t.Model
	if model == "" {
		model = "-"
	}
	parts := []string{
		fmt.Sprintf("inference=%t(model=%s)", t.HasInference(), model),
		fmt.Sprintf("pdftotext=%t", t.DirectText),
		fmt.Sprintf("native_pdf=%t", t.NativePDF),
		fmt.Sprintf("pdftoppm=%t", t.Rasterizer),
		fmt.Sprintf("tesseract=%t", t.OCR),
		fmt.Sprintf("textract=%t", t.CloudOCR),
		fmt.Sprintf("object_storage=%t", t.ObjectStorage),
	}
	return strings.Join(parts, " ")
}
