package models

import (
	"time"
)

// UploadStatus is the lifecycle state of a CatalogUpload row.
type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadCompleted UploadStatus = "completed"
	UploadFailed    UploadStatus = "failed"
)

// ExtractionMethod records which text strategy produced the text.
type ExtractionMethod string

const (
	MethodPlain  ExtractionMethod = "plain"
	MethodDirect ExtractionMethod = "direct"
	MethodOCR    ExtractionMethod = "ocr"
	MethodNone   ExtractionMethod = "none"
)

// ExtractionSession identifies one ingestion run. It only lives for the
// duration of the run.
type ExtractionSession struct {
	SessionID string `json:"sessionId"`
	VendorID  string `json:"vendorId"`
	FileName  string `json:"fileName"`
	FilePath  string `json:"filePath"`
	FileSize  int64  `json:"fileSize"`

	// StoragePath is the object storage URL of the source file, if uploaded.
	StoragePath string    `json:"storagePath,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ExtractedPage is one rasterized page image.
type ExtractedPage struct {
	Index     int    `json:"index"`
	LocalPath string `json:"localPath"`
	LocalURL  string `json:"localUrl"`
	RemoteURL string `json:"remoteUrl,omitempty"`
}

// ProductImage is an image reference attached to a product.
type ProductImage struct {
	LocalURL  string `json:"localUrl,omitempty"`
	RemoteURL string `json:"remoteUrl,omitempty"`
}

// URL prefers the remote copy.
func (i ProductImage) URL() string {
	if i.RemoteURL != "" {
		return i.RemoteURL
	}
	return i.LocalURL
}

// CandidateProduct is one extracted, not yet persisted product.
type CandidateProduct struct {
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Price          float64        `json:"price"`
	SKU            string         `json:"sku"`
	Category       string         `json:"category"`
	SourceDocument string         `json:"sourceDocument"`
	Images         []ProductImage `json:"images,omitempty"`
	Embedding      []float32      `json:"-"`
}

// CatalogUpload is the parent row of a persisted run.
type CatalogUpload struct {
	ID                string           `json:"id"`
	SessionID         string           `json:"sessionId"`
	VendorID          string           `json:"vendorId"`
	FileName          string           `json:"fileName"`
	StoragePath       string           `json:"storagePath"`
	Status            UploadStatus     `json:"status"`
	ProductsExtracted int              `json:"productsExtracted"`
	ImagesExtracted   int              `json:"imagesExtracted"`
	ExtractedText     string           `json:"extractedText,omitempty"`
	ExtractionMethod  ExtractionMethod `json:"extractionMethod"`
	CreatedAt         time.Time        `json:"createdAt"`
}

// Product is a persisted product row as read back for listing.
type Product struct {
	ID             string    `json:"id"`
	UploadID       string    `json:"uploadId"`
	VendorID       string    `json:"vendorId"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Price          float64   `json:"price"`
	SKU            string    `json:"sku"`
	Category       string    `json:"category"`
	ImageURL       string    `json:"imageUrl"`
	ImageURLs      []string  `json:"imageUrls"`
	SourceDocument string    `json:"sourceDocument"`
	CreatedAt      time.Time `json:"createdAt"`
}
