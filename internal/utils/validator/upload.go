package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/feichai0017/catalog-ingestor/internal/models"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

const (
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeEmptyFile       = "EMPTY_FILE"
	CodeInvalidFileType = "INVALID_FILE_TYPE"
	CodeInvalidMimeType = "INVALID_MIME_TYPE"
)

// UploadValidator checks catalog uploads before they are accepted.
type UploadValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

type ValidatorConfig struct {
	MaxFileSize  int64               // bytes
	AllowedTypes map[string][]string // extension -> accepted sniffed MIME types
}

type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
}

// DefaultConfig accepts PDFs and the plain text formats the text stage reads.
func DefaultConfig(maxFileSize int64) *ValidatorConfig {
	text := []string{"text/plain"}
	return &ValidatorConfig{
		MaxFileSize: maxFileSize,
		AllowedTypes: map[string][]string{
			".pdf": {"application/pdf"},
			".txt": text,
			".csv": text,
			".tsv": text,
			".md":  text,
		},
	}
}

func NewUploadValidator(log logger.Logger, config *ValidatorConfig) *UploadValidator {
	if config == nil {
		config = DefaultConfig(50 * 1024 * 1024)
	}
	return &UploadValidator{
		logger: log.Named("validator"),
		config: config,
	}
}

// ValidateFile inspects size, extension and content of an uploaded file.
func (v *UploadValidator) ValidateFile(file *multipart.FileHeader) (*ValidationResult, error) {
	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Filename:  file.Filename,
			Size:      file.Size,
			Extension: strings.ToLower(filepath.Ext(file.Filename)),
		},
	}

	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if errs := v.performBasicValidation(result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
		return result, nil
	}

	mimeType, err := detectMimeType(f)
	if err != nil {
		return nil, fmt.Errorf("failed to detect mime type: %w", err)
	}
	result.FileInfo.MimeType = mimeType

	if errs := v.validateMimeType(result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
		return result, nil
	}

	hash, err := calculateHash(f)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}
	result.FileInfo.Hash = hash

	return result, nil
}

// Err converts an invalid result into an error wrapping ErrUploadInvalid.
func (r *ValidationResult) Err() error {
	if r.IsValid || len(r.Errors) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", models.ErrUploadInvalid, r.Errors[0].Message)
}

func (v *UploadValidator) performBasicValidation(info FileInfo) []ValidationError {
	var errors []ValidationError

	if info.Size == 0 {
		errors = append(errors, ValidationError{
			Code:    CodeEmptyFile,
			Message: "file is empty",
			Field:   "size",
		})
	}

	if v.config.MaxFileSize > 0 && info.Size > v.config.MaxFileSize {
		errors = append(errors, ValidationError{
			Code:    CodeFileTooLarge,
			Message: fmt.Sprintf("file size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}

	if _, ok := v.config.AllowedTypes[info.Extension]; !ok {
		errors = append(errors, ValidationError{
			Code:    CodeInvalidFileType,
			Message: fmt.Sprintf("file type %q is not allowed", info.Extension),
			Field:   "extension",
		})
	}

	return errors
}

func (v *UploadValidator) validateMimeType(info FileInfo) []ValidationError {
	base := info.MimeType
	if i := strings.Index(base, ";"); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}

	for _, mime := range v.config.AllowedTypes[info.Extension] {
		if mime == base {
			return nil
		}
	}

	return []ValidationError{{
		Code:    CodeInvalidMimeType,
		Message: fmt.Sprintf("content type %s does not match extension %s", info.MimeType, info.Extension),
		Field:   "mimeType",
	}}
}

func detectMimeType(file multipart.File) (string, error) {
	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	return http.DetectContentType(buffer[:n]), nil
}

func calculateHash(file multipart.File) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// SanitizeName turns a file name into a path and key safe token without its
// extension.
func SanitizeName(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	out := strings.Trim(SanitizeSegment(base), "_")
	if out == "" || out == "." {
		return "document"
	}
	return out
}

// SanitizeSegment maps every rune outside [A-Za-z0-9_-] to '_' so s can be
// used as a single path segment. An empty s stays empty.
func SanitizeSegment(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}
