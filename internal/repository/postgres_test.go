package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/catalog-ingestor/internal/models"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewPostgresRepository(db, logger.NewTestLogger())
	repo.now = func() time.Time { return fixedNow }
	n := 0
	repo.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return repo, mock
}

func sampleProducts(n int) []models.CandidateProduct {
	products := make([]models.CandidateProduct, n)
	for i := range products {
		products[i] = models.CandidateProduct{
			Name:           fmt.Sprintf("Product %d", i),
			Price:          float64(i+1) * 10,
			SKU:            fmt.Sprintf("SKU-%08d", i),
			Category:       "General",
			SourceDocument: "c.pdf",
			Images:         []models.ProductImage{{LocalURL: "/extracted/c/page-1.png", RemoteURL: "https://cdn/c/page-1.png"}},
			Embedding:      []float32{0.6, 0.8},
		}
	}
	return products
}

func TestPostgresRepository_SaveCatalog(t *testing.T) {
	repo, mock := newMockRepo(t)
	upload := &models.CatalogUpload{
		SessionID:        "s1",
		VendorID:         "vendor-1",
		FileName:         "c.pdf",
		ImagesExtracted:  1,
		ExtractionMethod: models.MethodDirect,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO catalog_uploads")).
		WithArgs("id-1", "s1", "vendor-1", "c.pdf", "", "completed", 2, 1, "", "direct", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	for i := 0; i < 2; i++ {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO products")).
			WithArgs(sqlmock.AnyArg(), "id-1", "vendor-1", fmt.Sprintf("Product %d", i), "", float64(i+1)*10,
				fmt.Sprintf("SKU-%08d", i), "General", "https://cdn/c/page-1.png", sqlmock.AnyArg(), sqlmock.AnyArg(), "c.pdf", fixedNow).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	n, err := repo.SaveCatalog(context.Background(), upload, sampleProducts(2))
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, "id-1", upload.ID)
	assert.Equal(t, models.UploadCompleted, upload.Status)
	assert.Equal(t, 2, upload.ProductsExtracted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_SaveCatalogRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO catalog_uploads")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO products")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO products")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO products")).WillReturnError(errors.New("value too long for type character varying"))
	mock.ExpectRollback()

	n, err := repo.SaveCatalog(context.Background(), &models.CatalogUpload{SessionID: "s1"}, sampleProducts(5))

	assert.Zero(t, n)
	assert.ErrorIs(t, err, models.ErrPersistenceFailed)
	assert.Contains(t, err.Error(), "insert product 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_SaveCatalogUploadInsertFails(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO catalog_uploads")).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	n, err := repo.SaveCatalog(context.Background(), &models.CatalogUpload{SessionID: "s1"}, sampleProducts(1))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, models.ErrPersistenceFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_SaveCatalogBeginFails(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err := repo.SaveCatalog(context.Background(), &models.CatalogUpload{}, nil)
	assert.ErrorIs(t, err, models.ErrPersistenceFailed)
}

func TestPostgresRepository_ListRecentProducts(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"id", "upload_id", "vendor_id", "name", "description", "price", "sku", "category", "image_url", "image_urls", "source_document", "created_at"}).
		AddRow("p2", "u1", "v1", "Walnut Chair", "", 149.5, "SKU-2", "General", "https://cdn/2.png", "{https://cdn/2.png}", "c.pdf", fixedNow).
		AddRow("p1", "u1", "v1", "Oak Table", "Solid oak", 899.99, "SKU-1", "Furniture", "https://cdn/1.png", "{https://cdn/1.png,/extracted/c/page-1.png}", "c.pdf", fixedNow.Add(-time.Minute))

	mock.ExpectQuery(regexp.QuoteMeta("FROM products ORDER BY created_at DESC LIMIT $1")).
		WithArgs(20).
		WillReturnRows(rows)

	products, err := repo.ListRecentProducts(context.Background(), 20)
	require.NoError(t, err)

	require.Len(t, products, 2)
	assert.Equal(t, "Walnut Chair", products[0].Name)
	assert.Equal(t, []string{"https://cdn/1.png", "/extracted/c/page-1.png"}, products[1].ImageURLs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetUploadBySession(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM catalog_uploads WHERE session_id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetUploadBySession(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	mock.ExpectQuery(regexp.QuoteMeta("FROM catalog_uploads WHERE session_id = $1")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "vendor_id", "file_name", "storage_path", "status", "products_extracted", "images_extracted", "extracted_text", "extraction_method", "created_at"}).
			AddRow("u1", "s1", "v1", "c.pdf", "", "completed", 3, 2, "text", "ocr", fixedNow))

	upload, err := repo.GetUploadBySession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, models.MethodOCR, upload.ExtractionMethod)
	assert.Equal(t, 3, upload.ProductsExtracted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_EnsureSchema(t *testing.T) {
	repo, mock := newMockRepo(t)
	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
