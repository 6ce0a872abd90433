package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/feichai0017/catalog-ingestor/internal/models"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

const (
	insertUploadQuery = `INSERT INTO catalog_uploads (id, session_id, vendor_id, file_name, storage_path, status, products_extracted, images_extracted, extracted_text, extraction_method, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	insertProductQuery = `INSERT INTO products (id, upload_id, vendor_id, name, description, price, sku, category, image_url, image_urls, embedding, source_document, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	listProductsQuery = `SELECT id, upload_id, vendor_id, name, description, price, sku, category, image_url, image_urls, source_document, created_at
		FROM products ORDER BY created_at DESC LIMIT $1`

	uploadBySessionQuery = `SELECT id, session_id, vendor_id, file_name, storage_path, status, products_extracted, images_extracted, extracted_text, extraction_method, created_at
		FROM catalog_uploads WHERE session_id = $1 ORDER BY created_at DESC LIMIT 1`
)

// PostgresRepository implements CatalogRepository on lib/pq.
type PostgresRepository struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
	newID  func() string
}

func NewPostgresRepository(db *sql.DB, log logger.Logger) *PostgresRepository {
	return &PostgresRepository{
		db:     db,
		logger: log.Named("repository"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) SaveCatalog(ctx context.Context, upload *models.CatalogUpload, products []models.CandidateProduct) (int, error) {
	now := r.now()
	prepareUpload(upload, products, now, r.newID)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin transaction: %v", models.ErrPersistenceFailed, err)
	}

	_, err = tx.ExecContext(ctx, insertUploadQuery,
		upload.ID, upload.SessionID, upload.VendorID, upload.FileName, upload.StoragePath,
		string(upload.Status), upload.ProductsExtracted, upload.ImagesExtracted,
		upload.ExtractedText, string(upload.ExtractionMethod), upload.CreatedAt,
	)
	if err != nil {
		return 0, r.rollback(tx, fmt.Errorf("insert upload: %w", err))
	}

	for i, p := range products {
		urls := imageURLs(p)
		_, err := tx.ExecContext(ctx, insertProductQuery,
			r.newID(), upload.ID, upload.VendorID, p.Name, p.Description, p.Price,
			p.SKU, p.Category, firstOrEmpty(urls), pq.Array(urls), pq.Array(p.Embedding),
			p.SourceDocument, now,
		)
		if err != nil {
			return 0, r.rollback(tx, fmt.Errorf("insert product %d: %w", i, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", models.ErrPersistenceFailed, err)
	}

	r.logger.Info("Catalog saved",
		logger.String("upload_id", upload.ID),
		logger.String("session_id", upload.SessionID),
		logger.Int("products", len(products)),
	)
	return len(products), nil
}

func (r *PostgresRepository) rollback(tx *sql.Tx, cause error) error {
	if err := tx.Rollback(); err != nil {
		r.logger.Error("Rollback failed", logger.Error(err))
	}
	return fmt.Errorf("%w: %v", models.ErrPersistenceFailed, cause)
}

func (r *PostgresRepository) ListRecentProducts(ctx context.Context, limit int) ([]models.Product, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := r.db.QueryContext(ctx, listProductsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := make([]models.Product, 0, limit)
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.UploadID, &p.VendorID, &p.Name, &p.Description, &p.Price,
			&p.SKU, &p.Category, &p.ImageURL, pq.Array(&p.ImageURLs), &p.SourceDocument, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

func (r *PostgresRepository) GetUploadBySession(ctx context.Context, sessionID string) (*models.CatalogUpload, error) {
	var u models.CatalogUpload
	var status, method string
	err := r.db.QueryRowContext(ctx, uploadBySessionQuery, sessionID).Scan(
		&u.ID, &u.SessionID, &u.VendorID, &u.FileName, &u.StoragePath, &status,
		&u.ProductsExtracted, &u.ImagesExtracted, &u.ExtractedText, &method, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	u.Status = models.UploadStatus(status)
	u.ExtractionMethod = models.ExtractionMethod(method)
	return &u, nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}
