// Package repository persists finished catalog runs.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/feichai0017/catalog-ingestor/config"
	"github.com/feichai0017/catalog-ingestor/internal/models"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// CatalogRepository stores an upload and its products atomically.
type CatalogRepository interface {
	// SaveCatalog writes the upload row and every product in one unit. On
	// any failure nothing is kept and the error wraps ErrPersistenceFailed.
	// It returns the number of products written.
	SaveCatalog(ctx context.Context, upload *models.CatalogUpload, products []models.CandidateProduct) (int, error)
	// ListRecentProducts returns products newest first.
	ListRecentProducts(ctx context.Context, limit int) ([]models.Product, error)
	// GetUploadBySession returns ErrNotFound when the session never persisted.
	GetUploadBySession(ctx context.Context, sessionID string) (*models.CatalogUpload, error)
	EnsureSchema(ctx context.Context) error
	Close() error
}

// New opens the postgres repository when a database URL is configured and
// the in-memory one otherwise.
func New(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (CatalogRepository, error) {
	if cfg.URL == "" {
		log.Warn("DATABASE_URL not set, catalog is kept in memory")
		return NewMemoryRepository(), nil
	}

	db, err := OpenPostgres(ctx, cfg)
	if err != nil {
		return nil, err
	}

	repo := NewPostgresRepository(db, log)
	if cfg.AutoMigrate {
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return repo, nil
}

// OpenPostgres opens and pings a lib/pq pool.
func OpenPostgres(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// imageURLs flattens product images to their preferred URLs.
func imageURLs(p models.CandidateProduct) []string {
	urls := make([]string, 0, len(p.Images))
	for _, img := range p.Images {
		if u := img.URL(); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// prepareUpload fills the fields SaveCatalog owns.
func prepareUpload(upload *models.CatalogUpload, products []models.CandidateProduct, now time.Time, newID func() string) {
	if upload.ID == "" {
		upload.ID = newID()
	}
	if upload.CreatedAt.IsZero() {
		upload.CreatedAt = now
	}
	upload.Status = models.UploadCompleted
	upload.ProductsExtracted = len(products)
}
