package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/catalog-ingestor/internal/models"
)

// MemoryRepository keeps the catalog in process. Saves are all or nothing.
type MemoryRepository struct {
	mu       sync.RWMutex
	uploads  []models.CatalogUpload
	products []models.Product

	now   func() time.Time
	newID func() string

	// FailOn, when set, is consulted before each product is staged. A
	// non-nil error aborts the save.
	FailOn func(index int, p models.CandidateProduct) error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func (r *MemoryRepository) EnsureSchema(ctx context.Context) error {
	return nil
}

func (r *MemoryRepository) SaveCatalog(ctx context.Context, upload *models.CatalogUpload, products []models.CandidateProduct) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrPersistenceFailed, err)
	}

	now := r.now()
	staged := *upload
	prepareUpload(&staged, products, now, r.newID)

	rows := make([]models.Product, 0, len(products))
	for i, p := range products {
		if r.FailOn != nil {
			if err := r.FailOn(i, p); err != nil {
				return 0, fmt.Errorf("%w: insert product %d: %v", models.ErrPersistenceFailed, i, err)
			}
		}
		urls := imageURLs(p)
		rows = append(rows, models.Product{
			ID:             r.newID(),
			UploadID:       staged.ID,
			VendorID:       staged.VendorID,
			Name:           p.Name,
			Description:    p.Description,
			Price:          p.Price,
			SKU:            p.SKU,
			Category:       p.Category,
			ImageURL:       firstOrEmpty(urls),
			ImageURLs:      urls,
			SourceDocument: p.SourceDocument,
			CreatedAt:      now,
		})
	}

	r.mu.Lock()
	r.uploads = append(r.uploads, staged)
	r.products = append(r.products, rows...)
	r.mu.Unlock()

	*upload = staged
	return len(rows), nil
}

func (r *MemoryRepository) ListRecentProducts(ctx context.Context, limit int) ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Product, len(r.products))
	// newest appended last
	for i, p := range r.products {
		out[len(r.products)-1-i] = p
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) GetUploadBySession(ctx context.Context, sessionID string) (*models.CatalogUpload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.uploads) - 1; i >= 0; i-- {
		if r.uploads[i].SessionID == sessionID {
			u := r.uploads[i]
			return &u, nil
		}
	}
	return nil, models.ErrNotFound
}

// Counts returns the number of stored uploads and products.
func (r *MemoryRepository) Counts() (uploads, products int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.uploads), len(r.products)
}

func (r *MemoryRepository) Close() error {
	return nil
}
