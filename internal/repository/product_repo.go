package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/stylematch/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrProductNotFound is returned when a product id has no row.
var ErrProductNotFound = errors.New("product not found")

// upsertBatchSize bounds the rows per INSERT so large catalogs stay under
// driver parameter limits.
const upsertBatchSize = 200

// ProductRepository handles catalog product data operations.
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new ProductRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ProductRepository: repository instance bound to db.
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// UpsertBatch creates or updates products keyed by product_id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - products: rows to write; an empty slice is a no-op.
// Returns:
//   - error: non-nil if the write fails.
func (r *ProductRepository) UpsertBatch(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		UpdateAll: true,
	}).CreateInBatches(products, upsertBatchSize).Error
}

// List returns products in catalog order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum rows to return; 0 means no limit.
// Returns:
//   - []domain.Product: rows ordered by position.
//   - error: non-nil if the query fails.
func (r *ProductRepository) List(ctx context.Context, limit int) ([]domain.Product, error) {
	var products []domain.Product
	query := r.db.WithContext(ctx).Order("position").Order("product_id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// CountByType returns the number of products per product_type.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - map[string]int64: product_type to row count.
//   - error: non-nil if the query fails.
func (r *ProductRepository) CountByType(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		ProductType string
		Count       int64
	}
	err := r.db.WithContext(ctx).
		Model(&domain.Product{}).
		Select("product_type, COUNT(*) AS count").
		Group("product_type").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.ProductType] = row.Count
	}
	return counts, nil
}

// UpdateImageURL points a product at a new image location.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: product id.
//   - imageURL: new image URL.
// Returns:
//   - error: ErrProductNotFound when no row matches.
func (r *ProductRepository) UpdateImageURL(ctx context.Context, id, imageURL string) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("product_id = ?", id).
		Update("image_url", imageURL)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}
