package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/stylematch/internal/config"
	"github.com/timmy/stylematch/internal/domain"
	applog "github.com/timmy/stylematch/internal/logger"
)

func newTestRepo(t *testing.T) *ProductRepository {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         "file::memory:",
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		AutoMigrate:  true,
	}, applog.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	return NewProductRepository(db)
}

func TestProductRepository_UpsertAndList(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	discount := 80.0
	products := []domain.Product{
		{ProductID: "3", ProductType: "bags", ImageURL: "https://img/3.jpg", ShortDescription: "Tote", Position: 0},
		{ProductID: "1", ProductType: "shoes", ImageURL: "https://img/1.jpg", DiscountPrice: &discount, Position: 1},
		{ProductID: "2", ProductType: "shoes", ImageURL: "https://img/2.jpg", Position: 2},
	}
	require.NoError(t, repo.UpsertBatch(ctx, products))

	listed, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "3", listed[0].ProductID)
	assert.Equal(t, "1", listed[1].ProductID)
	assert.Equal(t, "2", listed[2].ProductID)
	require.NotNil(t, listed[1].DiscountPrice)
	assert.InDelta(t, 80.0, *listed[1].DiscountPrice, 1e-9)

	limited, err := repo.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	// Upsert replaces the row without duplicating it.
	products[0].ShortDescription = "Large tote"
	require.NoError(t, repo.UpsertBatch(ctx, products[:1]))
	listed, err = repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "Large tote", listed[0].ShortDescription)

	counts, err := repo.CountByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"shoes": 2, "bags": 1}, counts)
}

func TestProductRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	err := repo.UpdateImageURL(ctx, "missing", "s3://b/k")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestProductRepository_UpdateImageURL(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.UpsertBatch(ctx, []domain.Product{{ProductID: "9", ProductType: "shoes", ImageURL: "https://img/9.jpg"}}))
	require.NoError(t, repo.UpdateImageURL(ctx, "9", "s3://images/9.jpg"))

	listed, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "s3://images/9.jpg", listed[0].ImageURL)
}

func TestProductRepository_EmptyBatch(t *testing.T) {
	repo := newTestRepo(t)
	assert.NoError(t, repo.UpsertBatch(context.Background(), nil))
}

func TestProductRepository_ExtraAttributes(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.UpsertBatch(ctx, []domain.Product{
		{ProductID: "1", ProductType: "shoes", Extra: domain.Attributes{"season": "ss25", "stock": 4}},
		{ProductID: "2", ProductType: "bags", Position: 1},
	}))

	listed, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "ss25", listed[0].Extra.String("season"))
	assert.InDelta(t, 4.0, listed[0].Extra.Float("stock"), 1e-9)
	assert.Empty(t, listed[1].Extra)
}
