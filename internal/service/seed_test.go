package service

import (
	"context"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/stylematch/internal/config"
	"github.com/timmy/stylematch/internal/domain"
	"github.com/timmy/stylematch/internal/logger"
	"github.com/timmy/stylematch/internal/repository"
)

func newSeedRepo(t *testing.T) *repository.ProductRepository {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         "file::memory:",
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		AutoMigrate:  true,
	}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	return repository.NewProductRepository(db)
}

func seedRecord(id, productType, imageURL string) domain.ProductRecord {
	return domain.ProductRecord{ProductID: id, ProductType: productType, ImageURL: imageURL, Name: "item " + id}
}

func TestSeedService_Seed(t *testing.T) {
	ctx := context.Background()
	repo := newSeedRepo(t)
	svc := NewSeedService(repo, nil, nil, logger.NewNop(), &SeedConfig{BatchSize: 2})

	records := []domain.ProductRecord{
		seedRecord("30", "shoes", "https://img/30.jpg"),
		seedRecord("10", "bags", "https://img/10.jpg"),
		seedRecord("20", "hats", "https://img/20.jpg"),
	}

	stats, err := svc.Seed(ctx, "test", records, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalItems)
	assert.Equal(t, int64(3), stats.UpsertedItems)

	listed, err := repo.List(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, len(listed))
	for i, p := range listed {
		ids[i] = p.ProductID
	}
	assert.Equal(t, []string{"30", "10", "20"}, ids)
	assert.Equal(t, "item 10", listed[1].ShortDescription)

	// Re-seeding updates rows in place.
	records[1].Name = "renamed"
	_, err = svc.Seed(ctx, "test", records, nil)
	require.NoError(t, err)
	p := seededProduct(t, repo, "10")
	assert.Equal(t, "renamed", p.ShortDescription)
}

func seededProduct(t *testing.T, repo *repository.ProductRepository, id string) domain.Product {
	t.Helper()
	listed, err := repo.List(context.Background(), 0)
	require.NoError(t, err)
	for _, p := range listed {
		if p.ProductID == id {
			return p
		}
	}
	t.Fatalf("product %s not seeded", id)
	return domain.Product{}
}

func TestSeedService_RejectsInvalidCatalog(t *testing.T) {
	svc := NewSeedService(newSeedRepo(t), nil, nil, logger.NewNop(), nil)

	_, err := svc.Seed(context.Background(), "test", []domain.ProductRecord{
		seedRecord("1", "shoes", ""),
		seedRecord("1", "bags", ""),
	}, nil)
	var catErr *domain.CatalogError
	require.ErrorAs(t, err, &catErr)

	_, err = svc.Seed(context.Background(), "test", nil, &SeedOptions{MirrorBucket: "images"})
	assert.ErrorContains(t, err, "requires object storage")
}

func TestSeedService_Mirror(t *testing.T) {
	ctx := context.Background()
	red := encodePNG(t, 4, 4, color.RGBA{R: 255, A: 255})
	images := newImageServer(t, map[string][]byte{
		"/1.png":      red,
		"/2.png":      red,
		"/3.png":      encodePNG(t, 4, 4, color.RGBA{B: 255, A: 255}),
		"/broken.png": []byte("not an image"),
	})

	store := &memStorage{objects: map[string][]byte{
		"images/existing.png": encodePNG(t, 2, 2, color.White),
	}}
	repo := newSeedRepo(t)
	fetcher := NewImageFetcher(testEmbeddingConfig("kserve", "http://unused"), store)
	svc := NewSeedService(repo, store, fetcher, logger.NewNop(), &SeedConfig{Workers: 3})

	records := []domain.ProductRecord{
		seedRecord("1", "shoes", images.URL+"/1.png"),
		seedRecord("2", "bags", images.URL+"/2.png"),
		seedRecord("3", "clothing", images.URL+"/3.png"),
		seedRecord("4", "shoes", "s3://images/existing.png"),
		seedRecord("5", "bags", images.URL+"/missing.png"),
		seedRecord("6", "bags", images.URL+"/broken.png"),
	}

	stats, err := svc.Seed(ctx, "test", records, &SeedOptions{MirrorBucket: "mirror"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.MirroredItems)
	assert.Equal(t, int64(1), stats.SkippedItems)
	assert.Equal(t, int64(2), stats.FailedItems)

	// Identical images share one object.
	assert.Len(t, store.objects, 3)

	p1 := seededProduct(t, repo, "1")
	p2 := seededProduct(t, repo, "2")
	assert.True(t, strings.HasPrefix(p1.ImageURL, "s3://mirror/"))
	assert.True(t, strings.HasSuffix(p1.ImageURL, ".png"))
	assert.Equal(t, p1.ImageURL, p2.ImageURL)

	// The mirrored URL is readable through the same fetcher.
	data, err := fetcher.Fetch(ctx, p1.ImageURL)
	require.NoError(t, err)
	assert.Equal(t, red, data)

	p5 := seededProduct(t, repo, "5")
	assert.Equal(t, images.URL+"/missing.png", p5.ImageURL)
}
