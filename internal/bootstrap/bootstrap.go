// Package bootstrap assembles the similarity pipeline from configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/timmy/stylematch/internal/catalog"
	"github.com/timmy/stylematch/internal/config"
	"github.com/timmy/stylematch/internal/logger"
	"github.com/timmy/stylematch/internal/repository"
	"github.com/timmy/stylematch/internal/service"
	"github.com/timmy/stylematch/internal/storage"
	"gorm.io/gorm"
)

// Components holds everything a caller needs to run similarity queries.
type Components struct {
	// DB is nil unless the catalog is read from the database.
	DB *gorm.DB
	// Storage is nil unless object storage is configured.
	Storage    storage.ObjectStorage
	Loader     catalog.Loader
	Provider   *service.EmbeddingProvider
	Metrics    *service.Metrics
	Similarity *service.SimilarityService
}

// Build wires storage, catalog, embedding model and similarity service.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Components, error) {
	if err := cfg.Embedding.ValidateWithAPIKey(); err != nil {
		return nil, err
	}

	c := &Components{}

	objectStorage, err := storage.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = objectStorage

	if cfg.Catalog.Source == "database" {
		db, err := repository.InitDB(&cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		c.DB = db
	}

	loader, err := catalog.NewLoader(&cfg.Catalog, c.DB)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Loader = loader

	model, err := service.NewImageModel(&cfg.Embedding)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
	}

	c.Metrics = service.NewMetrics(log)
	c.Provider = service.NewEmbeddingProvider(
		service.NewImageFetcher(&cfg.Embedding, objectStorage),
		model,
		service.ProviderConfig{
			ImageSize:  cfg.Embedding.ImageSize,
			Dimensions: cfg.Embedding.Dimensions,
		},
		c.Metrics,
		log,
	)
	c.Similarity = service.NewSimilarityService(
		loader,
		c.Provider,
		service.NewEmbeddingCache(c.Metrics),
		c.Metrics,
		log,
		&service.SimilarityConfig{Workers: cfg.Similarity.Workers},
	)

	log.WithFields(logger.Fields{
		"catalog_source": cfg.Catalog.Source,
		"provider":       cfg.Embedding.Provider,
		"model":          c.Provider.ModelName(),
		"storage":        objectStorage != nil,
	}).Info("Similarity pipeline ready")

	return c, nil
}

// Close releases the database connection, if any.
func (c *Components) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
