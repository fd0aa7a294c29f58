package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/stylematch/internal/catalog"
	"github.com/timmy/stylematch/internal/config"
	"github.com/timmy/stylematch/internal/logger"
	"github.com/timmy/stylematch/internal/repository"
	"github.com/timmy/stylematch/internal/service"
	"github.com/timmy/stylematch/internal/storage"
)

func main() {
	// Initialize logger first (LOG_* environment, rotated file outside local)
	appLogger := logger.NewFromEnv(logger.LoadFromEnv().WithServiceName("stylematch-seed"))
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	file := flag.String("file", "", "JSONL catalog to load (default: catalog.path)")
	limit := flag.Int("limit", 0, "Only seed the first N records, 0 seeds all")
	workers := flag.Int("workers", 4, "Concurrent image downloads when mirroring")
	mirrorBucket := flag.String("mirror-bucket", "", "Copy product images into this bucket and point image_url at it")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	path := cfg.Catalog.Path
	if *file != "" {
		path = *file
	}

	appLogger.WithFields(logger.Fields{
		"file":          path,
		"limit":         *limit,
		"mirror_bucket": *mirrorBucket,
	}).Info("Starting seed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	records, err := catalog.NewFileLoader(path, *limit).Load(ctx)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to read catalog")
	}

	db, err := repository.InitDB(&cfg.Database, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	var (
		objectStorage storage.ObjectStorage
		fetcher       service.Fetcher
	)
	if *mirrorBucket != "" {
		objectStorage, err = storage.NewStorage(ctx, &cfg.Storage)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize storage")
		}
		if objectStorage == nil {
			appLogger.Fatal("Mirroring requires storage.endpoint or storage.access_key to be configured")
		}
		fetcher = service.NewImageFetcher(&cfg.Embedding, objectStorage)
	}

	seedService := service.NewSeedService(
		repository.NewProductRepository(db),
		objectStorage,
		fetcher,
		appLogger,
		&service.SeedConfig{Workers: *workers},
	)

	stats, err := seedService.Seed(ctx, path, records, &service.SeedOptions{MirrorBucket: *mirrorBucket})
	if err != nil {
		appLogger.WithError(err).Fatal("Seed failed")
	}
	appLogger.WithFields(logger.Fields{
		"total":    stats.TotalItems,
		"upserted": stats.UpsertedItems,
		"mirrored": stats.MirroredItems,
		"skipped":  stats.SkippedItems,
		"failed":   stats.FailedItems,
	}).Info("Seed finished")
}
