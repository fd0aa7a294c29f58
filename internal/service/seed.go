package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timmy/stylematch/internal/catalog"
	"github.com/timmy/stylematch/internal/domain"
	"github.com/timmy/stylematch/internal/logger"
	"github.com/timmy/stylematch/internal/repository"
	"github.com/timmy/stylematch/internal/storage"
)

// SeedService loads catalog records into the products table and can mirror
// their images into object storage.
type SeedService struct {
	repo      *repository.ProductRepository
	storage   storage.ObjectStorage
	fetcher   Fetcher
	logger    *logger.Logger
	workers   int
	batchSize int
}

// SeedConfig holds configuration for the seed service
type SeedConfig struct {
	Workers   int
	BatchSize int
}

// NewSeedService creates a new seed service. objectStorage and fetcher are
// only needed for mirroring.
func NewSeedService(
	repo *repository.ProductRepository,
	objectStorage storage.ObjectStorage,
	fetcher Fetcher,
	log *logger.Logger,
	cfg *SeedConfig,
) *SeedService {
	s := &SeedService{
		repo:      repo,
		storage:   objectStorage,
		fetcher:   fetcher,
		logger:    log,
		workers:   defaultWorkers,
		batchSize: 500,
	}
	if cfg != nil && cfg.Workers > 0 {
		s.workers = cfg.Workers
	}
	if cfg != nil && cfg.BatchSize > 0 {
		s.batchSize = cfg.BatchSize
	}
	if s.logger == nil {
		s.logger = logger.GetDefault()
	}
	return s
}

// log returns a logger from context if available, otherwise returns the service logger
func (s *SeedService) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, s.logger)
}

// SeedOptions holds options for a seed run
type SeedOptions struct {
	// MirrorBucket, when set, copies every http(s) image into this bucket and
	// rewrites the product's image_url to the s3:// location.
	MirrorBucket string
}

// SeedStats holds statistics for a seed run
type SeedStats struct {
	TotalItems    int64
	UpsertedItems int64
	MirroredItems int64
	SkippedItems  int64
	FailedItems   int64
	StartTime     time.Time
	EndTime       time.Time
}

// Seed validates records and upserts them in catalog order. Position is the
// record's index in records, so database reads return the same order.
func (s *SeedService) Seed(ctx context.Context, source string, records []domain.ProductRecord, opts *SeedOptions) (*SeedStats, error) {
	if opts == nil {
		opts = &SeedOptions{}
	}
	if opts.MirrorBucket != "" && (s.storage == nil || s.fetcher == nil) {
		return nil, fmt.Errorf("mirroring to %q requires object storage", opts.MirrorBucket)
	}
	if err := catalog.Validate(source, records); err != nil {
		return nil, err
	}

	stats := &SeedStats{
		TotalItems: int64(len(records)),
		StartTime:  time.Now(),
	}

	s.log(ctx).WithFields(logger.Fields{
		"source":          source,
		logger.FieldCount: len(records),
		"mirror_bucket":   opts.MirrorBucket,
	}).Info("Starting seed")

	products := make([]domain.Product, len(records))
	for i, r := range records {
		products[i] = domain.ProductFromRecord(r)
		products[i].Position = i
	}

	for start := 0; start < len(products); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		end := start + s.batchSize
		if end > len(products) {
			end = len(products)
		}
		if err := s.repo.UpsertBatch(ctx, products[start:end]); err != nil {
			return stats, fmt.Errorf("failed to upsert products %d-%d: %w", start, end-1, err)
		}
		stats.UpsertedItems += int64(end - start)
	}

	if opts.MirrorBucket != "" {
		if err := s.storage.EnsureBucket(ctx, opts.MirrorBucket); err != nil {
			return stats, fmt.Errorf("failed to ensure bucket: %w", err)
		}
		s.mirror(ctx, opts.MirrorBucket, products, stats)
	}

	stats.EndTime = time.Now()

	logger.With(logger.Fields{
		"total":    stats.TotalItems,
		"upserted": stats.UpsertedItems,
		"mirrored": stats.MirroredItems,
		"skipped":  stats.SkippedItems,
		"failed":   stats.FailedItems,
	}).WithDuration(stats.EndTime.Sub(stats.StartTime)).Info(ctx, "Seed completed")

	return stats, ctx.Err()
}

type mirrorResult struct {
	productID string
	skipped   bool
	err       error
}

// mirror copies product images with a bounded pool of workers.
func (s *SeedService) mirror(ctx context.Context, bucket string, products []domain.Product, stats *SeedStats) {
	itemsChan := make(chan domain.Product, s.workers*2)
	resultsChan := make(chan *mirrorResult, s.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.mirrorWorker(logger.WithField(ctx, logger.FieldWorker, workerID), bucket, itemsChan, resultsChan)
		}(i)
	}

	done := make(chan struct{})
	go func() {
		for result := range resultsChan {
			switch {
			case result.skipped:
				atomic.AddInt64(&stats.SkippedItems, 1)
			case result.err != nil:
				atomic.AddInt64(&stats.FailedItems, 1)
				s.log(ctx).WithField(logger.FieldProductID, result.productID).
					WithError(result.err).
					Error("Failed to mirror image")
			default:
				atomic.AddInt64(&stats.MirroredItems, 1)
			}
		}
		close(done)
	}()

feed:
	for _, p := range products {
		select {
		case itemsChan <- p:
		case <-ctx.Done():
			break feed
		}
	}

	close(itemsChan)
	wg.Wait()

	close(resultsChan)
	<-done
}

func (s *SeedService) mirrorWorker(ctx context.Context, bucket string, items <-chan domain.Product, results chan<- *mirrorResult) {
	for p := range items {
		result := &mirrorResult{productID: p.ProductID}
		if ctx.Err() != nil {
			result.err = ctx.Err()
			results <- result
			continue
		}
		if p.ImageURL == "" || storage.IsObjectURL(p.ImageURL) {
			result.skipped = true
			results <- result
			continue
		}
		result.err = s.mirrorImage(ctx, bucket, p)
		results <- result
	}
}

func (s *SeedService) mirrorImage(ctx context.Context, bucket string, p domain.Product) error {
	data, err := s.fetcher.Fetch(ctx, p.ImageURL)
	if err != nil {
		return fmt.Errorf("failed to download image: %w", err)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to detect image format: %w", err)
	}

	// Content-addressed keys: identical images share one object.
	md5Hash := calculateMD5(data)
	loc := storage.Location{
		Bucket: bucket,
		Key:    fmt.Sprintf("%s/%s.%s", md5Hash[:2], md5Hash, format),
	}

	exists, err := s.storage.Exists(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return fmt.Errorf("failed to check storage existence: %w", err)
	}
	if !exists {
		if err := s.storage.Upload(ctx, loc.Bucket, loc.Key, bytes.NewReader(data), int64(len(data)), getContentType(format)); err != nil {
			return fmt.Errorf("failed to upload to storage: %w", err)
		}
	} else {
		s.log(ctx).WithField("storage_key", loc.Key).Debug("File already exists in storage, skipping upload")
	}

	if err := s.repo.UpdateImageURL(ctx, p.ProductID, loc.String()); err != nil {
		return fmt.Errorf("failed to update image url: %w", err)
	}
	return nil
}

func calculateMD5(data []byte) string {
	hash := md5.Sum(data)
	return hex.EncodeToString(hash[:])
}

func getContentType(format string) string {
	switch format {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
