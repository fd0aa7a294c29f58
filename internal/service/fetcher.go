package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/stylematch/internal/config"
	"github.com/timmy/stylematch/internal/storage"
)

// maxImageBytes caps a single downloaded image.
const maxImageBytes = 32 << 20

// Fetcher downloads the raw bytes behind an image URL.
type Fetcher interface {
	Fetch(ctx context.Context, imageURL string) ([]byte, error)
}

// ImageFetcher fetches product images over HTTP(S), or from object storage
// for s3:// URLs.
type ImageFetcher struct {
	client   *resty.Client
	storage  storage.ObjectStorage
	timeout  time.Duration
	maxBytes int
}

// NewImageFetcher creates an ImageFetcher. objectStorage may be nil, in which
// case s3:// URLs fail to fetch.
func NewImageFetcher(cfg *config.EmbeddingConfig, objectStorage storage.ObjectStorage) *ImageFetcher {
	client := resty.New()
	client.SetHeader("Accept", "image/*")
	client.SetHeader("User-Agent", "stylematch/1.0")
	configureRetry(client, cfg)

	return &ImageFetcher{
		client:   client,
		storage:  objectStorage,
		timeout:  cfg.FetchTimeout,
		maxBytes: maxImageBytes,
	}
}

// configureRetry maps the retry settings onto resty. A zero retry count keeps
// resty's default of a single attempt.
func configureRetry(client *resty.Client, cfg *config.EmbeddingConfig) {
	if cfg.RetryCount <= 0 {
		return
	}
	client.SetRetryCount(cfg.RetryCount)
	if cfg.RetryWait > 0 {
		client.SetRetryWaitTime(cfg.RetryWait)
	}
	if cfg.RetryMaxWait > 0 {
		client.SetRetryMaxWaitTime(cfg.RetryMaxWait)
	}
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, resty.ErrResponseBodyTooLarge)
		}
		return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
	})
}

// Fetch implements Fetcher. The whole download, including any retries, is
// bounded by the configured timeout.
func (f *ImageFetcher) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	if imageURL == "" {
		return nil, errors.New("empty image url")
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	if storage.IsObjectURL(imageURL) {
		return f.fetchObject(ctx, imageURL)
	}

	// The body limit is enforced while reading, before the image is buffered.
	resp, err := f.client.R().
		SetContext(ctx).
		SetResponseBodyLimit(f.maxBytes).
		Get(imageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode())
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, errors.New("failed to download image: empty body")
	}
	return body, nil
}

func (f *ImageFetcher) fetchObject(ctx context.Context, imageURL string) ([]byte, error) {
	if f.storage == nil {
		return nil, fmt.Errorf("object storage is not configured for %s", imageURL)
	}

	loc, err := storage.ParseURL(imageURL)
	if err != nil {
		return nil, err
	}

	rc, err := f.storage.Download(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, int64(f.maxBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("failed to read object: empty body")
	}
	if len(data) > f.maxBytes {
		return nil, fmt.Errorf("failed to read object: exceeds %d bytes", f.maxBytes)
	}
	return data, nil
}
