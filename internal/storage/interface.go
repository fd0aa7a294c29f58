package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Scheme is the URL scheme product images use when they live in object storage.
const Scheme = "s3://"

// ErrObjectNotFound is returned by Download when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage defines the interface for object storage operations
type ObjectStorage interface {
	// Upload stores an object under bucket/key
	Upload(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object for reading; the caller closes it
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// Exists checks if an object exists
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// EnsureBucket creates the bucket if it doesn't exist
	EnsureBucket(ctx context.Context, bucket string) error
}

// Location is a parsed s3://bucket/key URL.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	return Scheme + l.Bucket + "/" + l.Key
}

// IsObjectURL reports whether rawURL points into object storage.
func IsObjectURL(rawURL string) bool {
	return strings.HasPrefix(strings.ToLower(rawURL), Scheme)
}

// ParseURL splits an s3://bucket/key URL.
func ParseURL(rawURL string) (Location, error) {
	if !IsObjectURL(rawURL) {
		return Location{}, fmt.Errorf("not an object storage url: %q", rawURL)
	}
	rest := rawURL[len(Scheme):]
	idx := strings.Index(rest, "/")
	if idx <= 0 || idx == len(rest)-1 {
		return Location{}, fmt.Errorf("object storage url needs bucket and key: %q", rawURL)
	}
	return Location{Bucket: rest[:idx], Key: rest[idx+1:]}, nil
}
