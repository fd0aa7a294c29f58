package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is a path-style S3 endpoint holding objects in memory.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")

	if key == "" {
		switch r.Method {
		case http.MethodHead:
			if !f.buckets[bucket] {
				w.WriteHeader(http.StatusNotFound)
			}
		case http.MethodPut:
			f.buckets[bucket] = true
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	body, ok := f.objects[path]
	switch r.Method {
	case http.MethodHead:
		if !ok {
			w.WriteHeader(http.StatusNotFound)
		}
	case http.MethodGet:
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		io.WriteString(w, body)
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[path] = string(data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeS3Storage(t *testing.T) (*S3Storage, *fakeS3) {
	t.Helper()
	fake := &fakeS3{
		buckets: map[string]bool{"images": true},
		objects: map[string]string{"images/shoes/1.png": "png-bytes"},
	}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewS3Storage(context.Background(), &S3Config{
		Type:      StorageTypeS3Compatible,
		Endpoint:  srv.URL,
		AccessKey: "test",
		SecretKey: "test",
		UseSSL:    false,
	})
	require.NoError(t, err)
	return store, fake
}

func TestS3Storage_ExistsAndDownload(t *testing.T) {
	ctx := context.Background()
	store, _ := newFakeS3Storage(t)

	ok, err := store.Exists(ctx, "images", "shoes/1.png")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "images", "shoes/2.png")
	require.NoError(t, err)
	assert.False(t, ok)

	rc, err := store.Download(ctx, "images", "shoes/1.png")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	_, err = store.Download(ctx, "images", "shoes/2.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestS3Storage_EnsureBucket(t *testing.T) {
	ctx := context.Background()
	store, fake := newFakeS3Storage(t)

	require.NoError(t, store.EnsureBucket(ctx, "images"))
	require.NoError(t, store.EnsureBucket(ctx, "mirror"))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.True(t, fake.buckets["mirror"])
}
