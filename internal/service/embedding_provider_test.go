package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/stylematch/internal/domain"
	"github.com/timmy/stylematch/internal/logger"
)

// funcModel adapts a function to ImageModel.
type funcModel func(ctx context.Context, img *image.RGBA) (*ModelOutput, error)

func (f funcModel) Name() string { return "test-model" }

func (f funcModel) Infer(ctx context.Context, img *image.RGBA) (*ModelOutput, error) {
	return f(ctx, img)
}

// meanColorModel embeds an image as its mean RGB, which makes similar images
// score close to 1.
func meanColorModel() funcModel {
	return func(_ context.Context, img *image.RGBA) (*ModelOutput, error) {
		var r, g, b float32
		n := float32(len(img.Pix) / 4)
		for i := 0; i < len(img.Pix); i += 4 {
			r += float32(img.Pix[i])
			g += float32(img.Pix[i+1])
			b += float32(img.Pix[i+2])
		}
		return &ModelOutput{Raw: &Tensor{Shape: []int{1, 3}, Data: []float32{r / n, g / n, b / n}}}, nil
	}
}

func encodePNG(t testing.TB, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// newImageServer serves PNGs by path; unknown paths return 404.
func newImageServer(t testing.TB, images map[string][]byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := images[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestProvider(model ImageModel, dims int) *EmbeddingProvider {
	cfg := testEmbeddingConfig("kserve", "http://unused")
	return NewEmbeddingProvider(NewImageFetcher(cfg, nil), model, ProviderConfig{ImageSize: 16, Dimensions: dims}, nil, logger.NewNop())
}

func requireStage(t *testing.T, err error, stage domain.ExtractionStage) *domain.ExtractionError {
	t.Helper()
	var extErr *domain.ExtractionError
	require.True(t, errors.As(err, &extErr), "expected ExtractionError, got %v", err)
	assert.Equal(t, stage, extErr.Stage)
	return extErr
}

func TestEmbeddingProvider_Extract(t *testing.T) {
	server := newImageServer(t, map[string][]byte{
		"/red.png": encodePNG(t, 40, 20, color.RGBA{R: 200, A: 255}),
	})

	var gotSize image.Rectangle
	model := funcModel(func(ctx context.Context, img *image.RGBA) (*ModelOutput, error) {
		gotSize = img.Bounds()
		return meanColorModel()(ctx, img)
	})

	p := newTestProvider(model, 3)
	vec, err := p.Extract(context.Background(), server.URL+"/red.png")
	require.NoError(t, err)
	require.Equal(t, 3, vec.Dim())
	assert.InDelta(t, 200, vec[0], 1)
	assert.InDelta(t, 0, vec[1], 1)
	assert.Equal(t, image.Rect(0, 0, 16, 16), gotSize)
	assert.Equal(t, "test-model", p.ModelName())
}

func TestEmbeddingProvider_TransparentPixelsBecomeWhite(t *testing.T) {
	server := newImageServer(t, map[string][]byte{
		"/clear.png": encodePNG(t, 8, 8, color.NRGBA{}),
	})

	p := newTestProvider(meanColorModel(), 0)
	vec, err := p.Extract(context.Background(), server.URL+"/clear.png")
	require.NoError(t, err)
	for _, x := range vec {
		assert.InDelta(t, 255, x, 1)
	}
}

func TestEmbeddingProvider_Stages(t *testing.T) {
	server := newImageServer(t, map[string][]byte{
		"/ok.png":      encodePNG(t, 4, 4, color.RGBA{G: 255, A: 255}),
		"/garbage.png": []byte("definitely not an image"),
		"/empty.png":   {},
	})

	okModel := meanColorModel()

	testCases := []struct {
		name  string
		url   string
		model ImageModel
		dims  int
		stage domain.ExtractionStage
	}{
		{name: "not found", url: server.URL + "/missing.png", model: okModel, stage: domain.StageFetch},
		{name: "empty body", url: server.URL + "/empty.png", model: okModel, stage: domain.StageFetch},
		{name: "bad scheme", url: "ftp://example.com/a.png", model: okModel, stage: domain.StageFetch},
		{name: "object url without storage", url: "s3://bucket/a.png", model: okModel, stage: domain.StageFetch},
		{name: "undecodable", url: server.URL + "/garbage.png", model: okModel, stage: domain.StageDecode},
		{
			name: "model error",
			url:  server.URL + "/ok.png",
			model: funcModel(func(context.Context, *image.RGBA) (*ModelOutput, error) {
				return nil, errors.New("server overloaded")
			}),
			stage: domain.StageInfer,
		},
		{
			name: "model panic",
			url:  server.URL + "/ok.png",
			model: funcModel(func(context.Context, *image.RGBA) (*ModelOutput, error) {
				panic("tensor index out of range")
			}),
			stage: domain.StageInfer,
		},
		{
			name: "nil output",
			url:  server.URL + "/ok.png",
			model: funcModel(func(context.Context, *image.RGBA) (*ModelOutput, error) {
				return nil, nil
			}),
			stage: domain.StageInfer,
		},
		{
			name: "unsqueezable tensor",
			url:  server.URL + "/ok.png",
			model: funcModel(func(context.Context, *image.RGBA) (*ModelOutput, error) {
				return &ModelOutput{Raw: &Tensor{Shape: []int{2, 3}, Data: make([]float32, 6)}}, nil
			}),
			stage: domain.StageExtract,
		},
		{
			name: "zero vector",
			url:  server.URL + "/ok.png",
			model: funcModel(func(context.Context, *image.RGBA) (*ModelOutput, error) {
				return &ModelOutput{Pooled: domain.Vector{0, 0, 0}}, nil
			}),
			stage: domain.StageExtract,
		},
		{
			name: "non-finite",
			url:  server.URL + "/ok.png",
			model: funcModel(func(context.Context, *image.RGBA) (*ModelOutput, error) {
				return &ModelOutput{Pooled: domain.Vector{1, float32(math.Inf(1)), 0}}, nil
			}),
			stage: domain.StageExtract,
		},
		{name: "wrong dimension", url: server.URL + "/ok.png", model: okModel, dims: 512, stage: domain.StageExtract},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestProvider(tc.model, tc.dims)
			vec, err := p.Extract(context.Background(), tc.url)
			assert.Nil(t, vec)
			extErr := requireStage(t, err, tc.stage)
			assert.Equal(t, tc.url, extErr.URL)
		})
	}
}

func TestEmbeddingProvider_ZeroVectorIsDegenerate(t *testing.T) {
	server := newImageServer(t, map[string][]byte{"/ok.png": encodePNG(t, 2, 2, color.Black)})
	p := newTestProvider(funcModel(func(context.Context, *image.RGBA) (*ModelOutput, error) {
		return &ModelOutput{Pooled: domain.Vector{0, 0}}, nil
	}), 0)

	_, err := p.Extract(context.Background(), server.URL+"/ok.png")
	var degenerate *domain.DegenerateVectorError
	assert.True(t, errors.As(err, &degenerate))
}

func TestEmbeddingProvider_FetchTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	cfg := testEmbeddingConfig("kserve", "http://unused")
	cfg.FetchTimeout = 50 * time.Millisecond
	p := NewEmbeddingProvider(NewImageFetcher(cfg, nil), meanColorModel(), ProviderConfig{}, nil, logger.NewNop())

	_, err := p.Extract(context.Background(), server.URL+"/slow.png")
	requireStage(t, err, domain.StageFetch)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "deadline"))
}

// memStorage is an in-memory ObjectStorage.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memStorage) Upload(_ context.Context, bucket, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = data
	return nil
}

func (m *memStorage) Download(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) Exists(_ context.Context, bucket, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[bucket+"/"+key]
	return ok, nil
}

func (m *memStorage) EnsureBucket(context.Context, string) error { return nil }

func TestImageFetcher_ObjectStorage(t *testing.T) {
	store := &memStorage{objects: map[string][]byte{
		"images/shoes/1.png": encodePNG(t, 4, 4, color.White),
		"images/empty.png":   {},
	}}
	fetcher := NewImageFetcher(testEmbeddingConfig("kserve", "http://unused"), store)

	data, err := fetcher.Fetch(context.Background(), "s3://images/shoes/1.png")
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	_, err = fetcher.Fetch(context.Background(), "s3://images/shoes/2.png")
	assert.Error(t, err)

	_, err = fetcher.Fetch(context.Background(), "s3://images/empty.png")
	assert.Error(t, err)

	_, err = fetcher.Fetch(context.Background(), "s3://images")
	assert.Error(t, err)

	_, err = fetcher.Fetch(context.Background(), "")
	assert.Error(t, err)
}

func TestImageFetcher_Retry(t *testing.T) {
	var attempts atomic.Int32
	body := encodePNG(t, 2, 2, color.White)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(body)
	}))
	defer server.Close()

	cfg := testEmbeddingConfig("kserve", "http://unused")
	cfg.RetryCount = 2
	cfg.RetryWait = time.Millisecond
	cfg.RetryMaxWait = 2 * time.Millisecond

	data, err := NewImageFetcher(cfg, nil).Fetch(context.Background(), server.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, body, data)
	assert.Equal(t, int32(3), attempts.Load())

	// Without retries the first 503 is final.
	attempts.Store(0)
	cfg.RetryCount = 0
	_, err = NewImageFetcher(cfg, nil).Fetch(context.Background(), server.URL+"/a.png")
	assert.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestImageFetcher_BodyLimit(t *testing.T) {
	var attempts atomic.Int32
	large := bytes.Repeat([]byte{0xff}, 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Write(large)
	}))
	defer server.Close()

	cfg := testEmbeddingConfig("kserve", "http://unused")
	cfg.RetryCount = 2
	cfg.RetryWait = time.Millisecond
	store := &memStorage{objects: map[string][]byte{"images/large.png": large}}

	fetcher := NewImageFetcher(cfg, store)
	fetcher.maxBytes = 1024

	_, err := fetcher.Fetch(context.Background(), server.URL+"/large.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
	assert.Equal(t, int32(1), attempts.Load(), "oversized bodies are not retried")

	_, err = fetcher.Fetch(context.Background(), "s3://images/large.png")
	assert.ErrorContains(t, err, "exceeds 1024 bytes")

	fetcher.maxBytes = len(large)
	data, err := fetcher.Fetch(context.Background(), server.URL+"/large.png")
	require.NoError(t, err)
	assert.Len(t, data, len(large))
}
