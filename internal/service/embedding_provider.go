package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/timmy/stylematch/internal/domain"
	"github.com/timmy/stylematch/internal/logger"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultImageSize = 224

// Extractor computes the embedding for one image URL.
type Extractor interface {
	Extract(ctx context.Context, imageURL string) (domain.Vector, error)
}

// ProviderConfig holds the preprocessing and validation settings of an
// EmbeddingProvider.
type ProviderConfig struct {
	ImageSize  int // square model input edge in pixels
	Dimensions int // expected vector length; 0 accepts whatever the model returns
}

// EmbeddingProvider turns an image URL into an embedding:
// fetch, decode, infer, extract.
type EmbeddingProvider struct {
	fetcher    Fetcher
	model      ImageModel
	imageSize  int
	dimensions int
	metrics    *Metrics
	tracer     trace.Tracer
	logger     *logger.Logger
}

// NewEmbeddingProvider creates an EmbeddingProvider around an already built model.
func NewEmbeddingProvider(fetcher Fetcher, model ImageModel, cfg ProviderConfig, metrics *Metrics, log *logger.Logger) *EmbeddingProvider {
	size := cfg.ImageSize
	if size <= 0 {
		size = defaultImageSize
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &EmbeddingProvider{
		fetcher:    fetcher,
		model:      model,
		imageSize:  size,
		dimensions: cfg.Dimensions,
		metrics:    metrics,
		tracer:     otel.Tracer(instrumentationName),
		logger:     log,
	}
}

// ModelName returns the name of the wrapped model.
func (p *EmbeddingProvider) ModelName() string {
	return p.model.Name()
}

// Extract implements Extractor. Every failure, including a panic inside the
// model, is returned as *domain.ExtractionError.
func (p *EmbeddingProvider) Extract(ctx context.Context, imageURL string) (vec domain.Vector, err error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "EmbeddingProvider.Extract",
		trace.WithAttributes(attribute.String("image.url", imageURL)))
	defer func() {
		p.metrics.RecordExtraction(ctx, p.model.Name(), time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())

			var extErr *domain.ExtractionError
			if errors.As(err, &extErr) {
				logger.FromContextOr(ctx, p.logger).
					WithField(logger.FieldStage, extErr.Stage).
					WithError(extErr.Err).
					Debugf("Embedding extraction failed for %s", imageURL)
			}
		}
		span.End()
	}()

	data, err := p.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return nil, stageError(imageURL, domain.StageFetch, err)
	}

	img, err := p.decode(data)
	if err != nil {
		return nil, stageError(imageURL, domain.StageDecode, err)
	}

	out, err := p.infer(ctx, img)
	if err != nil {
		return nil, stageError(imageURL, domain.StageInfer, err)
	}

	vec, err = out.Vector()
	if err != nil {
		return nil, stageError(imageURL, domain.StageExtract, err)
	}
	if err := p.validate(vec); err != nil {
		return nil, stageError(imageURL, domain.StageExtract, err)
	}

	logger.With(logger.Fields{
		logger.FieldComponent: "embedding_provider",
		"dimensions":          vec.Dim(),
	}).WithDuration(time.Since(start)).Debug(ctx, "Extracted embedding for %s", imageURL)

	return vec, nil
}

func stageError(imageURL string, stage domain.ExtractionStage, err error) error {
	return &domain.ExtractionError{URL: imageURL, Stage: stage, Err: err}
}

// decode parses the image bytes and produces the model input: an opaque RGB
// square of imageSize pixels, center-cropped on the shorter side.
func (p *EmbeddingProvider) decode(data []byte) (*image.RGBA, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("decoded %s image is empty", format)
	}

	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	crop := image.Rect(x0, y0, x0+side, y0+side)

	dst := image.NewRGBA(image.Rect(0, 0, p.imageSize, p.imageSize))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, xdraw.Over, nil)
	return dst, nil
}

func (p *EmbeddingProvider) infer(ctx context.Context, img *image.RGBA) (out *ModelOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("model", p.model.Name()).Errorf("Recovered panic in model inference: %v", r)
			out, err = nil, fmt.Errorf("model panicked: %v", r)
		}
	}()

	out, err = p.model.Infer(ctx, img)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("model returned no output")
	}
	return out, nil
}

func (p *EmbeddingProvider) validate(vec domain.Vector) error {
	if vec.Dim() == 0 {
		return errors.New("empty embedding")
	}
	if !vec.IsFinite() {
		return errors.New("embedding contains non-finite values")
	}
	if p.dimensions > 0 && vec.Dim() != p.dimensions {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, vec.Dim(), p.dimensions)
	}
	if vec.IsZero() {
		return &domain.DegenerateVectorError{}
	}
	return nil
}
