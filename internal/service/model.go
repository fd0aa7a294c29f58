package service

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/timmy/stylematch/internal/config"
	"github.com/timmy/stylematch/internal/domain"
)

// ImageModel turns a preprocessed image into model output. Implementations
// are built once at startup and must be safe for concurrent use.
type ImageModel interface {
	// Name identifies the model in logs and metrics.
	Name() string

	// Infer runs one synchronous inference call.
	Infer(ctx context.Context, img *image.RGBA) (*ModelOutput, error)
}

// Tensor is a dense row-major float tensor.
type Tensor struct {
	Shape []int
	Data  []float32
}

// ModelOutput carries whichever shape the model produced: an already pooled
// vector, or the raw output tensor. Pooled wins when both are set.
type ModelOutput struct {
	Pooled domain.Vector
	Raw    *Tensor
}

// Vector normalizes the output to a single embedding. A raw tensor has its
// singleton dimensions dropped and must then be one-dimensional.
func (o *ModelOutput) Vector() (domain.Vector, error) {
	if o == nil {
		return nil, errors.New("model returned no output")
	}
	if len(o.Pooled) > 0 {
		return o.Pooled.Clone(), nil
	}
	if o.Raw == nil {
		return nil, errors.New("model output has neither pooled nor raw data")
	}
	return o.Raw.squeeze()
}

func (t *Tensor) squeeze() (domain.Vector, error) {
	size := 1
	var dims []int
	for _, d := range t.Shape {
		if d < 0 {
			return nil, fmt.Errorf("invalid tensor shape %v", t.Shape)
		}
		size *= d
		if d != 1 {
			dims = append(dims, d)
		}
	}
	if len(t.Shape) == 0 {
		size = len(t.Data)
		dims = []int{size}
	}
	if size != len(t.Data) {
		return nil, fmt.Errorf("tensor shape %v does not match %d values", t.Shape, len(t.Data))
	}
	if len(dims) > 1 {
		return nil, fmt.Errorf("tensor shape %v is not one-dimensional", t.Shape)
	}
	if size == 0 {
		return nil, errors.New("empty tensor")
	}

	out := make(domain.Vector, size)
	copy(out, t.Data)
	return out, nil
}

// NewImageModel builds the model client selected by cfg.Provider.
func NewImageModel(cfg *config.EmbeddingConfig) (ImageModel, error) {
	switch cfg.Provider {
	case "jina":
		if cfg.APIKey == "" {
			return nil, errors.New("jina provider requires an api key")
		}
		return NewJinaModel(cfg), nil
	case "kserve":
		return NewKServeModel(cfg), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
