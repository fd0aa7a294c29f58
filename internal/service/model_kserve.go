package service

import (
	"context"
	"fmt"
	"image"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/stylematch/internal/config"
	"github.com/timmy/stylematch/internal/domain"
)

// CLIP preprocessing constants, per RGB channel.
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

const (
	kserveInputName  = "pixel_values"
	kservePooledName = "pooler_output"
)

// KServeModel talks to a self-hosted CLIP-family model over the KServe v2
// (Open Inference) protocol, e.g. Triton or KServe with a FashionCLIP export.
type KServeModel struct {
	client     *resty.Client
	endpoint   string
	model      string
	outputName string
}

// NewKServeModel creates a KServe v2 inference client.
func NewKServeModel(cfg *config.EmbeddingConfig) *KServeModel {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	client.SetTimeout(cfg.Timeout)
	configureRetry(client, cfg)

	return &KServeModel{
		client:     client,
		endpoint:   fmt.Sprintf("%s/v2/models/%s/infer", strings.TrimSuffix(cfg.BaseURL, "/"), url.PathEscape(cfg.Model)),
		model:      cfg.Model,
		outputName: cfg.OutputName,
	}
}

// Name returns the model name being used
func (m *KServeModel) Name() string {
	return m.model
}

type kserveTensor struct {
	Name     string    `json:"name"`
	Shape    []int     `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float32 `json:"data"`
}

type kserveRequest struct {
	Inputs []kserveTensor `json:"inputs"`
}

type kserveResponse struct {
	ModelName string         `json:"model_name"`
	Outputs   []kserveTensor `json:"outputs"`
	Error     string         `json:"error,omitempty"`
}

// Infer implements ImageModel.
func (m *KServeModel) Infer(ctx context.Context, img *image.RGBA) (*ModelOutput, error) {
	b := img.Bounds()
	req := kserveRequest{
		Inputs: []kserveTensor{{
			Name:     kserveInputName,
			Shape:    []int{1, 3, b.Dy(), b.Dx()},
			Datatype: "FP32",
			Data:     pixelTensor(img),
		}},
	}

	var resp kserveResponse
	httpResp, err := m.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(m.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call inference server: %w", err)
	}

	if httpResp.StatusCode() != 200 {
		if resp.Error != "" {
			return nil, fmt.Errorf("inference server error: %s", resp.Error)
		}
		return nil, fmt.Errorf("inference server error: status %d", httpResp.StatusCode())
	}

	out := m.selectOutput(resp.Outputs)
	if out == nil {
		return nil, fmt.Errorf("inference response has no outputs")
	}
	if out.Name == kservePooledName {
		return &ModelOutput{Pooled: domain.Vector(out.Data)}, nil
	}
	return &ModelOutput{Raw: &Tensor{Shape: out.Shape, Data: out.Data}}, nil
}

func (m *KServeModel) selectOutput(outputs []kserveTensor) *kserveTensor {
	for i := range outputs {
		if outputs[i].Name == m.outputName {
			return &outputs[i]
		}
	}
	if len(outputs) > 0 {
		return &outputs[0]
	}
	return nil
}

// pixelTensor lays img out as CHW float32 values scaled to [0,1] and
// normalized with the CLIP mean and std.
func pixelTensor(img *image.RGBA) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	data := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+3]
			i := y*w + x
			for c := 0; c < 3; c++ {
				data[c*plane+i] = (float32(px[c])/255 - clipMean[c]) / clipStd[c]
			}
		}
	}
	return data
}
