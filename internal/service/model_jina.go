package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/stylematch/internal/config"
	"github.com/timmy/stylematch/internal/domain"
)

// JinaModel calls the Jina embeddings API with base64 image input. The API
// returns pooled, normalized vectors.
type JinaModel struct {
	client     *resty.Client
	endpoint   string
	model      string
	dimensions int
}

// NewJinaModel creates a Jina image embedding client.
func NewJinaModel(cfg *config.EmbeddingConfig) *JinaModel {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(cfg.Timeout)
	configureRetry(client, cfg)

	return &JinaModel{
		client:     client,
		endpoint:   strings.TrimSuffix(cfg.BaseURL, "/") + "/embeddings",
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

// Name returns the model name being used
func (m *JinaModel) Name() string {
	return m.model
}

type jinaImageInput struct {
	Image string `json:"image"`
}

type jinaRequest struct {
	Model      string           `json:"model"`
	Dimensions int              `json:"dimensions,omitempty"`
	Normalized bool             `json:"normalized"`
	Input      []jinaImageInput `json:"input"`
}

type jinaResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Detail string `json:"detail,omitempty"`
}

// Infer implements ImageModel.
func (m *JinaModel) Infer(ctx context.Context, img *image.RGBA) (*ModelOutput, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	req := jinaRequest{
		Model:      m.model,
		Dimensions: m.dimensions,
		Normalized: true,
		Input:      []jinaImageInput{{Image: base64.StdEncoding.EncodeToString(buf.Bytes())}},
	}

	var resp jinaResponse
	httpResp, err := m.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(m.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call Jina API: %w", err)
	}

	if httpResp.StatusCode() != 200 {
		if resp.Detail != "" {
			return nil, fmt.Errorf("Jina API error: %s", resp.Detail)
		}
		return nil, fmt.Errorf("Jina API error: status %d", httpResp.StatusCode())
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	return &ModelOutput{Pooled: domain.Vector(resp.Data[0].Embedding)}, nil
}
