package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/stylematch/internal/domain"
	"github.com/timmy/stylematch/internal/logger"
	"github.com/timmy/stylematch/internal/service"
)

// SimilarityDefaults are applied when a request leaves a parameter unset.
type SimilarityDefaults struct {
	TopK                     int
	MinScore                 float64
	ExcludeReferenceCategory bool
}

// SimilarityHandler handles similarity endpoints.
type SimilarityHandler struct {
	similarityService *service.SimilarityService
	defaults          SimilarityDefaults
}

// NewSimilarityHandler creates a new similarity handler.
// Parameters:
//   - similarityService: similarity service instance.
//   - defaults: values used for omitted query parameters.
// Returns:
//   - *SimilarityHandler: initialized handler.
func NewSimilarityHandler(similarityService *service.SimilarityService, defaults SimilarityDefaults) *SimilarityHandler {
	return &SimilarityHandler{
		similarityService: similarityService,
		defaults:          defaults,
	}
}

type productSummary struct {
	ProductID   string `json:"product_id"`
	ProductType string `json:"product_type"`
	Name        string `json:"name"`
	ImageURL    string `json:"image_url"`
}

type diagnosticView struct {
	ProductID string `json:"product_id"`
	ImageURL  string `json:"image_url,omitempty"`
	Error     string `json:"error"`
}

type statsView struct {
	Candidates int   `json:"candidates"`
	Scored     int   `json:"scored"`
	Returned   int   `json:"returned"`
	Skipped    int   `json:"skipped"`
	CacheHits  int   `json:"cache_hits"`
	DurationMs int64 `json:"duration_ms"`
}

// SimilarResponse is the JSON body of a successful similarity request.
type SimilarResponse struct {
	RunID       string                    `json:"run_id"`
	Reference   productSummary            `json:"reference"`
	Results     []domain.SimilarityResult `json:"results"`
	Diagnostics []diagnosticView          `json:"diagnostics"`
	Stats       statsView                 `json:"stats"`
}

// FindSimilar handles GET /api/v1/products/:id/similar.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SimilarityHandler) FindSimilar(c *gin.Context) {
	req, err := h.parseRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	resp, err := h.similarityService.FindSimilar(c.Request.Context(), req)
	if err != nil {
		status := statusForError(err)
		if status >= http.StatusInternalServerError {
			logger.FromContext(c.Request.Context()).WithError(err).Error("Similarity run failed")
		}
		c.JSON(status, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, toSimilarResponse(resp))
}

// GetCategories handles GET /api/v1/categories.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SimilarityHandler) GetCategories(c *gin.Context) {
	sizes, err := h.similarityService.Categories(c.Request.Context())
	if err != nil {
		c.JSON(statusForError(err), gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"categories": sizes,
	})
}

func (h *SimilarityHandler) parseRequest(c *gin.Context) (*service.SimilarityRequest, error) {
	req := &service.SimilarityRequest{
		ReferenceID:              c.Param("id"),
		TopK:                     h.defaults.TopK,
		ExcludeReferenceCategory: h.defaults.ExcludeReferenceCategory,
	}
	minScore := h.defaults.MinScore

	if raw := c.Query("categories"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			if !domain.IsRecognizedType(part) {
				return nil, errors.New("unknown category " + strconv.Quote(part))
			}
			req.Categories = append(req.Categories, part)
		}
	}

	if raw := c.Query("top_k"); raw != "" {
		topK, err := strconv.Atoi(raw)
		if err != nil || topK < 0 {
			return nil, errors.New("top_k must be a non-negative integer")
		}
		req.TopK = topK
	}

	if raw := c.Query("min_score"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < -1 || v > 1 {
			return nil, errors.New("min_score must be a number in [-1, 1]")
		}
		minScore = v
	}
	req.MinScore = &minScore

	if raw := c.Query("exclude_same_category"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.New("exclude_same_category must be a boolean")
		}
		req.ExcludeReferenceCategory = v
	}

	return req, nil
}

// statusForError maps pipeline errors onto HTTP status codes.
func statusForError(err error) int {
	var (
		refErr *domain.ReferenceMissingError
		catErr *domain.CatalogError
	)
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.As(err, &refErr):
		if refErr.NotInCatalog() {
			return http.StatusNotFound
		}
		return http.StatusUnprocessableEntity
	case errors.As(err, &catErr):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func toSimilarResponse(resp *service.SimilarityResponse) *SimilarResponse {
	out := &SimilarResponse{
		RunID: resp.RunID,
		Reference: productSummary{
			ProductID:   resp.Reference.ProductID,
			ProductType: resp.Reference.ProductType,
			Name:        resp.Reference.DisplayName(),
			ImageURL:    resp.Reference.ImageURL,
		},
		Results:     resp.Results,
		Diagnostics: make([]diagnosticView, 0, len(resp.Diagnostics)),
		Stats: statsView{
			Candidates: resp.Stats.Candidates,
			Scored:     resp.Stats.Scored,
			Returned:   resp.Stats.Returned,
			Skipped:    resp.Stats.Skipped,
			CacheHits:  resp.Stats.CacheHits,
			DurationMs: resp.Stats.Duration.Milliseconds(),
		},
	}
	if out.Results == nil {
		out.Results = []domain.SimilarityResult{}
	}
	for _, d := range resp.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, diagnosticView{
			ProductID: d.ProductID,
			ImageURL:  d.ImageURL,
			Error:     d.Message(),
		})
	}
	return out
}
