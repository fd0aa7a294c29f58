package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/stylematch/internal/catalog"
	"github.com/timmy/stylematch/internal/domain"
	"github.com/timmy/stylematch/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultWorkers = 4

// ErrInvalidRequest marks a request the service cannot run as given.
var ErrInvalidRequest = errors.New("invalid similarity request")

// SimilarityService runs the similarity pipeline: load the catalog, bucket it,
// embed the reference and the candidates, rank.
type SimilarityService struct {
	loader    catalog.Loader
	extractor Extractor
	cache     *EmbeddingCache
	metrics   *Metrics
	tracer    trace.Tracer
	logger    *logger.Logger
	workers   int
}

// SimilarityConfig holds configuration for the similarity service
type SimilarityConfig struct {
	Workers int
}

// NewSimilarityService creates a new similarity service. A nil cache gets a
// fresh one; metrics may be nil.
func NewSimilarityService(
	loader catalog.Loader,
	extractor Extractor,
	cache *EmbeddingCache,
	metrics *Metrics,
	log *logger.Logger,
	cfg *SimilarityConfig,
) *SimilarityService {
	workers := defaultWorkers
	if cfg != nil && cfg.Workers > 0 {
		workers = cfg.Workers
	}
	if cache == nil {
		cache = NewEmbeddingCache(metrics)
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &SimilarityService{
		loader:    loader,
		extractor: extractor,
		cache:     cache,
		metrics:   metrics,
		tracer:    otel.Tracer(instrumentationName),
		logger:    log,
		workers:   workers,
	}
}

// log returns a logger from context if available, otherwise returns the service logger
func (s *SimilarityService) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, s.logger)
}

// SimilarityRequest describes one run.
type SimilarityRequest struct {
	ReferenceID string
	// Categories restricts candidates to these buckets; empty means all.
	Categories []string
	// ExcludeReferenceCategory drops the reference's own bucket from the candidates.
	ExcludeReferenceCategory bool
	// TopK keeps at most this many results; 0 keeps all.
	TopK int
	// MinScore drops results scoring below it; nil keeps all.
	MinScore *float64
}

// RunStats summarizes a run.
type RunStats struct {
	Candidates int           `json:"candidates"`
	Scored     int           `json:"scored"`
	Returned   int           `json:"returned"`
	Skipped    int           `json:"skipped"`
	CacheHits  int           `json:"cache_hits"`
	Duration   time.Duration `json:"duration"`
}

// SimilarityResponse is the outcome of a successful run.
type SimilarityResponse struct {
	RunID       string                    `json:"run_id"`
	Reference   domain.ProductRecord      `json:"reference"`
	Results     []domain.SimilarityResult `json:"results"`
	Diagnostics []domain.Diagnostic       `json:"diagnostics"`
	Stats       RunStats                  `json:"stats"`
}

// candidateResult is one resolved candidate, indexed back into catalog order.
type candidateResult struct {
	index  int
	vector domain.Vector
	hit    bool
	err    error
}

// FindSimilar ranks the catalog against the reference product.
//
// Fatal errors: *domain.CatalogError when the catalog cannot be loaded or is
// invalid, *domain.ReferenceMissingError when the reference is unknown or has
// no usable embedding, ErrInvalidRequest for bad request fields, and the
// context error when ctx ends before the results are ready. A candidate that
// cannot be embedded is skipped and reported in Diagnostics.
func (s *SimilarityService) FindSimilar(ctx context.Context, req *SimilarityRequest) (resp *SimilarityResponse, err error) {
	start := time.Now()
	runID := uuid.NewString()

	ctx = s.log(ctx).WithContext(ctx)
	ctx = logger.SetRunID(ctx, runID)
	ctx = logger.SetComponent(ctx, "similarity")
	ctx, span := s.tracer.Start(ctx, "SimilarityService.FindSimilar",
		trace.WithAttributes(attribute.String("run.id", runID)))

	skipped := 0
	defer func() {
		s.metrics.RecordRun(ctx, runOutcome(err), time.Since(start), skipped)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if req == nil || req.ReferenceID == "" {
		return nil, fmt.Errorf("%w: reference id is required", ErrInvalidRequest)
	}
	if req.TopK < 0 {
		return nil, fmt.Errorf("%w: top_k must not be negative", ErrInvalidRequest)
	}
	for _, c := range req.Categories {
		if !domain.IsRecognizedType(c) {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidRequest, c)
		}
	}
	span.SetAttributes(attribute.String("reference.id", req.ReferenceID))

	ctx = logger.WithField(ctx, logger.FieldReferenceID, req.ReferenceID)
	log := s.log(ctx)

	// Load and bucket the catalog.
	records, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	buckets := catalog.Partition(records)
	log.WithFields(logger.Fields{
		logger.FieldCount: len(records),
		"bucketed":        buckets.Total(),
	}).Debug("Catalog partitioned")

	// Resolve the reference.
	ref, ok := findRecord(records, req.ReferenceID)
	if !ok {
		return nil, &domain.ReferenceMissingError{ProductID: req.ReferenceID}
	}

	cacheHits := 0
	refVec, hit, err := s.resolve(ctx, ref)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &domain.ReferenceMissingError{ProductID: ref.ProductID, Err: err}
	}
	if refVec.IsZero() {
		return nil, &domain.ReferenceMissingError{
			ProductID: ref.ProductID,
			Err:       &domain.DegenerateVectorError{ProductID: ref.ProductID},
		}
	}
	if hit {
		cacheHits++
	}

	// Select candidates in catalog order, minus the reference.
	entries := selectCandidates(buckets, ref, req)
	log.WithFields(logger.Fields{
		logger.FieldCount: len(entries),
		"categories":      req.Categories,
	}).Info("Resolving candidate embeddings")

	resolved, hits := s.resolveCandidates(ctx, entries)
	cacheHits += hits
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		candidates  []Candidate
		diagnostics []domain.Diagnostic
	)
	for i, e := range entries {
		r := resolved[i]
		diag := domain.Diagnostic{ProductID: e.Record.ProductID, ImageURL: e.Record.ImageURL}
		switch {
		case r.err != nil:
			diag.Err = r.err
		case r.vector.IsZero():
			diag.Err = &domain.DegenerateVectorError{ProductID: e.Record.ProductID}
		case r.vector.Dim() != refVec.Dim():
			diag.Err = fmt.Errorf("%w: candidate has %d dimensions, reference has %d",
				domain.ErrDimensionMismatch, r.vector.Dim(), refVec.Dim())
		default:
			candidates = append(candidates, Candidate{Record: e.Record, Embedding: r.vector})
			continue
		}
		diagnostics = append(diagnostics, diag)
		log.WithField(logger.FieldProductID, e.Record.ProductID).
			WithError(diag.Err).
			Warn("Skipping candidate")
	}
	skipped = len(diagnostics)

	ranked := Rank(refVec, candidates)
	minScore := -1.0
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	results := Trim(ranked, req.TopK, minScore)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp = &SimilarityResponse{
		RunID:       runID,
		Reference:   ref.WithEmbedding(refVec),
		Results:     results,
		Diagnostics: diagnostics,
		Stats: RunStats{
			Candidates: len(entries),
			Scored:     len(ranked),
			Returned:   len(results),
			Skipped:    skipped,
			CacheHits:  cacheHits,
			Duration:   time.Since(start),
		},
	}

	logger.With(logger.Fields{
		"skipped":    skipped,
		"cache_hits": cacheHits,
	}).WithCount(len(results)).WithDuration(resp.Stats.Duration).Info(ctx, "Similarity run completed")

	return resp, nil
}

// Products loads the catalog as the pipeline would see it.
func (s *SimilarityService) Products(ctx context.Context) ([]domain.ProductRecord, error) {
	return s.loadCatalog(ctx)
}

// Categories returns the bucket sizes of the current catalog. Loaders that
// count by type answer without a full load.
func (s *SimilarityService) Categories(ctx context.Context) (map[string]int, error) {
	if counter, ok := s.loader.(catalog.TypeCounter); ok {
		counts, err := counter.CountByType(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		sizes := make(map[string]int, len(domain.RecognizedTypes))
		for _, t := range domain.RecognizedTypes {
			sizes[t] = counts[t]
		}
		return sizes, nil
	}

	records, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Partition(records).Sizes(), nil
}

// CacheStats returns the embedding cache counters.
func (s *SimilarityService) CacheStats() CacheStats {
	return s.cache.Stats()
}

// ResetCache drops every cached embedding.
func (s *SimilarityService) ResetCache() {
	s.cache.Reset()
}

func (s *SimilarityService) loadCatalog(ctx context.Context) ([]domain.ProductRecord, error) {
	records, err := s.loader.Load(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var catErr *domain.CatalogError
		if errors.As(err, &catErr) {
			return nil, err
		}
		return nil, &domain.CatalogError{Source: "catalog", Err: err}
	}
	if err := catalog.Validate("catalog", records); err != nil {
		return nil, err
	}
	return records, nil
}

// resolve returns the record's embedding, preferring one already attached.
func (s *SimilarityService) resolve(ctx context.Context, r domain.ProductRecord) (domain.Vector, bool, error) {
	if r.HasEmbedding() {
		return r.Embedding, false, nil
	}
	return s.cache.GetOrCompute(ctx, r.ProductID, r.ImageURL, s.extractor)
}

// resolveCandidates embeds every entry with a bounded pool of workers. The
// returned slice is indexed like entries.
func (s *SimilarityService) resolveCandidates(ctx context.Context, entries []catalog.Entry) ([]candidateResult, int) {
	resolved := make([]candidateResult, len(entries))
	if len(entries) == 0 {
		return resolved, 0
	}

	workers := s.workers
	if workers > len(entries) {
		workers = len(entries)
	}

	jobsChan := make(chan int, workers*2)
	resultsChan := make(chan candidateResult, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID, entries, jobsChan, resultsChan)
		}(i)
	}

	var hits int64
	done := make(chan struct{})
	go func() {
		for r := range resultsChan {
			if r.hit {
				atomic.AddInt64(&hits, 1)
			}
			resolved[r.index] = r
		}
		close(done)
	}()

feed:
	for i := range entries {
		select {
		case jobsChan <- i:
		case <-ctx.Done():
			break feed
		}
	}

	close(jobsChan)
	wg.Wait()

	close(resultsChan)
	<-done

	return resolved, int(atomic.LoadInt64(&hits))
}

func (s *SimilarityService) worker(ctx context.Context, workerID int, entries []catalog.Entry, jobs <-chan int, results chan<- candidateResult) {
	ctx = logger.WithField(ctx, logger.FieldWorker, workerID)
	for idx := range jobs {
		if ctx.Err() != nil {
			results <- candidateResult{index: idx, err: ctx.Err()}
			continue
		}

		vec, hit, err := s.resolve(ctx, entries[idx].Record)
		results <- candidateResult{index: idx, vector: vec, hit: hit, err: err}
	}
}

func findRecord(records []domain.ProductRecord, id string) (domain.ProductRecord, bool) {
	for _, r := range records {
		if r.ProductID == id {
			return r, true
		}
	}
	return domain.ProductRecord{}, false
}

func selectCandidates(buckets catalog.Buckets, ref domain.ProductRecord, req *SimilarityRequest) []catalog.Entry {
	types := req.Categories
	if len(types) == 0 {
		types = domain.RecognizedTypes
	}
	if req.ExcludeReferenceCategory {
		filtered := make([]string, 0, len(types))
		for _, t := range types {
			if t != ref.ProductType {
				filtered = append(filtered, t)
			}
		}
		types = filtered
		if len(types) == 0 {
			return nil
		}
	}

	selected := buckets.Select(types...)
	entries := selected[:0:0]
	for _, e := range selected {
		if e.Record.ProductID != ref.ProductID {
			entries = append(entries, e)
		}
	}
	return entries
}

func runOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	var (
		catErr *domain.CatalogError
		refErr *domain.ReferenceMissingError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.As(err, &catErr):
		return "catalog_error"
	case errors.As(err, &refErr):
		return "reference_missing"
	default:
		return "error"
	}
}
