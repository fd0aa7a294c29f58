package service

import (
	"context"
	"errors"
	"time"

	"github.com/timmy/stylematch/internal/domain"
	"github.com/timmy/stylematch/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/timmy/stylematch/internal/service"

// Metrics holds the similarity pipeline instruments. A nil *Metrics records nothing.
type Metrics struct {
	meter  metric.Meter
	logger *logger.Logger

	extractDuration metric.Float64Histogram
	extractErrors   metric.Int64Counter
	cacheLookups    metric.Int64Counter
	runs            metric.Int64Counter
	runDuration     metric.Float64Histogram
	skipped         metric.Int64Counter
}

// NewMetrics creates Metrics on the global meter provider.
func NewMetrics(log *logger.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), log)
}

func newMetrics(meter metric.Meter, log *logger.Logger) *Metrics {
	if log == nil {
		log = logger.GetDefault()
	}
	m := &Metrics{meter: meter, logger: log}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.extractDuration, err = m.meter.Float64Histogram(
		"stylematch.embedding.extraction_duration_seconds",
		metric.WithDescription("Duration of image embedding extraction (fetch, decode, infer), labeled by model and outcome"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		m.logger.WithError(err).Warn("failed to create extraction duration histogram")
	}

	m.extractErrors, err = m.meter.Int64Counter(
		"stylematch.embedding.errors_total",
		metric.WithDescription("Embedding extraction failures by pipeline stage"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.WithError(err).Warn("failed to create extraction errors counter")
	}

	m.cacheLookups, err = m.meter.Int64Counter(
		"stylematch.embedding.cache_lookups_total",
		metric.WithDescription("Embedding cache lookups, labeled hit or miss"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		m.logger.WithError(err).Warn("failed to create cache lookups counter")
	}

	m.runs, err = m.meter.Int64Counter(
		"stylematch.similarity.runs_total",
		metric.WithDescription("Similarity runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		m.logger.WithError(err).Warn("failed to create runs counter")
	}

	m.runDuration, err = m.meter.Float64Histogram(
		"stylematch.similarity.run_duration_seconds",
		metric.WithDescription("End-to-end duration of a similarity run"),
		metric.WithUnit("s"),
	)
	if err != nil {
		m.logger.WithError(err).Warn("failed to create run duration histogram")
	}

	m.skipped, err = m.meter.Int64Counter(
		"stylematch.similarity.candidates_skipped_total",
		metric.WithDescription("Candidates left out of a ranking because no usable embedding was available"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		m.logger.WithError(err).Warn("failed to create skipped candidates counter")
	}
}

// RecordExtraction records one provider call.
func (m *Metrics) RecordExtraction(ctx context.Context, model string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if m.extractDuration != nil {
		m.extractDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("outcome", outcome),
		))
	}

	if err != nil && m.extractErrors != nil {
		stage := "unknown"
		var extErr *domain.ExtractionError
		if errors.As(err, &extErr) {
			stage = string(extErr.Stage)
		}
		m.extractErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("stage", stage),
		))
	}
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil || m.cacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordRun records a finished run. outcome is "ok" or an error class.
func (m *Metrics) RecordRun(ctx context.Context, outcome string, duration time.Duration, skipped int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if m.runs != nil {
		m.runs.Add(ctx, 1, attrs)
	}
	if m.runDuration != nil {
		m.runDuration.Record(ctx, duration.Seconds(), attrs)
	}
	if skipped > 0 && m.skipped != nil {
		m.skipped.Add(ctx, int64(skipped))
	}
}
