package domain

import (
	"errors"
	"fmt"
)

// ErrDimensionMismatch is returned when two vectors of different length are compared.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// ExtractionStage names the step of the embedding pipeline that failed.
type ExtractionStage string

const (
	StageFetch   ExtractionStage = "fetch"
	StageDecode  ExtractionStage = "decode"
	StageInfer   ExtractionStage = "infer"
	StageExtract ExtractionStage = "extract"
)

// CatalogError means the catalog could not be read or is malformed.
// It is fatal: the run aborts before partitioning.
type CatalogError struct {
	Source string
	Line   int // 1-based line for file catalogs, 0 when not applicable
	Err    error
}

func (e *CatalogError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("catalog %s: line %d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("catalog %s: %v", e.Source, e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// ReferenceMissingError means the reference product is not in the catalog,
// or its embedding could not be computed. It is fatal for the run.
type ReferenceMissingError struct {
	ProductID string
	Err       error // nil when the id is simply unknown
}

func (e *ReferenceMissingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("reference product %s not found in catalog", e.ProductID)
	}
	return fmt.Sprintf("reference product %s has no usable embedding: %v", e.ProductID, e.Err)
}

func (e *ReferenceMissingError) Unwrap() error { return e.Err }

// NotInCatalog reports whether the reference id itself was unknown.
func (e *ReferenceMissingError) NotInCatalog() bool {
	return e.Err == nil
}

// ExtractionError wraps any failure turning an image URL into an embedding.
// For candidates it is recoverable: the candidate is skipped.
type ExtractionError struct {
	URL   string
	Stage ExtractionStage
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract embedding for %s: %s: %v", e.URL, e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// DegenerateVectorError means a zero-magnitude vector reached scoring.
type DegenerateVectorError struct {
	ProductID string
}

func (e *DegenerateVectorError) Error() string {
	if e.ProductID == "" {
		return "zero-magnitude vector"
	}
	return fmt.Sprintf("zero-magnitude vector for product %s", e.ProductID)
}
