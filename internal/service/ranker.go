package service

import (
	"math"
	"sort"

	"github.com/timmy/stylematch/internal/domain"
)

// Candidate is a record eligible for ranking. Embedding may be nil, in which
// case the candidate is skipped.
type Candidate struct {
	Record    domain.ProductRecord
	Embedding domain.Vector
}

// CosineSimilarity returns the cosine of the angle between a and b, in [-1, 1].
// Accumulation is done in float64.
func CosineSimilarity(a, b domain.Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, domain.ErrDimensionMismatch
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 || math.IsNaN(dot) || math.IsInf(dot, 0) {
		return 0, &domain.DegenerateVectorError{}
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) {
		return 0, &domain.DegenerateVectorError{}
	}
	return math.Max(-1, math.Min(1, sim)), nil
}

// Rank scores every candidate against reference and returns results ordered
// by descending score. Candidates without an embedding, with a degenerate
// one, or of a different dimension are left out. Equal scores keep their
// input order.
func Rank(reference domain.Vector, candidates []Candidate) []domain.SimilarityResult {
	results := make([]domain.SimilarityResult, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			continue
		}
		score, err := CosineSimilarity(reference, c.Embedding)
		if err != nil {
			continue
		}
		results = append(results, domain.SimilarityResult{
			CandidateID: c.Record.ProductID,
			Score:       score,
			ProductType: c.Record.ProductType,
			DisplayName: c.Record.DisplayName(),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// Trim applies a minimum score and then keeps at most topK results.
// topK <= 0 keeps everything.
func Trim(results []domain.SimilarityResult, topK int, minScore float64) []domain.SimilarityResult {
	out := results[:0:0]
	for _, r := range results {
		if r.Score >= minScore {
			out = append(out, r)
		}
	}
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
