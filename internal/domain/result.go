package domain

// SimilarityResult is one ranked candidate. Score is cosine similarity in [-1, 1].
type SimilarityResult struct {
	CandidateID string  `json:"candidate_id"`
	Score       float64 `json:"score"`
	ProductType string  `json:"product_type"`
	DisplayName string  `json:"display_name"`
}

// Diagnostic records why a candidate was left out of a run.
type Diagnostic struct {
	ProductID string `json:"product_id"`
	ImageURL  string `json:"image_url,omitempty"`
	Err       error  `json:"-"`
}

// Message returns the error text for presentation.
func (d Diagnostic) Message() string {
	if d.Err == nil {
		return ""
	}
	return d.Err.Error()
}
