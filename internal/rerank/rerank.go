// Package rerank provides pairwise (query, candidate) relevance scoring
// for the final ordering pass.
//
// The default backend is a local ONNX cross-encoder
// (ms-marco-MiniLM-L-6-v2): one model inference per candidate, far more
// expensive than channel retrieval, so it only ever sees the filtered,
// shaped candidate pool.
package rerank

import "context"

// Scorer scores candidate texts against a query. Higher is more
// relevant; no contract on absolute scale across model versions.
type Scorer interface {
	// Score returns one relevance score per candidate text, in input
	// order.
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// UnavailableError reports that the reranking model could not serve a
// request. The search orchestrator absorbs it by returning the
// pre-rerank ordering; other callers may retry deliberately.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return "reranker unavailable: " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
