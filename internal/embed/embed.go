// Package embed provides text-to-vector embedding for the semantic
// retrieval channel.
//
// Two backends:
// - local: ONNX MiniLM inference, no network (default)
// - remote: any OpenAI-compatible /v1/embeddings endpoint
//
// Corpus vectors are computed once at index build and cached in SQLite,
// keyed by the corpus fingerprint and model id.
package embed

import "context"

// Embedder generates embedding vectors from text. Implementations must
// be deterministic: identical text and model version yield identical
// vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the vector width, or 0 if not yet known.
	Dimensions() int
	// ModelID identifies the model version for cache keying.
	ModelID() string
}

// UnavailableError reports that the embedding model could not serve a
// request. The search orchestrator absorbs it by degrading to
// lexical-only retrieval; other callers may retry deliberately.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return "embedding model unavailable: " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
