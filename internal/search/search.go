// Package search implements hybrid retrieval over a loaded corpus.
//
// Two independent channels, both deterministic:
// - lexical: in-memory BM25 over the shared tokenizer
// - semantic: exact cosine similarity over cached embedding vectors
//
// The default hybrid mode combines both with reciprocal rank fusion,
// filters noise passages, shapes scores by query intent, and hands the
// surviving pool to a cross-encoder reranker for the final ordering.
package search

// Hit is one retrieval channel's scored result. A hit's rank within its
// channel is its slice position, 0-based, strictly increasing with
// decreasing relevance.
type Hit struct {
	ID    string
	Score float64
}
