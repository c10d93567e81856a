// Package corpus holds the immutable passage collection the retrieval
// engine searches over.
//
// Passages are produced by the ingestion pipeline and bulk-loaded once at
// startup. After Load the index is strictly read-only, so any number of
// concurrent queries can share it without locking.
package corpus

import "fmt"

// Kind is the categorical tag a passage carries, assigned during
// ingestion. The engine uses it for noise filtering and score shaping.
type Kind string

const (
	KindDefinition   Kind = "definition"
	KindAlgorithm    Kind = "algorithm"
	KindSection      Kind = "section"
	KindExample      Kind = "example"
	KindProtocol     Kind = "protocol"
	KindComparison   Kind = "comparison"
	KindExercise     Kind = "exercise"
	KindReferences   Kind = "references"
	KindBibliography Kind = "bibliography"
	KindCitations    Kind = "citations"
	KindAppendix     Kind = "appendix"
)

// Passage is a single textbook chunk. Instances are immutable once
// loaded; every consumer shares read-only references into the Index.
type Passage struct {
	ID         string   `json:"id"`
	SourceID   string   `json:"book_id"`
	Breadcrumb string   `json:"header_path"`
	Kind       Kind     `json:"chunk_type"`
	KeyTerms   []string `json:"key_terms"`
	Text       string   `json:"text"`
	Position   int      `json:"position"`
	Subject    string   `json:"subject,omitempty"`
}

// CorpusError reports invalid bulk-load input, such as duplicate passage
// ids. A failed Load is fatal: no partially built index is returned.
type CorpusError struct {
	Reason string
}

func (e *CorpusError) Error() string {
	return "corpus: " + e.Reason
}

// NotFoundError reports a passage id missing from the index.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("corpus: passage %q not found", e.ID)
}
