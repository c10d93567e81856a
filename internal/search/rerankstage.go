package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/studykit/scholar/internal/corpus"
)

// rerankDocBytes bounds the body text handed to the cross-encoder; the
// breadcrumb plus the opening of a passage is what the model was
// trained on and keeps inference cost flat.
const rerankDocBytes = 512

// candidateText builds the reranker's document representation:
// breadcrumb plus leading body text, newlines flattened.
func candidateText(p *corpus.Passage) string {
	body := strings.ReplaceAll(leading(p.Text, rerankDocBytes), "\n", " ")
	if p.Breadcrumb == "" {
		return body
	}
	return p.Breadcrumb + ". " + body
}

// rerankPool scores every candidate against the query and returns the
// pool sorted descending by model score. The sort is stable, so equal
// scores keep their pre-rerank order.
func (e *Engine) rerankPool(ctx context.Context, query string, pool []scoredPassage) ([]scoredPassage, error) {
	texts := make([]string, len(pool))
	for i, c := range pool {
		texts[i] = candidateText(c.passage)
	}

	scores, err := e.scorer.Score(ctx, query, texts)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(pool) {
		return nil, fmt.Errorf("reranker returned %d scores for %d candidates", len(scores), len(pool))
	}

	reranked := make([]scoredPassage, len(pool))
	for i, c := range pool {
		reranked[i] = scoredPassage{passage: c.passage, score: scores[i]}
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].score > reranked[j].score
	})

	return reranked, nil
}
