package search

import (
	"math"
	"sort"

	"github.com/studykit/scholar/internal/corpus"
)

// BM25Params are the standard BM25 tuning constants: k1 controls term
// frequency saturation, b controls document length normalization.
type BM25Params struct {
	K1 float64
	B  float64
}

// DefaultBM25Params returns the Okapi defaults.
func DefaultBM25Params() BM25Params {
	return BM25Params{K1: 1.5, B: 0.75}
}

type posting struct {
	doc int // index into ids/docLens
	tf  int
}

// BM25Index ranks passages by term-overlap relevance. All term
// statistics are computed once at construction; Search is read-only and
// safe for concurrent use.
type BM25Index struct {
	params   BM25Params
	ids      []string
	docLens  []int
	avgLen   float64
	postings map[string][]posting
	idf      map[string]float64
}

// NewBM25Index builds the lexical index over every passage in the corpus.
func NewBM25Index(ix *corpus.Index, params BM25Params) *BM25Index {
	if params.K1 <= 0 {
		params.K1 = DefaultBM25Params().K1
	}
	if params.B < 0 || params.B > 1 {
		params.B = DefaultBM25Params().B
	}

	passages := ix.Passages()
	b := &BM25Index{
		params:   params,
		ids:      make([]string, len(passages)),
		docLens:  make([]int, len(passages)),
		postings: make(map[string][]posting),
		idf:      make(map[string]float64),
	}

	var totalLen int
	for i, p := range passages {
		b.ids[i] = p.ID
		toks := tokenize(p.Text)
		b.docLens[i] = len(toks)
		totalLen += len(toks)

		tf := make(map[string]int, len(toks))
		for _, t := range toks {
			tf[t]++
		}
		for t, n := range tf {
			b.postings[t] = append(b.postings[t], posting{doc: i, tf: n})
		}
	}

	if len(passages) > 0 {
		b.avgLen = float64(totalLen) / float64(len(passages))
	}

	n := float64(len(passages))
	for t, plist := range b.postings {
		df := float64(len(plist))
		// The +1 inside the log keeps IDF positive for very common terms.
		b.idf[t] = math.Log(1 + (n-df+0.5)/(df+0.5))
	}

	return b
}

// Search returns the topN passages by BM25 score, ties broken by
// ascending passage id. Passages scoring <= 0 are omitted. Identical
// query and corpus always yield the identical ordered list.
func (b *BM25Index) Search(query string, topN int) []Hit {
	terms := tokenize(query)
	if len(terms) == 0 || len(b.ids) == 0 {
		return nil
	}

	scores := make(map[int]float64)
	for _, t := range terms {
		idf, ok := b.idf[t]
		if !ok {
			continue
		}
		for _, p := range b.postings[t] {
			tf := float64(p.tf)
			norm := 1 - b.params.B + b.params.B*float64(b.docLens[p.doc])/b.avgLen
			scores[p.doc] += idf * tf * (b.params.K1 + 1) / (tf + b.params.K1*norm)
		}
	}

	hits := make([]Hit, 0, len(scores))
	for doc, s := range scores {
		if s <= 0 {
			continue
		}
		hits = append(hits, Hit{ID: b.ids[doc], Score: s})
	}

	sort.Slice(hits, func(i, j int) bool {
		delta := hits[i].Score - hits[j].Score
		if math.Abs(delta) <= 1e-12 {
			return hits[i].ID < hits[j].ID
		}
		return delta > 0
	})

	if topN > 0 && len(hits) > topN {
		hits = hits[:topN]
	}
	return hits
}
