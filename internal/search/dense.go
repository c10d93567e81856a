package search

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/studykit/scholar/internal/corpus"
	"github.com/studykit/scholar/internal/embed"
)

// DenseIndex ranks passages by embedding-space proximity. Every corpus
// passage is embedded once at build time; queries are embedded per call
// with the same model.
type DenseIndex struct {
	embedder embed.Embedder
	ids      []string
	vectors  [][]float32
}

// DenseIndexConfig controls the one-time corpus embedding pass.
type DenseIndexConfig struct {
	// Cache persists corpus vectors across restarts. Optional.
	Cache *embed.Cache
	// Workers is the embedding worker pool size. Defaults to half the
	// CPUs, minimum 1.
	Workers int
	// BatchSize is the number of texts per embedding call. Default 32.
	BatchSize int
}

// BuildDenseIndex embeds the whole corpus (or restores vectors from the
// cache when the corpus fingerprint still matches) and returns a
// read-only index. Build either completes fully or fails; no partial
// index is ever served.
func BuildDenseIndex(ctx context.Context, ix *corpus.Index, embedder embed.Embedder, cfg DenseIndexConfig) (*DenseIndex, error) {
	passages := ix.Passages()
	d := &DenseIndex{
		embedder: embedder,
		ids:      make([]string, len(passages)),
		vectors:  make([][]float32, len(passages)),
	}
	for i, p := range passages {
		d.ids[i] = p.ID
	}

	if cfg.Cache != nil {
		cached, err := cfg.Cache.Load(ix.Fingerprint(), embedder.ModelID())
		if err == nil && cached != nil {
			complete := true
			for i, id := range d.ids {
				vec, ok := cached[id]
				if !ok {
					complete = false
					break
				}
				d.vectors[i] = vec
			}
			if complete {
				return d, nil
			}
		}
	}

	if err := d.embedCorpus(ctx, passages, cfg); err != nil {
		return nil, &embed.UnavailableError{Err: err}
	}

	if cfg.Cache != nil {
		stored := make(map[string][]float32, len(d.ids))
		for i, id := range d.ids {
			stored[id] = d.vectors[i]
		}
		// Cache write failures are not fatal; the index is already built.
		_ = cfg.Cache.Store(ix.Fingerprint(), embedder.ModelID(), stored)
	}

	return d, nil
}

func (d *DenseIndex) embedCorpus(ctx context.Context, passages []*corpus.Passage, cfg DenseIndexConfig) error {
	workers := cfg.Workers
	if workers < 1 {
		workers = runtime.NumCPU() / 2
		if workers < 1 {
			workers = 1
		}
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return fmt.Errorf("creating embedding pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for start := 0; start < len(passages); start += batchSize {
		end := start + batchSize
		if end > len(passages) {
			end = len(passages)
		}
		start, end := start, end

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()

			texts := make([]string, end-start)
			for i := start; i < end; i++ {
				texts[i-start] = passages[i].Text
			}

			vecs, err := d.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("embedding passages %d-%d: %w", start, end-1, err)
				}
				mu.Unlock()
				return
			}
			for i, vec := range vecs {
				d.vectors[start+i] = vec
			}
		})
		if submitErr != nil {
			wg.Done()
			return fmt.Errorf("submitting embedding batch: %w", submitErr)
		}
	}

	wg.Wait()
	return firstErr
}

// Search embeds the query and returns the topN passages by cosine
// similarity descending, ties broken by ascending passage id. Fails
// with an UnavailableError when the embedding model cannot be reached.
func (d *DenseIndex) Search(ctx context.Context, query string, topN int) ([]Hit, error) {
	qvec, err := d.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &embed.UnavailableError{Err: err}
	}

	hits := make([]Hit, 0, len(d.ids))
	for i, vec := range d.vectors {
		hits = append(hits, Hit{ID: d.ids[i], Score: cosineSimilarity(qvec, vec)})
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
	return hits, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
