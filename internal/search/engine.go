package search

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/studykit/scholar/internal/corpus"
	"github.com/studykit/scholar/internal/embed"
	"github.com/studykit/scholar/internal/rerank"
)

// Mode selects which retrieval channels participate.
type Mode string

const (
	ModeHybrid   Mode = "hybrid"
	ModeLexical  Mode = "lexical"
	ModeSemantic Mode = "semantic"
)

// ParseMode converts a user-supplied mode string.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hybrid":
		return ModeHybrid, nil
	case "lexical", "bm25", "keyword":
		return ModeLexical, nil
	case "semantic", "dense":
		return ModeSemantic, nil
	default:
		return "", errors.New("invalid mode: " + s + " (want hybrid, lexical, or semantic)")
	}
}

// Options configures a single search call.
type Options struct {
	TopK          int
	Mode          Mode
	ExpandContext bool
	ContextWindow int
}

// DefaultOptions returns the default search options.
func DefaultOptions() Options {
	return Options{TopK: 5, Mode: ModeHybrid, ContextWindow: 1}
}

// Result is one final ranked passage. The passage is a read-only
// reference into the corpus index; it is never copied or mutated.
type Result struct {
	Passage *corpus.Passage
	Score   float64
	// Source marks how the result earned its place: "reranked" when the
	// cross-encoder ordered it, the search mode otherwise, "neighbor"
	// for context-expansion additions.
	Source string
}

// Response is the output of one search call. Degraded lists pipeline
// stages that fell back ("semantic", "rerank"); a degraded search still
// returns usable results.
type Response struct {
	Results  []Result
	Degraded []string
}

// Config holds the engine's tuning knobs.
type Config struct {
	BM25   BM25Params
	Fusion FusionConfig
	// ChannelMultiplier and MinChannelFetch size each channel's
	// candidate request: max(TopK*ChannelMultiplier, MinChannelFetch).
	ChannelMultiplier int
	MinChannelFetch   int
	// RerankInput caps how many shaped candidates reach the reranker.
	RerankInput int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		BM25:              DefaultBM25Params(),
		Fusion:            DefaultFusionConfig(),
		ChannelMultiplier: 5,
		MinChannelFetch:   30,
		RerankInput:       30,
	}
}

// Noise tables. Passages of these kinds, or under these headings, never
// answer a question regardless of their term statistics.

var denyKinds = map[corpus.Kind]struct{}{
	corpus.KindExercise:     {},
	corpus.KindReferences:   {},
	corpus.KindBibliography: {},
	corpus.KindCitations:    {},
}

var denyHeadings = []string{
	"references",
	"selected bibliography",
	"bibliography",
	"further reading",
	"appendix",
	"exercises",
	"review questions",
}

// Shaping factors. These bias which candidates reach the reranker; the
// reranker stays authoritative for the final order.
const (
	definitionBoost  = 1.5
	proceduralBoost  = 1.10
	comparativeBoost = 1.05
	negationPenalty  = 0.25
)

// Engine is the top-level hybrid search orchestrator. All fields are
// set at construction and read-only afterwards; an Engine is safe for
// concurrent use.
type Engine struct {
	corpus   *corpus.Index
	bm25     *BM25Index
	dense    *DenseIndex
	scorer   rerank.Scorer
	rewriter *Rewriter
	cfg      Config
}

// EngineOption configures optional engine collaborators.
type EngineOption func(*Engine)

// WithDense attaches the semantic channel. Without it every hybrid
// search runs in lexical-only degraded mode.
func WithDense(d *DenseIndex) EngineOption {
	return func(e *Engine) { e.dense = d }
}

// WithScorer attaches the reranker. Without it results keep the shaped
// fusion ordering.
func WithScorer(s rerank.Scorer) EngineOption {
	return func(e *Engine) { e.scorer = s }
}

// WithRewriter attaches the optional query rewriter feeding the dense
// channel.
func WithRewriter(r *Rewriter) EngineOption {
	return func(e *Engine) { e.rewriter = r }
}

// NewEngine builds the lexical index over the corpus and wires the
// optional collaborators.
func NewEngine(ix *corpus.Index, cfg Config, opts ...EngineOption) *Engine {
	cfg = normalizeConfig(cfg)
	e := &Engine{
		corpus: ix,
		bm25:   NewBM25Index(ix, cfg.BM25),
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	if cfg.ChannelMultiplier <= 0 {
		cfg.ChannelMultiplier = def.ChannelMultiplier
	}
	if cfg.MinChannelFetch <= 0 {
		cfg.MinChannelFetch = def.MinChannelFetch
	}
	if cfg.RerankInput <= 0 {
		cfg.RerankInput = def.RerankInput
	}
	// Below 20 the reranker has too little to reorder, above 50 the
	// per-candidate inference cost dominates the query.
	if cfg.RerankInput < 20 {
		cfg.RerankInput = 20
	}
	if cfg.RerankInput > 50 {
		cfg.RerankInput = 50
	}
	return cfg
}

// Search runs the full pipeline: analyze, retrieve both channels
// concurrently, fuse, filter noise, shape scores, rerank, truncate to
// top-k, and optionally expand context. An empty query returns an empty
// response, not an error. Channel and reranker outages degrade the
// response instead of failing it, except in single-channel modes where
// the typed error propagates.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	opts = normalizeOptions(opts)
	resp := &Response{}

	if strings.TrimSpace(query) == "" {
		return resp, nil
	}

	profile := Analyze(query)

	fetch := opts.TopK * e.cfg.ChannelMultiplier
	if fetch < e.cfg.MinChannelFetch {
		fetch = e.cfg.MinChannelFetch
	}

	// Each channel sees its own rewrite of the query: BM25 gets static
	// synonym expansion, the dense channel gets the cleaned (and
	// optionally LLM-rewritten) form. Intent analysis always runs on the
	// raw query.
	lexQuery := expandLexicalQuery(query)
	denseQuery := cleanSemanticQuery(query)
	if e.rewriter != nil && opts.Mode != ModeLexical {
		denseQuery = e.rewriter.Rewrite(ctx, denseQuery)
	}

	var (
		lexHits []Hit
		semHits []Hit
		semErr  error
		wg      sync.WaitGroup
	)

	if opts.Mode != ModeSemantic {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lexHits = e.bm25.Search(lexQuery, fetch)
		}()
	}
	if opts.Mode != ModeLexical {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if e.dense == nil {
				semErr = &embed.UnavailableError{Err: errors.New("no semantic index configured")}
				return
			}
			semHits, semErr = e.dense.Search(ctx, denseQuery, fetch)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if semErr != nil {
		if opts.Mode == ModeSemantic {
			return nil, semErr
		}
		// Fusion degrades to identity on the lexical ranks.
		resp.Degraded = append(resp.Degraded, "semantic")
		semHits = nil
	}

	fused := FuseRRF(lexHits, semHits, opts.TopK, e.cfg.Fusion)
	pool := e.filterAndShape(fused, profile)

	sort.Slice(pool, func(i, j int) bool {
		delta := pool[i].score - pool[j].score
		if math.Abs(delta) <= 1e-12 {
			return pool[i].passage.ID < pool[j].passage.ID
		}
		return delta > 0
	})
	if len(pool) > e.cfg.RerankInput {
		pool = pool[:e.cfg.RerankInput]
	}

	source := string(opts.Mode)
	if e.scorer != nil && len(pool) > 0 {
		reranked, err := e.rerankPool(ctx, query, pool)
		switch {
		case err == nil:
			pool = reranked
			source = "reranked"
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			resp.Degraded = append(resp.Degraded, "rerank")
		}
	}

	if len(pool) > opts.TopK {
		pool = pool[:opts.TopK]
	}

	resp.Results = make([]Result, 0, len(pool))
	for _, c := range pool {
		resp.Results = append(resp.Results, Result{Passage: c.passage, Score: c.score, Source: source})
	}

	if opts.ExpandContext {
		resp.Results = e.expandContext(resp.Results, opts.ContextWindow)
	}

	return resp, nil
}

func normalizeOptions(opts Options) Options {
	def := DefaultOptions()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.Mode == "" {
		opts.Mode = def.Mode
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = def.ContextWindow
	}
	return opts
}

type scoredPassage struct {
	passage *corpus.Passage
	score   float64
}

// filterAndShape drops noise candidates and applies the intent-driven
// score adjustments. Order of the returned slice is not significant;
// the caller re-sorts.
func (e *Engine) filterAndShape(fused []Candidate, profile Profile) []scoredPassage {
	pool := make([]scoredPassage, 0, len(fused))

	for _, c := range fused {
		p, err := e.corpus.Get(c.ID)
		if err != nil {
			continue
		}

		if _, deny := denyKinds[p.Kind]; deny {
			continue
		}

		headingLower := strings.ToLower(p.Breadcrumb)
		denied := false
		for _, marker := range denyHeadings {
			if strings.Contains(headingLower, marker) {
				denied = true
				break
			}
		}
		if denied {
			continue
		}

		if len(profile.NegativeSignals) > 0 {
			scope := headingLower + " " + strings.ToLower(leading(p.Text, 200))
			for _, sig := range profile.NegativeSignals {
				if strings.Contains(scope, sig) {
					denied = true
					break
				}
			}
			if denied {
				continue
			}
		}

		s := c.Score

		if profile.Concept != "" && passageNegatesConcept(p, profile.Concept) {
			s *= negationPenalty
		}

		switch profile.Intent {
		case IntentDefinition:
			if p.Kind == corpus.KindDefinition &&
				(profile.Concept == "" || passageAboutConcept(p, profile.Concept)) {
				s *= definitionBoost
			}
		case IntentProcedural:
			if p.Kind == corpus.KindAlgorithm || p.Kind == corpus.KindSection {
				s *= proceduralBoost
			}
		case IntentComparative:
			if p.Kind == corpus.KindProtocol || p.Kind == corpus.KindComparison || p.Kind == corpus.KindSection {
				s *= comparativeBoost
			}
		}

		pool = append(pool, scoredPassage{passage: p, score: s})
	}

	return pool
}
