package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	// rewriteTimeout bounds the LLM call; past it the raw query is used.
	rewriteTimeout = 5 * time.Second

	// rewriteCacheSize is the max number of cached rewrites.
	rewriteCacheSize = 100

	rewriteCacheTTL = time.Hour
)

const hydePrompt = `You are helping retrieve textbook passages. Write a short hypothetical passage (2-4 sentences) that would directly answer the question below, in the style of a computer science textbook. Use precise terminology. Output only the passage text.

Question: %s`

// Static query rewriting. The lexical channel gains recall from synonym
// terms for known phrases; the semantic channel embeds better without
// politeness fluff. Both are pure table-driven functions of the query,
// applied before any LLM rewriting.

type keywordExpansion struct {
	phrase string
	extra  string
}

var keywordExpansions = []keywordExpansion{
	// OS
	{"deadlock", "circular wait hold-and-wait mutual exclusion resource allocation graph"},
	{"critical section", "race condition mutual exclusion synchronization"},
	{"paging", "page table page fault virtual memory"},
	{"segmentation", "segment table segmentation fault memory management"},
	{"scheduling", "cpu scheduling preemptive non-preemptive round-robin priority"},
	// Networks
	{"tcp handshake", "three-way handshake 3-way handshake connection establishment syn ack fin"},
	{"three way handshake", "three-way handshake 3-way handshake connection establishment"},
	{"udp", "user datagram protocol connectionless"},
	{"osi model", "osi reference model seven layers 7 layers"},
	{"routing", "routing algorithms distance vector link state shortest path"},
	{"congestion control", "tcp congestion window slow start congestion avoidance"},
	// Databases
	{"acid", "atomicity consistency isolation durability transaction properties"},
	{"transaction", "commit rollback concurrency serializability schedule"},
	{"normalization", "functional dependency 1nf 2nf 3nf bcnf"},
	{"indexing", "b tree b+ tree index selectivity clustered nonclustered"},
}

var politenessPrefixes = []string{
	"please explain ",
	"can you explain ",
	"what do you mean by ",
	"what is meant by ",
	"explain ",
}

// expandLexicalQuery appends synonym terms for known phrases so BM25
// can match passages using the variant vocabulary. Queries matching no
// phrase pass through unchanged.
func expandLexicalQuery(query string) string {
	qLower := strings.ToLower(query)
	var additions []string
	for _, exp := range keywordExpansions {
		if strings.Contains(qLower, exp.phrase) {
			additions = append(additions, exp.extra)
		}
	}
	if len(additions) == 0 {
		return query
	}
	return query + " " + strings.Join(additions, " ")
}

// cleanSemanticQuery strips politeness prefixes and trailing question
// marks that only add noise to the query embedding.
func cleanSemanticQuery(query string) string {
	q := strings.TrimSpace(query)
	lower := strings.ToLower(q)
	for _, prefix := range politenessPrefixes {
		if strings.HasPrefix(lower, prefix) {
			q = q[len(prefix):]
			break
		}
	}
	q = strings.TrimRight(q, " ?")
	return strings.TrimSpace(q)
}

// Rewriter turns a question into a hypothetical answer passage that
// embeds closer to real textbook passages than the bare question does.
// The rewritten text feeds the semantic channel only; the lexical
// channel always sees the raw query.
type Rewriter struct {
	model      llms.Model
	timeout    time.Duration
	maxEntries int
	ttl        time.Duration

	mu      sync.Mutex
	entries map[string]rewriteEntry
	order   []string // oldest first, one slot per live key
}

type rewriteEntry struct {
	text    string
	created time.Time
}

// NewRewriter wraps an LLM as a query rewriter.
func NewRewriter(model llms.Model) *Rewriter {
	return &Rewriter{
		model:      model,
		timeout:    rewriteTimeout,
		maxEntries: rewriteCacheSize,
		ttl:        rewriteCacheTTL,
		entries:    make(map[string]rewriteEntry),
	}
}

// NewOpenAIRewriter builds a rewriter backed by an OpenAI-compatible
// chat endpoint. Model is required; baseURL and token may be empty for
// the defaults.
func NewOpenAIRewriter(model, baseURL, token string) (*Rewriter, error) {
	opts := []openai.Option{openai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if token != "" {
		opts = append(opts, openai.WithToken(token))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating rewriter model: %w", err)
	}
	return NewRewriter(client), nil
}

// Rewrite returns a hypothetical answer passage for the query. On any
// failure, timeout, or empty model output it returns the query
// unchanged; rewriting never fails a search.
func (r *Rewriter) Rewrite(ctx context.Context, query string) string {
	key := strings.ToLower(strings.TrimSpace(query))
	if key == "" {
		return query
	}

	if text, ok := r.cached(key); ok {
		return text
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := llms.GenerateFromSinglePrompt(callCtx, r.model,
		fmt.Sprintf(hydePrompt, query),
		llms.WithTemperature(0.3),
		llms.WithMaxTokens(200),
	)
	if err != nil {
		return query
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return query
	}

	r.store(key, out)
	return out
}

func (r *Rewriter) cached(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok {
		return "", false
	}
	if time.Since(entry.created) > r.ttl {
		delete(r.entries, key)
		r.dropFromOrder(key)
		return "", false
	}
	return entry.text, true
}

func (r *Rewriter) store(key, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; exists {
		r.dropFromOrder(key)
	} else {
		for len(r.entries) >= r.maxEntries && len(r.order) > 0 {
			oldest := r.order[0]
			r.order = r.order[1:]
			delete(r.entries, oldest)
		}
	}

	r.entries[key] = rewriteEntry{text: text, created: time.Now()}
	r.order = append(r.order, key)
}

// dropFromOrder removes key's slot so order never holds a dead or
// duplicate entry. Caller holds the mutex.
func (r *Rewriter) dropFromOrder(key string) {
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
