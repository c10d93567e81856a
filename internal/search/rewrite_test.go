package search

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// fakeModel returns a canned completion, or an error when broken.
type fakeModel struct {
	output string
	err    error
	calls  atomic.Int64
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.output}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

func TestRewriteReturnsHypotheticalPassage(t *testing.T) {
	model := &fakeModel{output: "A deadlock occurs when processes wait on each other indefinitely."}
	r := NewRewriter(model)

	got := r.Rewrite(context.Background(), "what is a deadlock")
	if got != model.output {
		t.Errorf("Rewrite = %q, want the model output", got)
	}
}

func TestRewriteFallsBackOnError(t *testing.T) {
	r := NewRewriter(&fakeModel{err: errors.New("provider down")})

	got := r.Rewrite(context.Background(), "what is a deadlock")
	if got != "what is a deadlock" {
		t.Errorf("Rewrite = %q, want the raw query on failure", got)
	}
}

func TestRewriteFallsBackOnEmptyOutput(t *testing.T) {
	r := NewRewriter(&fakeModel{output: "   \n"})

	got := r.Rewrite(context.Background(), "what is a deadlock")
	if got != "what is a deadlock" {
		t.Errorf("Rewrite = %q, want the raw query on empty output", got)
	}
}

func TestRewriteEmptyQuery(t *testing.T) {
	model := &fakeModel{output: "should not be used"}
	r := NewRewriter(model)

	if got := r.Rewrite(context.Background(), "  "); got != "  " {
		t.Errorf("Rewrite = %q, want the query unchanged", got)
	}
	if model.calls.Load() != 0 {
		t.Error("empty query should not reach the model")
	}
}

func TestExpandLexicalQuery(t *testing.T) {
	got := expandLexicalQuery("what is a deadlock")
	want := "what is a deadlock circular wait hold-and-wait mutual exclusion resource allocation graph"
	if got != want {
		t.Errorf("expandLexicalQuery = %q, want %q", got, want)
	}

	// Matching is case-insensitive against the phrase table.
	if got := expandLexicalQuery("Deadlock detection"); !strings.Contains(got, "circular wait") {
		t.Errorf("expandLexicalQuery = %q, want circular wait appended", got)
	}

	// Multiple phrase matches each contribute their terms.
	got = expandLexicalQuery("deadlock during a transaction")
	if !strings.Contains(got, "circular wait") || !strings.Contains(got, "serializability") {
		t.Errorf("expandLexicalQuery = %q, want both expansions", got)
	}

	// Unknown queries pass through unchanged.
	if got := expandLexicalQuery("page replacement policies"); got != "page replacement policies" {
		t.Errorf("expandLexicalQuery = %q, want the query untouched", got)
	}
}

func TestCleanSemanticQuery(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"please explain paging?", "paging"},
		{"explain virtual memory", "virtual memory"},
		{"can you explain the OSI model", "the OSI model"},
		{"what is meant by thrashing??", "thrashing"},
		{"what is a deadlock", "what is a deadlock"},
		{"  deadlock  ", "deadlock"},
	}
	for _, tc := range cases {
		if got := cleanSemanticQuery(tc.in); got != tc.want {
			t.Errorf("cleanSemanticQuery(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRewriteCaches(t *testing.T) {
	model := &fakeModel{output: "Paging divides memory into fixed-size frames."}
	r := NewRewriter(model)

	first := r.Rewrite(context.Background(), "how does paging work")
	// Case and surrounding space normalize to the same cache key.
	second := r.Rewrite(context.Background(), "  How Does Paging Work  ")

	if first != second {
		t.Errorf("cached rewrite differs: %q vs %q", first, second)
	}
	if got := model.calls.Load(); got != 1 {
		t.Errorf("model called %d times, want 1", got)
	}
}

func TestRewriteCacheOrderBookkeeping(t *testing.T) {
	r := NewRewriter(&fakeModel{output: "x"})
	r.maxEntries = 2
	r.ttl = time.Hour

	r.store("a", "va")
	r.store("b", "vb")

	// Expire "a" and let cached() reap it: its order slot must go too.
	entry := r.entries["a"]
	entry.created = time.Now().Add(-2 * time.Hour)
	r.entries["a"] = entry
	if _, ok := r.cached("a"); ok {
		t.Fatal("expired entry served")
	}
	if len(r.order) != len(r.entries) {
		t.Fatalf("order has %d slots for %d entries after expiry", len(r.order), len(r.entries))
	}

	// Re-storing an existing key must not duplicate its slot.
	r.store("b", "vb2")
	r.store("b", "vb3")
	if len(r.order) != len(r.entries) {
		t.Fatalf("order has %d slots for %d entries after re-store", len(r.order), len(r.entries))
	}

	// At capacity the oldest live key goes, never the one just stored.
	r.store("c", "vc")
	r.store("d", "vd")
	if _, ok := r.entries["d"]; !ok {
		t.Error("newest entry evicted")
	}
	if _, ok := r.entries["b"]; ok {
		t.Error("oldest entry survived eviction")
	}
	if len(r.entries) != 2 || len(r.order) != 2 {
		t.Errorf("cache holds %d entries / %d slots, want 2 / 2", len(r.entries), len(r.order))
	}
}
