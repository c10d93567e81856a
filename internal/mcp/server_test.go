package mcp

import (
	"encoding/json"
	"testing"

	"github.com/studykit/scholar/internal/corpus"
	"github.com/studykit/scholar/internal/search"
)

func TestSearchPayloadShape(t *testing.T) {
	resp := &search.Response{
		Results: []search.Result{
			{
				Passage: &corpus.Passage{
					ID:         "os-1",
					SourceID:   "os-book",
					Breadcrumb: "Ch 7 > Deadlocks",
					Kind:       corpus.KindDefinition,
					Text:       "A deadlock is...",
				},
				Score:  0.42,
				Source: "reranked",
			},
		},
		Degraded: []string{"semantic"},
	}

	data, err := json.Marshal(searchPayload(resp))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got struct {
		Degraded []string `json:"degraded"`
		Results  []struct {
			ID     string  `json:"id"`
			BookID string  `json:"book_id"`
			Kind   string  `json:"kind"`
			Score  float64 `json:"score"`
			Source string  `json:"source"`
		} `json:"results"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(got.Degraded) != 1 || got.Degraded[0] != "semantic" {
		t.Errorf("degraded = %v, want top-level [semantic]", got.Degraded)
	}
	if len(got.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(got.Results))
	}
	r := got.Results[0]
	if r.ID != "os-1" || r.BookID != "os-book" || r.Kind != "definition" || r.Score != 0.42 || r.Source != "reranked" {
		t.Errorf("unexpected result payload: %+v", r)
	}
}

func TestSearchPayloadEmpty(t *testing.T) {
	data, err := json.Marshal(searchPayload(&search.Response{}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]json.RawMessage
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := got["degraded"]; ok {
		t.Error("empty degraded list should be omitted")
	}
	if string(got["results"]) != "[]" {
		t.Errorf("results = %s, want an empty array, not null", got["results"])
	}
}
