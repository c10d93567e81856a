package search

import "testing"

func TestExpandContextWindowOne(t *testing.T) {
	ix := studyIndex(t)
	e := NewEngine(ix, DefaultConfig())

	d2, err := ix.Get("os-d2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	results := []Result{{Passage: d2, Score: 1.0, Source: "lexical"}}
	expanded := e.expandContext(results, 1)

	want := []string{"os-d2", "os-d1", "os-d3"}
	if len(expanded) != len(want) {
		t.Fatalf("got %d results, want %d (%v)", len(expanded), len(want), want)
	}
	for i, id := range want {
		if expanded[i].Passage.ID != id {
			t.Errorf("position %d = %s, want %s", i, expanded[i].Passage.ID, id)
		}
	}

	if expanded[0].Source != "lexical" || expanded[0].Score != 1.0 {
		t.Error("anchor lost its source or score")
	}
	for _, r := range expanded[1:] {
		if r.Source != "neighbor" {
			t.Errorf("neighbor %s source = %q", r.Passage.ID, r.Source)
		}
		if r.Score != 0 {
			t.Errorf("neighbor %s carries score %v", r.Passage.ID, r.Score)
		}
	}
}

func TestExpandContextNoDuplicates(t *testing.T) {
	ix := studyIndex(t)
	e := NewEngine(ix, DefaultConfig())

	d1, _ := ix.Get("os-d1")
	d2, _ := ix.Get("os-d2")

	// d1 and d2 are each other's neighbors; neither may reappear.
	results := []Result{
		{Passage: d1, Score: 2.0, Source: "lexical"},
		{Passage: d2, Score: 1.0, Source: "lexical"},
	}
	expanded := e.expandContext(results, 1)

	seen := map[string]int{}
	for _, r := range expanded {
		seen[r.Passage.ID]++
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("passage %s appears %d times", id, n)
		}
	}
	// d2 stays in its anchor slot, not as d1's neighbor.
	if expanded[1].Passage.ID == "os-d2" && expanded[1].Source == "neighbor" {
		t.Error("anchor demoted to neighbor")
	}
}

func TestExpandContextIdempotent(t *testing.T) {
	ix := studyIndex(t)
	e := NewEngine(ix, DefaultConfig())

	d2, _ := ix.Get("os-d2")
	once := e.expandContext([]Result{{Passage: d2, Score: 1.0, Source: "lexical"}}, 1)
	twice := e.expandContext(once, 1)

	seen := map[string]int{}
	for _, r := range twice {
		seen[r.Passage.ID]++
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("re-expansion duplicated passage %s (%d times)", id, n)
		}
	}
	// Already-present ids keep their original slots.
	for i, r := range once {
		if twice[i].Passage.ID != r.Passage.ID {
			t.Errorf("position %d changed from %s to %s on re-expansion", i, r.Passage.ID, twice[i].Passage.ID)
		}
	}

	// A set already covering its whole source is a strict no-op.
	tcp, _ := ix.Get("net-tcp")
	tls, _ := ix.Get("net-tls")
	full := []Result{
		{Passage: tcp, Score: 2.0, Source: "lexical"},
		{Passage: tls, Score: 1.0, Source: "lexical"},
	}
	expanded := e.expandContext(full, 1)
	again := e.expandContext(expanded, 1)
	if len(again) != len(full) {
		t.Fatalf("closed set grew from %d to %d results", len(full), len(again))
	}
	for i := range full {
		if again[i].Passage.ID != full[i].Passage.ID {
			t.Errorf("position %d = %s, want %s", i, again[i].Passage.ID, full[i].Passage.ID)
		}
	}
}

func TestExpandContextZeroWindow(t *testing.T) {
	ix := studyIndex(t)
	e := NewEngine(ix, DefaultConfig())

	d1, _ := ix.Get("os-d1")
	results := []Result{{Passage: d1, Score: 1.0, Source: "lexical"}}

	expanded := e.expandContext(results, 0)
	if len(expanded) != 1 {
		t.Errorf("window 0 should be a no-op, got %d results", len(expanded))
	}
}
