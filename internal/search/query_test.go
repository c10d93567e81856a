package search

import (
	"testing"

	"github.com/studykit/scholar/internal/corpus"
)

func TestAnalyzeIntent(t *testing.T) {
	cases := []struct {
		query   string
		intent  Intent
		concept string
	}{
		{"what is a deadlock", IntentDefinition, "deadlock"},
		{"What is the banker's algorithm?", IntentDefinition, "banker's algorithm"},
		{"what are ACID properties", IntentDefinition, "ACID properties"},
		{"define two phase locking", IntentDefinition, "two phase locking"},
		{"explain the TCP three way handshake", IntentDefinition, "TCP three way handshake"},
		{"meaning of starvation", IntentDefinition, "starvation"},
		{"deadlock definition", IntentDefinition, "deadlock"},

		{"how to detect a deadlock", IntentProcedural, "detect a deadlock"},
		{"how does quicksort work", IntentProcedural, "quicksort"},
		{"explain how paging works step by step", IntentProcedural, ""},
		{"algorithm for topological sort", IntentProcedural, ""},

		{"compare TCP and UDP", IntentComparative, "TCP and UDP"},
		{"mutex vs semaphore", IntentComparative, "mutex vs semaphore"},
		{"difference between process and thread", IntentComparative, "process and thread"},
		{"advantages of B+ trees over hash indexes", IntentComparative, ""},

		{"deadlock", IntentGeneral, ""},
		{"page replacement policies", IntentGeneral, ""},
		{"", IntentGeneral, ""},
	}

	for _, tc := range cases {
		p := Analyze(tc.query)
		if p.Intent != tc.intent {
			t.Errorf("Analyze(%q).Intent = %s, want %s", tc.query, p.Intent, tc.intent)
		}
		if tc.concept != "" && p.Concept != tc.concept {
			t.Errorf("Analyze(%q).Concept = %q, want %q", tc.query, p.Concept, tc.concept)
		}
	}
}

func TestAnalyzePrecedence(t *testing.T) {
	// Procedural markers beat the definition "what is" pattern.
	p := Analyze("what is the procedure for deadlock recovery")
	if p.Intent != IntentProcedural {
		t.Errorf("Intent = %s, want procedural", p.Intent)
	}

	// Comparative markers beat definition patterns too.
	p = Analyze("what is the difference between paging and segmentation")
	if p.Intent != IntentComparative {
		t.Errorf("Intent = %s, want comparative", p.Intent)
	}
}

func TestAnalyzeNegativeSignals(t *testing.T) {
	p := Analyze("explain the TCP three way handshake")
	if len(p.NegativeSignals) == 0 {
		t.Fatal("tcp+handshake should produce negative signals")
	}
	if !containsString(p.NegativeSignals, "tls") {
		t.Errorf("signals = %v, want tls among them", p.NegativeSignals)
	}

	p = Analyze("what is a B+ tree")
	if !containsString(p.NegativeSignals, "r-tree") {
		t.Errorf("signals = %v, want r-tree among them", p.NegativeSignals)
	}

	p = Analyze("how does virtual memory work")
	if !containsString(p.NegativeSignals, "virtual machine") {
		t.Errorf("signals = %v, want virtual machine among them", p.NegativeSignals)
	}

	// TCP alone, without handshake, must not trigger the TLS rule.
	p = Analyze("what is TCP congestion control")
	if containsString(p.NegativeSignals, "tls") {
		t.Errorf("signals = %v; tcp without handshake should not imply tls", p.NegativeSignals)
	}

	if p := Analyze("what is a deadlock"); len(p.NegativeSignals) != 0 {
		t.Errorf("unrelated query produced signals %v", p.NegativeSignals)
	}
}

func TestPassageAboutConcept(t *testing.T) {
	p := &corpus.Passage{KeyTerms: []string{"deadlock", "resource allocation graph"}}
	if !passageAboutConcept(p, "deadlock") {
		t.Error("key term should match the concept")
	}
	if !passageAboutConcept(p, "Deadlock") {
		t.Error("matching is case-insensitive")
	}
	if passageAboutConcept(p, "paging") {
		t.Error("unrelated concept should not match")
	}
	if passageAboutConcept(p, "") {
		t.Error("empty concept never matches")
	}
}

func TestPassageNegatesConcept(t *testing.T) {
	heading := &corpus.Passage{Breadcrumb: "Ch 6 > Non-Deadlock Bugs", Text: "Atomicity violations..."}
	if !passageNegatesConcept(heading, "deadlock") {
		t.Error("non-<concept> heading should negate")
	}

	body := &corpus.Passage{Breadcrumb: "Ch 2", Text: "Systems without deadlock detection rely on timeouts."}
	if !passageNegatesConcept(body, "deadlock") {
		t.Error("'without <concept>' in the leading body should negate")
	}

	deep := &corpus.Passage{Breadcrumb: "Ch 2", Text: string(make([]byte, 300)) + " without deadlock"}
	if passageNegatesConcept(deep, "deadlock") {
		t.Error("negation beyond the leading window should not count")
	}

	plain := &corpus.Passage{Breadcrumb: "Ch 7 > Deadlocks", Text: "A deadlock is..."}
	if passageNegatesConcept(plain, "deadlock") {
		t.Error("plain mention is not a negation")
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
