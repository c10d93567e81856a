package search

import (
	"regexp"
	"strings"

	"github.com/studykit/scholar/internal/corpus"
)

// Intent is the query's classified goal, used for score shaping.
type Intent string

const (
	IntentDefinition  Intent = "definition"
	IntentProcedural  Intent = "procedural"
	IntentComparative Intent = "comparative"
	IntentGeneral     Intent = "general"
)

// Profile is the per-query analysis output: intent, the residual
// concept phrase, and domain-specific confuser patterns to downweight.
// It is derived purely from the query text and discarded afterwards.
type Profile struct {
	Intent          Intent
	Concept         string
	NegativeSignals []string
}

// Intent marker tables. Kept as explicit package data so the heuristics
// are auditable and testable independent of the matching code.

var definitionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwhat\s+is\s+(?:a\s+|an\s+|the\s+)?(.+?)(?:\?|$)`),
	regexp.MustCompile(`(?i)\bwhat\s+are\s+(?:the\s+)?(.+?)(?:\?|$)`),
	regexp.MustCompile(`(?i)\bdefine\s+(.+?)(?:\?|$)`),
	regexp.MustCompile(`(?i)\bexplain\s+(?:what\s+is\s+)?(?:a\s+|an\s+|the\s+)?(.+?)(?:\?|$)`),
	regexp.MustCompile(`(?i)\bmeaning\s+of\s+(?:a\s+|an\s+|the\s+)?(.+?)(?:\?|$)`),
	regexp.MustCompile(`(?i)\bdescribe\s+(?:what\s+is\s+)?(?:a\s+|an\s+|the\s+)?(.+?)(?:\?|$)`),
	regexp.MustCompile(`(?i)^(.+?)\s+definition\s*$`),
}

var proceduralPrefixes = []string{
	"how to ", "how do ", "how does ", "explain how ",
}

var proceduralMarkers = []string{
	" step by step", "steps to", "algorithm for", "procedure for",
}

var comparativeMarkers = []string{
	"compare ", " vs ", " versus ", "difference between",
}

var proceduralConcept = regexp.MustCompile(
	`(?i)^(?:explain\s+)?how\s+(?:to\s+|do(?:es)?\s+)?(.+?)(?:\s+works?)?(?:\?|$)`)

var comparativeConcept = regexp.MustCompile(
	`(?i)^(?:compare\s+|(?:what\s+is\s+)?(?:the\s+)?difference\s+between\s+)?(.+?)(?:\?|$)`)

// confuserRule maps a known concept to topically-adjacent patterns that
// retrieval tends to confuse with it. This is static domain
// configuration, not runtime inference.
type confuserRule struct {
	anyOf   []string // rule applies when any of these occurs in the query or concept
	allOf   []string // and all of these occur too
	signals []string
}

var confuserTable = []confuserRule{
	{
		anyOf:   []string{"tcp"},
		allOf:   []string{"handshake"},
		signals: []string{"tls", "record protocol", "authentication protocol"},
	},
	{
		anyOf:   []string{"b+ tree", "b plus tree", "b-tree"},
		signals: []string{"r tree", "r-tree", "generalized search tree"},
	},
	{
		anyOf:   []string{"virtual memory"},
		signals: []string{"virtual machines", "virtual machine"},
	},
}

// Analyze classifies the query's intent, extracts the residual concept
// phrase, and derives negative signals. Pure function of the query text.
func Analyze(query string) Profile {
	q := strings.TrimSpace(query)
	qLower := strings.ToLower(q)

	p := Profile{Intent: IntentGeneral}
	if q == "" {
		return p
	}

	switch {
	case isProcedural(qLower):
		p.Intent = IntentProcedural
		if m := proceduralConcept.FindStringSubmatch(q); m != nil {
			p.Concept = cleanConcept(m[1])
		}
	case isComparative(qLower):
		p.Intent = IntentComparative
		if m := comparativeConcept.FindStringSubmatch(q); m != nil {
			p.Concept = cleanConcept(m[1])
		}
	default:
		for _, pat := range definitionPatterns {
			m := pat.FindStringSubmatch(q)
			if m == nil {
				continue
			}
			p.Intent = IntentDefinition
			p.Concept = cleanConcept(m[1])
			break
		}
	}

	p.NegativeSignals = negativeSignals(qLower, strings.ToLower(p.Concept))
	return p
}

func isProcedural(qLower string) bool {
	for _, prefix := range proceduralPrefixes {
		if strings.HasPrefix(qLower, prefix) {
			return true
		}
	}
	for _, marker := range proceduralMarkers {
		if strings.Contains(qLower, marker) {
			return true
		}
	}
	return false
}

func isComparative(qLower string) bool {
	for _, marker := range comparativeMarkers {
		if strings.Contains(qLower, marker) {
			return true
		}
	}
	if strings.Contains(qLower, "advantages of") && strings.Contains(qLower, "over") {
		return true
	}
	return false
}

func negativeSignals(qLower, conceptLower string) []string {
	var signals []string
	for _, rule := range confuserTable {
		matched := false
		for _, trigger := range rule.anyOf {
			if strings.Contains(qLower, trigger) || strings.Contains(conceptLower, trigger) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		for _, required := range rule.allOf {
			if !strings.Contains(qLower, required) && !strings.Contains(conceptLower, required) {
				matched = false
				break
			}
		}
		if matched {
			signals = append(signals, rule.signals...)
		}
	}
	return signals
}

func cleanConcept(raw string) string {
	c := strings.TrimSpace(raw)
	c = strings.TrimRight(c, "?!.")
	return strings.TrimSpace(c)
}

// passageAboutConcept reports whether the passage's key terms cover the
// concept.
func passageAboutConcept(p *corpus.Passage, concept string) bool {
	c := strings.ToLower(strings.TrimSpace(concept))
	if c == "" {
		return false
	}
	for _, term := range p.KeyTerms {
		if strings.Contains(strings.ToLower(term), c) {
			return true
		}
	}
	return false
}

// passageNegatesConcept reports whether the passage explicitly negates
// the concept, e.g. a "non-deadlock" heading for concept "deadlock".
func passageNegatesConcept(p *corpus.Passage, concept string) bool {
	c := strings.ToLower(strings.TrimSpace(concept))
	if c == "" {
		return false
	}
	scope := strings.ToLower(p.Breadcrumb + " " + leading(p.Text, 200))
	for _, phrase := range []string{"non-" + c, "non " + c, "no " + c, "without " + c} {
		if strings.Contains(scope, phrase) {
			return true
		}
	}
	return false
}

// leading returns the first n bytes of s without splitting the final rune.
func leading(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
