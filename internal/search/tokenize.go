package search

import (
	"regexp"
	"strings"
)

// Both the BM25 index and incoming queries go through the same
// normalization, otherwise term statistics and query terms drift apart.

var tokenPattern = regexp.MustCompile(`[a-z0-9_]+`)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {},
	"are": {}, "that": {}, "this": {}, "these": {}, "those": {},
	"with": {}, "from": {}, "its": {}, "they": {}, "you": {},
}

func tokenize(text string) []string {
	var out []string
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if len(tok) <= 2 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}
