package search

// expandContext appends each result's ±window neighbors (same source,
// position order) immediately after their anchor. Anchors keep their
// order and scores; neighbors arrive with zero score and a "neighbor"
// source marker. A running seen-id set keeps the output free of
// duplicates, which also makes re-expansion a no-op for already-present
// ids.
func (e *Engine) expandContext(results []Result, window int) []Result {
	if window <= 0 || len(results) == 0 {
		return results
	}

	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		seen[r.Passage.ID] = struct{}{}
	}

	expanded := make([]Result, 0, len(results)*(1+2*window))
	for _, r := range results {
		expanded = append(expanded, r)

		neighbors, err := e.corpus.Neighbors(r.Passage.ID, window)
		if err != nil {
			continue
		}
		for _, n := range neighbors {
			if _, dup := seen[n.ID]; dup {
				continue
			}
			seen[n.ID] = struct{}{}
			expanded = append(expanded, Result{Passage: n, Source: "neighbor"})
		}
	}

	return expanded
}
