package search

import (
	"math"
	"sort"
)

const defaultRRFK = 60

// FusionConfig holds parameters for Reciprocal Rank Fusion.
type FusionConfig struct {
	// K is the damping constant in 1/(K+rank). Larger values shrink the
	// gap between adjacent ranks so neither channel dominates.
	K int
	// PoolMultiplier sizes the fused candidate pool at top-k times this
	// factor, giving the filter stages headroom.
	PoolMultiplier int
}

// DefaultFusionConfig returns the default fusion parameters.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{K: defaultRRFK, PoolMultiplier: 4}
}

// Candidate is a fused pool entry. Channel ranks are 0-based; -1 marks
// a channel that did not return the passage.
type Candidate struct {
	ID      string
	Score   float64
	LexRank int
	SemRank int
}

// FuseRRF merges the lexical and semantic ranked lists with reciprocal
// rank fusion. Each channel contributes 1/(K+rank) with 0-based ranks;
// a passage absent from a channel contributes 0 from that channel. The
// pool is sorted descending by fused score, ties broken by ascending
// passage id, and truncated to topK * PoolMultiplier (unlimited when
// topK <= 0). Passage ids are unique in the output.
func FuseRRF(lexical, semantic []Hit, topK int, cfg FusionConfig) []Candidate {
	cfg = normalizeFusionConfig(cfg)

	fused := make(map[string]*Candidate, len(lexical)+len(semantic))

	for rank, h := range lexical {
		fused[h.ID] = &Candidate{
			ID:      h.ID,
			Score:   1.0 / float64(cfg.K+rank),
			LexRank: rank,
			SemRank: -1,
		}
	}

	for rank, h := range semantic {
		if entry, ok := fused[h.ID]; ok {
			entry.Score += 1.0 / float64(cfg.K+rank)
			entry.SemRank = rank
			continue
		}
		fused[h.ID] = &Candidate{
			ID:      h.ID,
			Score:   1.0 / float64(cfg.K+rank),
			LexRank: -1,
			SemRank: rank,
		}
	}

	merged := make([]Candidate, 0, len(fused))
	for _, entry := range fused {
		merged = append(merged, *entry)
	}

	sort.Slice(merged, func(i, j int) bool {
		delta := merged[i].Score - merged[j].Score
		if math.Abs(delta) <= 1e-12 {
			return merged[i].ID < merged[j].ID
		}
		return delta > 0
	})

	if topK > 0 {
		limit := topK * cfg.PoolMultiplier
		if len(merged) > limit {
			merged = merged[:limit]
		}
	}

	return merged
}

func normalizeFusionConfig(cfg FusionConfig) FusionConfig {
	if cfg.K <= 0 {
		cfg.K = defaultRRFK
	}
	if cfg.PoolMultiplier <= 0 {
		cfg.PoolMultiplier = 4
	}
	return cfg
}
