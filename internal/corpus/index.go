package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Index is the loaded-once passage collection plus a per-source ordered
// sequence used for neighbor lookups.
type Index struct {
	byID     map[string]*Passage
	bySource map[string][]*Passage // sorted by Position
	ordered  []*Passage            // load order, for deterministic iteration
	hash     string
}

// Load builds an Index from the ingestion pipeline's passages. It
// rejects duplicate ids and duplicate (source, position) pairs with a
// CorpusError; upstream formatting is otherwise trusted.
func Load(passages []Passage) (*Index, error) {
	ix := &Index{
		byID:     make(map[string]*Passage, len(passages)),
		bySource: make(map[string][]*Passage),
		ordered:  make([]*Passage, 0, len(passages)),
	}

	for i := range passages {
		p := &passages[i]
		if p.ID == "" {
			return nil, &CorpusError{Reason: fmt.Sprintf("passage at offset %d has empty id", i)}
		}
		if _, dup := ix.byID[p.ID]; dup {
			return nil, &CorpusError{Reason: fmt.Sprintf("duplicate passage id %q", p.ID)}
		}
		ix.byID[p.ID] = p
		ix.bySource[p.SourceID] = append(ix.bySource[p.SourceID], p)
		ix.ordered = append(ix.ordered, p)
	}

	for src, seq := range ix.bySource {
		sort.Slice(seq, func(i, j int) bool { return seq[i].Position < seq[j].Position })
		for i := 1; i < len(seq); i++ {
			if seq[i].Position == seq[i-1].Position {
				return nil, &CorpusError{Reason: fmt.Sprintf(
					"source %q has duplicate position %d (passages %q, %q)",
					src, seq[i].Position, seq[i-1].ID, seq[i].ID)}
			}
		}
	}

	ix.hash = fingerprint(ix.ordered)
	return ix, nil
}

// Len returns the number of passages in the index.
func (ix *Index) Len() int {
	return len(ix.ordered)
}

// Get returns the passage with the given id, or a NotFoundError.
func (ix *Index) Get(id string) (*Passage, error) {
	p, ok := ix.byID[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return p, nil
}

// Passages returns all passages in load order. Callers must not mutate
// the returned records.
func (ix *Index) Passages() []*Passage {
	return ix.ordered
}

// Neighbors returns up to 2*window passages adjacent to id within the
// same source, in position order. The anchor itself is excluded and the
// window is clipped at source boundaries.
func (ix *Index) Neighbors(id string, window int) ([]*Passage, error) {
	anchor, ok := ix.byID[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	if window <= 0 {
		return nil, nil
	}

	seq := ix.bySource[anchor.SourceID]
	at := sort.Search(len(seq), func(i int) bool { return seq[i].Position >= anchor.Position })

	lo := at - window
	if lo < 0 {
		lo = 0
	}
	hi := at + window
	if hi > len(seq)-1 {
		hi = len(seq) - 1
	}

	out := make([]*Passage, 0, hi-lo)
	for i := lo; i <= hi; i++ {
		if i == at {
			continue
		}
		out = append(out, seq[i])
	}
	return out, nil
}

// Fingerprint identifies the loaded corpus content. The embedding cache
// uses it to detect corpus changes across restarts.
func (ix *Index) Fingerprint() string {
	return ix.hash
}

func fingerprint(passages []*Passage) string {
	h := sha256.New()
	for _, p := range passages {
		h.Write([]byte(p.ID))
		h.Write([]byte{0})
		h.Write([]byte(p.Text))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
