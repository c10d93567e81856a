package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// LoadJSONL reads passages from a JSONL file produced by the ingestion
// pipeline, one JSON object per line. If subject is non-empty, passages
// tagged with a different subject are skipped.
//
// Lines without an explicit position are assigned sequential positions
// per source in file order, which preserves the within-book ordering
// the ingestion pipeline emitted.
func LoadJSONL(path, subject string) ([]Passage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus file: %w", err)
	}
	defer f.Close()

	var (
		passages []Passage
		nextPos  = make(map[string]int)
	)

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var raw struct {
			Passage
			Position *int `json:"position"`
		}
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, fmt.Errorf("parsing %s line %d: %w", path, lineNo, err)
		}

		p := raw.Passage
		if subject != "" && p.Subject != "" && p.Subject != subject {
			continue
		}

		if raw.Position != nil {
			p.Position = *raw.Position
			if next := nextPos[p.SourceID]; p.Position >= next {
				nextPos[p.SourceID] = p.Position + 1
			}
		} else {
			p.Position = nextPos[p.SourceID]
			nextPos[p.SourceID]++
		}

		passages = append(passages, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return passages, nil
}
