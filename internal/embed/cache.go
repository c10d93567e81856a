package embed

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "modernc.org/sqlite"
)

// Cache persists corpus embedding vectors in SQLite so restarts skip
// the expensive embedding pass. A cache is only valid for the exact
// (corpus fingerprint, model id) pair it was written for; anything else
// reads as a miss and Store rewrites it wholesale.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (or creates) the cache database at path. Use
// ":memory:" for an ephemeral cache.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening embedding cache: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS cache_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS embeddings (
	passage_id TEXT PRIMARY KEY,
	vector     BLOB NOT NULL,
	dimensions INTEGER NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating embedding cache schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Load returns all cached vectors when the stored fingerprint and model
// id match, or nil on a stale or empty cache.
func (c *Cache) Load(fingerprint, modelID string) (map[string][]float32, error) {
	stored, err := c.meta()
	if err != nil {
		return nil, err
	}
	if stored["fingerprint"] != fingerprint || stored["model"] != modelID {
		return nil, nil
	}

	rows, err := c.db.Query("SELECT passage_id, vector FROM embeddings")
	if err != nil {
		return nil, fmt.Errorf("querying embedding cache: %w", err)
	}
	defer rows.Close()

	vectors := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning embedding row: %w", err)
		}
		vectors[id] = bytesToFloat32(blob)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Store replaces the cache contents with the given vectors, keyed by
// the corpus fingerprint and model id.
func (c *Cache) Store(fingerprint, modelID string, vectors map[string][]float32) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("starting cache transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM embeddings"); err != nil {
		return fmt.Errorf("clearing embedding cache: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM cache_meta"); err != nil {
		return fmt.Errorf("clearing cache meta: %w", err)
	}

	for key, value := range map[string]string{"fingerprint": fingerprint, "model": modelID} {
		if _, err := tx.Exec("INSERT INTO cache_meta (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("writing cache meta: %w", err)
		}
	}

	stmt, err := tx.Prepare("INSERT INTO embeddings (passage_id, vector, dimensions) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing embedding insert: %w", err)
	}
	defer stmt.Close()

	for id, vec := range vectors {
		if _, err := stmt.Exec(id, float32ToBytes(vec), len(vec)); err != nil {
			return fmt.Errorf("storing embedding for passage %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing embedding cache: %w", err)
	}
	return nil
}

func (c *Cache) meta() (map[string]string, error) {
	rows, err := c.db.Query("SELECT key, value FROM cache_meta")
	if err != nil {
		return nil, fmt.Errorf("querying cache meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning cache meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// float32ToBytes converts a vector to a little-endian byte blob.
func float32ToBytes(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// bytesToFloat32 converts a little-endian byte blob back to a vector.
func bytesToFloat32(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
