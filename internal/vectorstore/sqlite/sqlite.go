// Package sqlite is the persistent vector store. Fragments live in a
// single-file database inside a dedicated data directory; similarity is
// scored in process over unit-normalized vectors, which keeps the store
// a plain durable map and the math identical to the memory store.
package sqlite

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"clinrag/internal/domain"
	"clinrag/internal/filters"
)

// DefaultDataDir is where the index database lives unless configured.
const DefaultDataDir = "data/index"

// DefaultCollection names the fragments table.
const DefaultCollection = "elsol_conversations"

var collectionPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store persists fragments in <dataDir>/index.db. The handle is opened
// lazily under a mutex so concurrent first use initializes exactly once,
// and Reset can destroy the directory and start over.
type Store struct {
	dataDir    string
	collection string

	mu sync.Mutex
	db *sql.DB
}

// New creates a store rooted at dataDir. No I/O happens until first
// use. An invalid collection name falls back to the default.
func New(dataDir, collection string) (*Store, error) {
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	if collection == "" {
		collection = DefaultCollection
	}
	if !collectionPattern.MatchString(collection) {
		return nil, fmt.Errorf("invalid collection name %q", collection)
	}
	return &Store{dataDir: dataDir, collection: collection}, nil
}

// handle opens the database and ensures the schema, once.
func (s *Store) handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	path := filepath.Join(s.dataDir, "index.db")
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		vector BLOB NOT NULL,
		metadata TEXT NOT NULL
	)`, s.collection)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	s.db = db
	return s.db, nil
}

// Upsert writes the whole batch in one transaction, replacing rows that
// share an id.
func (s *Store) Upsert(fragments []domain.Fragment, vectors [][]float64) error {
	if len(fragments) != len(vectors) {
		return errors.New("fragments and vectors length mismatch")
	}
	db, err := s.handle()
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(
		`INSERT INTO %s (id, text, vector, metadata) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET text=excluded.text, vector=excluded.vector, metadata=excluded.metadata`,
		s.collection))
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for i, f := range fragments {
		meta, err := json.Marshal(f.Metadata.AsMap())
		if err != nil {
			return fmt.Errorf("encoding metadata for %s: %w", f.ID, err)
		}
		if _, err := stmt.Exec(f.ID, f.Text, vectorToBytes(vectors[i]), string(meta)); err != nil {
			return fmt.Errorf("upserting %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

// Query scans all rows, keeps those matching pred, and returns the topK
// by dot product against the query vector.
func (s *Store) Query(vector []float64, pred filters.Predicate, topK int) ([]domain.ScoredFragment, error) {
	if topK <= 0 {
		return nil, nil
	}
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(fmt.Sprintf(`SELECT id, text, vector, metadata FROM %s`, s.collection))
	if err != nil {
		return nil, fmt.Errorf("querying fragments: %w", err)
	}
	defer rows.Close()

	var hits []domain.ScoredFragment
	for rows.Next() {
		var (
			id, text, metaJSON string
			blob               []byte
		)
		if err := rows.Scan(&id, &text, &blob, &metaJSON); err != nil {
			return nil, fmt.Errorf("scanning fragment: %w", err)
		}
		var meta map[string]any
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", id, err)
		}
		if pred != nil && !filters.Matches(pred, meta) {
			continue
		}
		frag := domain.Fragment{ID: id, Text: text, Metadata: domain.MetadataFromMap(meta)}
		hits = append(hits, domain.ScoredFragment{Fragment: frag, Score: dot(bytesToVector(blob), vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fragments: %w", err)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Fragment.ID < hits[j].Fragment.ID
	})
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

// Count returns the number of stored fragments.
func (s *Store) Count() (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.collection)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting fragments: %w", err)
	}
	return n, nil
}

// Reset closes the handle and removes the whole data directory. The
// next use recreates both.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("closing database: %w", err)
		}
		s.db = nil
	}
	if err := os.RemoveAll(s.dataDir); err != nil {
		return fmt.Errorf("removing data directory: %w", err)
	}
	return nil
}

// Close releases the database handle if one is open.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func vectorToBytes(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, f := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func bytesToVector(data []byte) []float64 {
	vec := make([]float64, len(data)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return vec
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
