package semantic

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/AtendeAI/atende-mvp/engine/domain"
)

const indexFileName = "index.db"

// LocalStore is a Store persisted as a single SQLite file inside a directory
// fully owned by this subsystem. A rebuild writes a fresh database next to
// the live one and renames it into place, so a crash mid-rebuild never leaves
// a half-written index at the well-known path.
type LocalStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	dir  string
	path string
}

// OpenLocal opens the index at dir, creating an empty one if nothing is
// persisted there yet. Corrupted state surfaces as ErrIndexOpen.
func OpenLocal(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrIndexOpen, dir, err)
	}
	path := filepath.Join(dir, indexFileName)

	db, err := openIndexDB(path)
	if err != nil {
		return nil, err
	}
	return &LocalStore{db: db, dir: dir, path: path}, nil
}

func openIndexDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrIndexOpen, path, err)
	}
	if err := migrateIndex(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrIndexOpen, path, err)
	}
	return db, nil
}

func migrateIndex(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS documents (
			pos       INTEGER PRIMARY KEY,
			content   TEXT NOT NULL,
			metadata  TEXT NOT NULL,
			embedding BLOB NOT NULL
		);
	`)
	return err
}

// Close closes the underlying database.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Dir returns the owned index directory.
func (s *LocalStore) Dir() string { return s.dir }

// Replace implements Store. The new index is built in a temporary file and
// atomically renamed over the live one; the previous contents are gone
// entirely afterwards.
func (s *LocalStore) Replace(ctx context.Context, docs []domain.Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("semantic: %d documents but %d embeddings", len(docs), len(embeddings))
	}

	tmp, err := os.CreateTemp(s.dir, indexFileName+".rebuild-*")
	if err != nil {
		return fmt.Errorf("semantic: rebuild temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	os.Remove(tmpPath) // sqlite wants to create the file itself
	defer os.Remove(tmpPath)

	next, err := openIndexDB(tmpPath)
	if err != nil {
		return err
	}

	if err := writeAll(ctx, next, docs, embeddings); err != nil {
		next.Close()
		return err
	}
	if err := next.Close(); err != nil {
		return fmt.Errorf("semantic: finalize rebuild: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Swap the live handle for the freshly built file.
	s.db.Close()
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("semantic: swap index: %w", err)
	}
	// WAL sidecars belong to the replaced database.
	os.Remove(s.path + "-wal")
	os.Remove(s.path + "-shm")

	db, err := openIndexDB(s.path)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

func writeAll(ctx context.Context, db *sql.DB, docs []domain.Document, embeddings [][]float32) error {
	dims := 0
	if len(embeddings) > 0 {
		dims = len(embeddings[0])
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("semantic: begin rebuild tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('dims', ?)`, strconv.Itoa(dims)); err != nil {
		return fmt.Errorf("semantic: write meta: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (pos, content, metadata, embedding) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("semantic: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, doc := range docs {
		if len(embeddings[i]) != dims {
			return fmt.Errorf("semantic: embedding %d has %d dims, expected %d", i, len(embeddings[i]), dims)
		}
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("semantic: marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, i, doc.Content, string(meta), float32SliceToBytes(embeddings[i])); err != nil {
			return fmt.Errorf("semantic: insert document %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("semantic: commit rebuild: %w", err)
	}
	return nil
}

// Search implements Store with a brute-force cosine scan. The knowledge base
// is small enough that a linear pass beats maintaining an ANN structure.
func (s *LocalStore) Search(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var dimsStr string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'dims'`).Scan(&dimsStr)
	switch {
	case err == sql.ErrNoRows:
		// Freshly created, never rebuilt: an empty index is valid.
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrIndexOpen, s.path, err)
	}
	dims, err := strconv.Atoi(dimsStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: bad dims %q", domain.ErrIndexOpen, s.path, dimsStr)
	}
	if dims > 0 && dims != len(embedding) {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d",
			domain.ErrIndexOpen, len(embedding), dims)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT pos, content, metadata, embedding FROM documents ORDER BY pos`)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrIndexOpen, s.path, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			pos      int
			content  string
			metaJSON string
			blob     []byte
		)
		if err := rows.Scan(&pos, &content, &metaJSON, &blob); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrIndexOpen, s.path, err)
		}
		meta := make(map[string]string)
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrIndexOpen, s.path, err)
		}
		results = append(results, SearchResult{
			ID:      strconv.Itoa(pos),
			Score:   cosineSimilarity(embedding, bytesToFloat32Slice(blob)),
			Content: content,
			Meta:    meta,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrIndexOpen, s.path, err)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count implements Store.
func (s *LocalStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", domain.ErrIndexOpen, s.path, err)
	}
	return n, nil
}

// cosineSimilarity returns the cosine of the angle between a and b, 0 when
// either vector is zero or the lengths differ.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// float32SliceToBytes converts a []float32 to a little-endian byte slice.
func float32SliceToBytes(floats []float32) []byte {
	out := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
