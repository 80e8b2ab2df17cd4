// Package store implements the append-only context store on SQLite. Chunks
// are written once at ingestion and never mutated; every query surface is
// read-only. The store is the only shared mutable resource in the pipeline:
// a single writer (the collector) and many readers (the retriever) are
// coordinated with WAL mode plus an RWMutex, so a reader never observes a
// torn chunk record.
//
// Semantic search uses the sqlite-vec extension when the binary was built
// with it (see init_vec.go); otherwise SearchSimilar falls back to a
// brute-force cosine scan over the stored embeddings.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"nudge/internal/embedding"
	"nudge/internal/logging"
)

// ContextStore is the SQLite-backed chunk repository.
type ContextStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	dbPath    string
	engine    embedding.Engine // optional; nil means no semantic ingestion
	vectorExt bool             // sqlite-vec available
	vecDims   int              // dims of the vec0 table, 0 until created
}

// Open initializes the SQLite database at the given path.
func Open(path string) (*ContextStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	logging.Store("opening context store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set synchronous=NORMAL: %v", err)
	}

	s := &ContextStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.detectVecExtension()
	if s.vectorExt {
		s.rehydrateVecDims()
		logging.Store("sqlite-vec extension detected; ANN search enabled")
	} else {
		logging.StoreDebug("sqlite-vec extension not available; using brute-force cosine scan")
	}

	return s, nil
}

// initialize creates the required tables.
func (s *ContextStore) initialize() error {
	chunkTable := `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		content TEXT NOT NULL,
		topic TEXT,
		embedding TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_source_time ON chunks(source, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_chunks_time ON chunks(created_at DESC);
	`

	entityTable := `
	CREATE TABLE IF NOT EXISTS chunk_entities (
		chunk_id TEXT NOT NULL REFERENCES chunks(id),
		type TEXT NOT NULL,
		value TEXT NOT NULL,
		position INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entities_type_value ON chunk_entities(type, value);
	CREATE INDEX IF NOT EXISTS idx_entities_chunk ON chunk_entities(chunk_id);
	`

	for _, stmt := range []string{chunkTable, entityTable} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// detectVecExtension probes for the sqlite-vec extension.
func (s *ContextStore) detectVecExtension() {
	var version string
	if err := s.db.QueryRow("SELECT vec_version()").Scan(&version); err == nil {
		s.vectorExt = true
		logging.StoreDebug("sqlite-vec version %s", version)
	}
}

// SetEmbeddingEngine configures the optional embedding engine. Must be set
// before ingestion for chunks to carry embeddings; a nil engine is valid and
// means semantic search is unavailable.
func (s *ContextStore) SetEmbeddingEngine(engine embedding.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = engine
}

// EmbeddingEngine returns the configured engine, or nil.
func (s *ContextStore) EmbeddingEngine() embedding.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// HasVectorExt reports whether sqlite-vec ANN search is available.
func (s *ContextStore) HasVectorExt() bool {
	return s.vectorExt
}

// Path returns the database file path.
func (s *ContextStore) Path() string {
	return s.dbPath
}

// Close closes the underlying database.
func (s *ContextStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
