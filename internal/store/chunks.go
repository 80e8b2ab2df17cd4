package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nudge/internal/logging"
	"nudge/internal/types"
)

// Insert appends a chunk to the store. An empty ID is assigned a fresh UUID
// and a zero timestamp is set to now; everything else is written exactly as
// given and never mutated afterwards. The chunk row, its entity rows, and
// its vector-index row commit in one transaction so readers never observe a
// partial record.
func (s *ContextStore) Insert(ctx context.Context, chunk *types.Chunk) error {
	if chunk == nil {
		return fmt.Errorf("nil chunk")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if chunk.ID == "" {
		chunk.ID = uuid.NewString()
	}
	if chunk.Timestamp.IsZero() {
		chunk.Timestamp = time.Now()
	}

	var embeddingJSON sql.NullString
	if len(chunk.Embedding) > 0 {
		data, err := json.Marshal(chunk.Embedding)
		if err != nil {
			return fmt.Errorf("failed to serialize embedding: %w", err)
		}
		embeddingJSON = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO chunks (id, source, content, topic, embedding, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		chunk.ID, string(chunk.Source), chunk.Content, chunk.Topic, embeddingJSON, chunk.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	for i, ent := range chunk.Entities {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO chunk_entities (chunk_id, type, value, position) VALUES (?, ?, ?, ?)",
			chunk.ID, string(ent.Type), ent.Value, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert entity: %w", err)
		}
	}

	if s.vectorExt && embeddingJSON.Valid {
		if err := s.insertVecRow(ctx, tx, chunk.ID, embeddingJSON.String, len(chunk.Embedding)); err != nil {
			// ANN indexing is an optimization; the JSON embedding on the
			// chunk row still serves the brute-force path.
			logging.Get(logging.CategoryStore).Warn("vec index insert failed for %s: %v", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		if s.vectorExt {
			s.rehydrateVecDims()
		}
		return fmt.Errorf("failed to commit chunk: %w", err)
	}

	logging.StoreDebug("inserted chunk %s source=%s entities=%d embedded=%v",
		chunk.ID, chunk.Source, len(chunk.Entities), embeddingJSON.Valid)
	return nil
}

// Recent returns the most recent chunks, newest first. An empty source
// matches any source.
func (s *ContextStore) Recent(source types.Source, limit int) ([]types.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	var rows *sql.Rows
	var err error
	if source == "" {
		rows, err = s.db.Query(
			"SELECT id, source, content, topic, embedding, created_at FROM chunks ORDER BY created_at DESC, rowid DESC LIMIT ?",
			limit,
		)
	} else {
		rows, err = s.db.Query(
			"SELECT id, source, content, topic, embedding, created_at FROM chunks WHERE source = ? ORDER BY created_at DESC, rowid DESC LIMIT ?",
			string(source), limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("recent query failed: %w", err)
	}
	defer rows.Close()

	return s.scanChunks(rows)
}

// SearchText returns chunks whose content contains the query,
// case-insensitively, newest first.
func (s *ContextStore) SearchText(query string, limit int) ([]types.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(
		"SELECT id, source, content, topic, embedding, created_at FROM chunks WHERE instr(lower(content), lower(?)) > 0 ORDER BY created_at DESC, rowid DESC LIMIT ?",
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("text search failed: %w", err)
	}
	defer rows.Close()

	return s.scanChunks(rows)
}

// GetByEntity returns chunks carrying an entity of the given type whose
// value matches case-insensitively as a substring in either direction,
// newest first.
func (s *ContextStore) GetByEntity(entityType types.EntityType, value string) ([]types.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if value == "" {
		return nil, nil
	}

	rows, err := s.db.Query(
		`SELECT DISTINCT c.id, c.source, c.content, c.topic, c.embedding, c.created_at
		 FROM chunks c
		 JOIN chunk_entities e ON e.chunk_id = c.id
		 WHERE e.type = ?
		   AND (instr(lower(e.value), lower(?)) > 0 OR instr(lower(?), lower(e.value)) > 0)
		 ORDER BY c.created_at DESC`,
		string(entityType), value, value,
	)
	if err != nil {
		return nil, fmt.Errorf("entity query failed: %w", err)
	}
	defer rows.Close()

	return s.scanChunks(rows)
}

// Count returns the total number of stored chunks.
func (s *ContextStore) Count() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return n, nil
}

// scanChunks materializes chunk rows and attaches their entities. Callers
// hold at least a read lock.
func (s *ContextStore) scanChunks(rows *sql.Rows) ([]types.Chunk, error) {
	var chunks []types.Chunk
	for rows.Next() {
		var c types.Chunk
		var source string
		var topic, embeddingJSON sql.NullString

		if err := rows.Scan(&c.ID, &source, &c.Content, &topic, &embeddingJSON, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.Source = types.Source(source)
		c.Topic = topic.String
		if embeddingJSON.Valid {
			// A corrupt embedding only disables the semantic signal for
			// this chunk; the chunk itself stays retrievable.
			if err := json.Unmarshal([]byte(embeddingJSON.String), &c.Embedding); err != nil {
				logging.Get(logging.CategoryStore).Warn("corrupt embedding on chunk %s: %v", c.ID, err)
			}
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range chunks {
		ents, err := s.loadEntities(chunks[i].ID)
		if err != nil {
			return nil, err
		}
		chunks[i].Entities = ents
	}
	return chunks, nil
}

// loadEntities returns a chunk's entities in extraction order.
func (s *ContextStore) loadEntities(chunkID string) ([]types.Entity, error) {
	rows, err := s.db.Query(
		"SELECT type, value FROM chunk_entities WHERE chunk_id = ? ORDER BY position",
		chunkID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load entities: %w", err)
	}
	defer rows.Close()

	var ents []types.Entity
	for rows.Next() {
		var t, v string
		if err := rows.Scan(&t, &v); err != nil {
			return nil, err
		}
		ents = append(ents, types.Entity{Type: types.EntityType(t), Value: v})
	}
	return ents, rows.Err()
}
