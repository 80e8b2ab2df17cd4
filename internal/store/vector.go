package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"nudge/internal/embedding"
	"nudge/internal/logging"
	"nudge/internal/types"
)

// rehydrateVecDims reads the vec0 table's declared dimensionality from the
// schema, so a reopened database serves ANN queries without waiting for the
// next insert. Resets to 0 when the table does not exist.
func (s *ContextStore) rehydrateVecDims() {
	s.vecDims = 0
	var ddl string
	err := s.db.QueryRow(
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'chunk_vec'",
	).Scan(&ddl)
	if err != nil {
		return
	}
	s.vecDims = parseVecDims(ddl)
}

// parseVecDims extracts the dimensionality from a vec0 CREATE statement,
// e.g. "... USING vec0(embedding float[768])". Returns 0 when absent.
func parseVecDims(ddl string) int {
	idx := strings.Index(ddl, "float[")
	if idx < 0 {
		return 0
	}
	var dims int
	if _, err := fmt.Sscanf(ddl[idx:], "float[%d]", &dims); err != nil {
		return 0
	}
	return dims
}

// insertVecRow mirrors a chunk's embedding into the vec0 virtual table,
// creating the table on first use with the observed dimensionality. The vec
// table shares rowids with the chunks table.
func (s *ContextStore) insertVecRow(ctx context.Context, tx *sql.Tx, chunkID, embeddingJSON string, dims int) error {
	if s.vecDims == 0 {
		// A prior rolled-back transaction may have left the cached dims
		// cleared while the table exists; the schema is authoritative.
		s.rehydrateVecDims()
	}
	if s.vecDims == 0 {
		stmt := fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vec USING vec0(embedding float[%d])", dims)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create vec table: %w", err)
		}
		s.vecDims = dims
	}
	if dims != s.vecDims {
		return fmt.Errorf("embedding dimension %d does not match vec table dimension %d", dims, s.vecDims)
	}

	_, err := tx.ExecContext(ctx,
		"INSERT INTO chunk_vec (rowid, embedding) SELECT rowid, ? FROM chunks WHERE id = ?",
		embeddingJSON, chunkID,
	)
	return err
}

// SearchSimilar returns the topK chunks nearest to the query embedding.
// Uses sqlite-vec ANN search when available, otherwise a brute-force cosine
// scan over the stored embeddings.
func (s *ContextStore) SearchSimilar(ctx context.Context, query []float32, topK int) ([]types.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(query) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 10
	}

	if s.vectorExt && s.vecDims == len(query) {
		chunks, err := s.searchSimilarVec(ctx, query, topK)
		if err == nil {
			return chunks, nil
		}
		logging.Get(logging.CategoryStore).Warn("vec search failed, falling back to cosine scan: %v", err)
	}
	return s.searchSimilarScan(ctx, query, topK)
}

// searchSimilarVec runs an ANN query against the vec0 table.
func (s *ContextStore) searchSimilarVec(ctx context.Context, query []float32, topK int) ([]types.Chunk, error) {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.source, c.content, c.topic, c.embedding, c.created_at
		 FROM chunk_vec v
		 JOIN chunks c ON c.rowid = v.rowid
		 WHERE v.embedding MATCH ? AND k = ?
		 ORDER BY v.distance`,
		string(queryJSON), topK,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanChunks(rows)
}

// searchSimilarScan is the brute-force fallback: load every embedded chunk
// and rank by cosine similarity.
func (s *ContextStore) searchSimilarScan(ctx context.Context, query []float32, topK int) ([]types.Chunk, error) {
	timer := logging.StartTimer(logging.CategoryStore, "searchSimilarScan")
	defer timer.Stop()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, source, content, topic, embedding, created_at FROM chunks WHERE embedding IS NOT NULL",
	)
	if err != nil {
		return nil, fmt.Errorf("similarity scan failed: %w", err)
	}
	defer rows.Close()

	candidates, err := s.scanChunks(rows)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(candidates))
	for i := range candidates {
		vectors[i] = candidates[i].Embedding
	}

	top := embedding.FindTopK(query, vectors, topK)
	results := make([]types.Chunk, 0, len(top))
	for _, r := range top {
		results = append(results, candidates[r.Index])
	}
	return results, nil
}

// Stats returns statistics about the store: chunk counts per source and
// embedding coverage.
func (s *ContextStore) Stats() (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]interface{})

	var total int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&total); err != nil {
		return nil, err
	}
	stats["total_chunks"] = total

	var embedded int64
	s.db.QueryRow("SELECT COUNT(*) FROM chunks WHERE embedding IS NOT NULL").Scan(&embedded)
	stats["with_embeddings"] = embedded

	perSource := make(map[string]int64)
	rows, err := s.db.Query("SELECT source, COUNT(*) FROM chunks GROUP BY source")
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var src string
			var n int64
			if err := rows.Scan(&src, &n); err == nil {
				perSource[src] = n
			}
		}
	}
	stats["by_source"] = perSource

	if s.engine != nil {
		stats["embedding_engine"] = s.engine.Name()
	} else {
		stats["embedding_engine"] = "none"
	}
	stats["vector_ext"] = s.vectorExt

	return stats, nil
}

// ReembedAll backfills embeddings for chunks ingested while no embedding
// provider was configured. Returns the number of chunks updated. The
// embedding column is the one exception to the append-only rule: it is
// derived data, not observed content.
func (s *ContextStore) ReembedAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		return 0, fmt.Errorf("no embedding engine configured")
	}

	rows, err := s.db.Query("SELECT id, content FROM chunks WHERE embedding IS NULL")
	if err != nil {
		return 0, err
	}

	type pending struct {
		id      string
		content string
	}
	var todo []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.content); err != nil {
			continue
		}
		todo = append(todo, p)
	}
	rows.Close()

	if len(todo) == 0 {
		return 0, nil
	}

	updated := 0
	batchSize := 32
	for i := 0; i < len(todo); i += batchSize {
		end := i + batchSize
		if end > len(todo) {
			end = len(todo)
		}
		batch := todo[i:end]

		texts := make([]string, len(batch))
		for j, p := range batch {
			texts[j] = p.content
		}

		embeddings, err := s.engine.EmbedBatch(ctx, texts)
		if err != nil {
			return updated, fmt.Errorf("batch embed failed: %w", err)
		}

		for j, p := range batch {
			data, err := json.Marshal(embeddings[j])
			if err != nil {
				continue
			}
			if _, err := s.db.ExecContext(ctx,
				"UPDATE chunks SET embedding = ? WHERE id = ?", string(data), p.id,
			); err != nil {
				return updated, fmt.Errorf("failed to update chunk %s: %w", p.id, err)
			}
			if s.vectorExt {
				tx, err := s.db.BeginTx(ctx, nil)
				if err == nil {
					if err := s.insertVecRow(ctx, tx, p.id, string(data), len(embeddings[j])); err != nil {
						tx.Rollback()
						// The rollback undoes any table creation the cached
						// dims reflect; re-read them from the schema.
						s.rehydrateVecDims()
					} else {
						tx.Commit()
					}
				}
			}
			updated++
		}
	}

	logging.Store("reembedded %d chunks", updated)
	return updated, nil
}
