// Package embedding maintains the mapping from clinical record to its vector
// representation and answers exact-id and semantic similarity queries.
// SQLite is the durable home of every (entity, chunk, content, vector) tuple;
// the vector index is an external, optional accelerator — when it is not
// provisioned, semantic search degrades to an empty result set instead of
// failing.
package embedding

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clinico/clinico/internal/domain/fault"
	"github.com/clinico/clinico/internal/infra/llm"
	"github.com/clinico/clinico/internal/logger"
	"github.com/clinico/clinico/pkg/uuid"
)

const (
	// singleChunk is the chunk index used while records embed as one chunk.
	singleChunk = 0

	defaultTopK = 10
	maxTopK     = 100

	// exactMatchScore signals an exact-id hit to consumers that compare scores.
	exactMatchScore = 1.0
)

// Record is one persisted embedding.
type Record struct {
	ID         string
	EntityID   string
	ChunkIndex int
	Content    string
	Vector     []float32
	CreatedAt  time.Time
}

// Match is a single ranked result from an embedding query.
type Match struct {
	EntityID string
	Content  string
	Score    float32
}

// Outcome distinguishes why a search produced what it produced. The HTTP
// contract collapses NoMatches and IndexUnavailable into an empty list; the
// distinction exists so operators can alert on an unprovisioned index.
type Outcome string

const (
	OutcomeMatches          Outcome = "matches"
	OutcomeNoMatches        Outcome = "no_matches"
	OutcomeIndexUnavailable Outcome = "index_unavailable"
)

// SearchResult carries ranked matches plus the outcome status.
type SearchResult struct {
	Matches []Match
	Outcome Outcome
}

// Hit is a raw nearest-neighbour result from the vector index.
type Hit struct {
	ID      string
	Content string
	Score   float32
}

// Index is the external vector index port. Implementations must be usable
// before any document has been written ("not yet provisioned" state).
type Index interface {
	// Upsert inserts or replaces the vector stored under id.
	Upsert(ctx context.Context, id, content string, vector []float32) error
	// Query returns up to topK nearest neighbours by cosine similarity,
	// sorted by descending score.
	Query(ctx context.Context, vector []float32, topK int) ([]Hit, error)
	// Delete removes the given ids; missing ids are not an error.
	Delete(ctx context.Context, ids ...string) error
	// Reset drops every stored vector.
	Reset(ctx context.Context) error
}

// Store is the embedding store. index may be nil (not provisioned).
type Store struct {
	db    *sql.DB
	llm   llm.LLMProvider
	index Index
}

// NewStore creates a Store over the given DB, provider and (optional) index.
func NewStore(db *sql.DB, provider llm.LLMProvider, index Index) *Store {
	return &Store{db: db, llm: provider, index: index}
}

// Upsert embeds content and stores the result as the single current record
// for (entityID, chunk 0), replacing whatever was there. The replace happens
// in one transaction so a concurrent reader sees the old record or the new
// one, never both.
func (s *Store) Upsert(ctx context.Context, entityID, content string) (*Record, error) {
	if entityID == "" {
		return nil, fault.Validationf("entity id is empty")
	}
	if strings.TrimSpace(content) == "" {
		return nil, fault.Validationf("content is empty")
	}

	resp, err := s.llm.Embed(ctx, llm.EmbedRequest{Texts: []string{content}})
	if err != nil {
		return nil, fault.Provider("embed content", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fault.Provider("embed content", errors.New("provider returned no vector"))
	}

	rec := &Record{
		ID:         uuid.NewV7().String(),
		EntityID:   entityID,
		ChunkIndex: singleChunk,
		Content:    content,
		Vector:     resp.Embeddings[0],
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.replaceRecord(ctx, rec); err != nil {
		return nil, err
	}

	if s.index != nil {
		if idxErr := s.index.Upsert(ctx, entityID, content, rec.Vector); idxErr != nil {
			// The DB row is the durable truth; a failed index write only costs
			// recall until the next refresh pass rebuilds the index.
			logger.Log.WithField("entity_id", entityID).
				Warnf("vector index upsert failed: %v", idxErr)
		}
	}

	return rec, nil
}

func (s *Store) replaceRecord(ctx context.Context, rec *Record) error {
	vecJSON, err := encodeVector(rec.Vector)
	if err != nil {
		return fmt.Errorf("embedding: encode vector: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("embedding: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM embedding_record WHERE entity_id = ? AND chunk_index = ?",
		rec.EntityID, rec.ChunkIndex,
	); err != nil {
		return fmt.Errorf("embedding: delete prior: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO embedding_record (id, entity_id, chunk_index, content, vector, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EntityID, rec.ChunkIndex, rec.Content, vecJSON,
		rec.CreatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("embedding: insert: %w", err)
	}

	return tx.Commit()
}

// GetByEntityID looks up the current record for an entity. The returned match
// carries score 1.0 so downstream consumers comparing scores treat it as
// exact. Returns nil when no record exists.
func (s *Store) GetByEntityID(ctx context.Context, entityID string) (*Match, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT entity_id, content FROM embedding_record
		WHERE entity_id = ? AND chunk_index = ?
		ORDER BY id LIMIT 1`,
		entityID, singleChunk)

	var m Match
	err := row.Scan(&m.EntityID, &m.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("embedding: get %s: %w", entityID, err)
	}
	m.Score = exactMatchScore
	return &m, nil
}

// SearchSimilar embeds queryText and returns the topK nearest records by
// cosine similarity. topK is clamped to [1, 100] server-side. When the index
// is absent or not ready the result is empty with OutcomeIndexUnavailable —
// callers treat it exactly like zero matches.
func (s *Store) SearchSimilar(ctx context.Context, queryText string, topK int) (*SearchResult, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, fault.Validationf("query is empty")
	}
	topK = clampTopK(topK)

	if s.index == nil {
		logger.Log.Warn("semantic search requested but vector index is not provisioned")
		return &SearchResult{Outcome: OutcomeIndexUnavailable}, nil
	}

	resp, err := s.llm.Embed(ctx, llm.EmbedRequest{Texts: []string{queryText}})
	if err != nil {
		return nil, fault.Provider("embed query", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fault.Provider("embed query", errors.New("provider returned no vector"))
	}

	hits, err := s.index.Query(ctx, resp.Embeddings[0], topK)
	if err != nil {
		// Index trouble degrades to empty, it never surfaces to the caller.
		logger.Log.Warnf("vector index query failed, degrading to empty result: %v", err)
		return &SearchResult{Outcome: OutcomeIndexUnavailable}, nil
	}

	if len(hits) == 0 {
		return &SearchResult{Outcome: OutcomeNoMatches}, nil
	}

	matches := make([]Match, 0, min(topK, len(hits)))
	for i := 0; i < len(hits) && i < topK; i++ {
		matches = append(matches, Match{
			EntityID: hits[i].ID,
			Content:  hits[i].Content,
			Score:    hits[i].Score,
		})
	}
	return &SearchResult{Matches: matches, Outcome: OutcomeMatches}, nil
}

// ReconcileDuplicates enforces the one-current-record invariant: for every
// (entity_id, chunk_index) holding more than one row, the earliest row wins
// and the rest are deleted. Maintenance operation, not on the request path.
// Row ids are UUIDv7, so MIN(id) is the earliest insert.
func (s *Store) ReconcileDuplicates(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM embedding_record
		WHERE id NOT IN (
			SELECT MIN(id) FROM embedding_record GROUP BY entity_id, chunk_index
		)`)
	if err != nil {
		return 0, fmt.Errorf("embedding: reconcile duplicates: %w", err)
	}
	removed, _ := res.RowsAffected()
	if removed > 0 {
		logger.Log.WithField("removed", removed).Warn("reconciled duplicate embedding records")
	}
	return removed, nil
}

// DeleteByEntity removes the entity's records from the DB and the index.
// Used when a record is archived.
func (s *Store) DeleteByEntity(ctx context.Context, entityID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM embedding_record WHERE entity_id = ?", entityID); err != nil {
		return fmt.Errorf("embedding: delete entity %s: %w", entityID, err)
	}
	if s.index != nil {
		if err := s.index.Delete(ctx, entityID); err != nil {
			logger.Log.WithField("entity_id", entityID).
				Warnf("vector index delete failed: %v", err)
		}
	}
	return nil
}

// DeleteAll removes every record and resets the index. Used by the
// scheduler's full-reset mode.
func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM embedding_record"); err != nil {
		return fmt.Errorf("embedding: delete all: %w", err)
	}
	if s.index != nil {
		if err := s.index.Reset(ctx); err != nil {
			return fmt.Errorf("embedding: reset index: %w", err)
		}
	}
	return nil
}

// RebuildIndex loads every persisted record into the vector index. Called at
// process start: the index is in-process and empty after a restart while the
// DB still holds the vectors. No-op when the index is not provisioned.
func (s *Store) RebuildIndex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT entity_id, content, vector FROM embedding_record ORDER BY id")
	if err != nil {
		return 0, fmt.Errorf("embedding: load records: %w", err)
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var entityID, content, vecJSON string
		if err := rows.Scan(&entityID, &content, &vecJSON); err != nil {
			return loaded, fmt.Errorf("embedding: scan record: %w", err)
		}
		vec, decErr := decodeVector(vecJSON)
		if decErr != nil {
			logger.Log.WithField("entity_id", entityID).
				Warnf("skipping malformed vector: %v", decErr)
			continue
		}
		if err := s.index.Upsert(ctx, entityID, content, vec); err != nil {
			return loaded, fmt.Errorf("embedding: index upsert %s: %w", entityID, err)
		}
		loaded++
	}
	return loaded, rows.Err()
}

// CountByEntity returns the number of rows stored for an entity (all chunks).
func (s *Store) CountByEntity(ctx context.Context, entityID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM embedding_record WHERE entity_id = ?", entityID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("embedding: count %s: %w", entityID, err)
	}
	return n, nil
}

func clampTopK(k int) int {
	if k <= 0 {
		return defaultTopK
	}
	if k > maxTopK {
		return maxTopK
	}
	return k
}

// encodeVector serialises a float32 slice to JSON TEXT for storage.
// e.g. [0.1, 0.2, 0.3] → "[0.1,0.2,0.3]"
func encodeVector(vec []float32) (string, error) {
	b, err := json.Marshal(vec)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeVector deserialises a JSON TEXT vector back to []float32.
func decodeVector(jsonStr string) ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal([]byte(jsonStr), &vec); err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	return vec, nil
}
