// chromem-go adapter for the Index port.
// chromem-go is a pure-Go embedded vector database; vectors live in process
// memory and are rebuilt from SQLite at startup via Store.RebuildIndex.
package embedding

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

const collectionName = "clinical_records"

// ChromemIndex implements Index on top of a chromem-go collection.
type ChromemIndex struct {
	db  *chromem.DB
	col *chromem.Collection
}

// NewChromemIndex creates an empty in-memory index.
func NewChromemIndex() (*ChromemIndex, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(
		collectionName,
		nil, // no collection metadata
		nil, // embeddings are always supplied by the caller
	)
	if err != nil {
		return nil, fmt.Errorf("chromem: create collection: %w", err)
	}
	return &ChromemIndex{db: db, col: col}, nil
}

// Upsert inserts or replaces the vector stored under id.
func (x *ChromemIndex) Upsert(ctx context.Context, id, content string, vector []float32) error {
	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Embedding: vector,
	}
	if err := x.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("chromem: add document %s: %w", id, err)
	}
	return nil
}

// Query returns up to topK nearest neighbours by cosine similarity.
// chromem rejects nResults larger than the collection, so topK is capped at
// the current document count; an empty collection yields no hits.
func (x *ChromemIndex) Query(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	count := x.col.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := x.col.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{ID: r.ID, Content: r.Content, Score: r.Similarity}
	}
	return hits, nil
}

// Delete removes the given ids; unknown ids are ignored.
func (x *ChromemIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := x.col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("chromem: delete: %w", err)
	}
	return nil
}

// Reset drops and recreates the collection.
func (x *ChromemIndex) Reset(_ context.Context) error {
	if err := x.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("chromem: delete collection: %w", err)
	}
	col, err := x.db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return fmt.Errorf("chromem: recreate collection: %w", err)
	}
	x.col = col
	return nil
}
