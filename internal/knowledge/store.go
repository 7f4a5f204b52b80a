// Package knowledge stores embedded repair-document chunks in Postgres
// and serves nearest-neighbour searches over them via pgvector.
package knowledge

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// Common store errors.
var (
	ErrNotFound = errors.New("resource not found")
)

// ScoredChunk pairs a stored chunk with its cosine similarity to the
// query vector (1.0 identical, 0.0 orthogonal).
type ScoredChunk struct {
	Chunk      models.DocChunk
	Similarity float64
}

// Store is the interface for knowledge-base persistence operations.
type Store interface {
	// ReplaceSource atomically swaps all chunks of one document for a new
	// set, so a partially indexed document never serves search traffic.
	ReplaceSource(ctx context.Context, source string, chunks []models.DocChunk) error
	// DeleteSource removes every chunk of one document.
	DeleteSource(ctx context.Context, source string) error
	// ListSources returns the distinct document names currently indexed.
	ListSources(ctx context.Context) ([]string, error)
	// CountChunks returns the total number of stored chunks.
	CountChunks(ctx context.Context) (int, error)
	// SearchSimilar returns the limit chunks nearest to the query
	// embedding, best match first.
	SearchSimilar(ctx context.Context, embedding []float32, limit int) ([]ScoredChunk, error)

	// Ping checks database connectivity.
	Ping(ctx context.Context) error
}
