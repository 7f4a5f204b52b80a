// Package embedding generates the vectors used for knowledge-base
// retrieval. Every provider returns unit-length vectors so that cosine
// similarity reduces to an inner product on the database side.
package embedding

import (
	"context"
	"errors"
	"math"
)

var (
	ErrEmbeddingFailed = errors.New("embedding request failed")
	ErrEmptyEmbedding  = errors.New("provider returned empty embedding")
)

// Task types hint the provider at how the vector will be used. Gemini
// tunes the embedding differently for queries and corpus documents.
const (
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// Provider generates embedding vectors for text.
type Provider interface {
	// Embed returns a unit-length vector for the text. taskType is one
	// of the Task constants above.
	Embed(ctx context.Context, text, taskType string) ([]float32, error)
	// Name identifies the backend for logging.
	Name() string
	// Dimensions is the vector width this provider emits; it must match
	// the knowledge store's column width.
	Dimensions() int
}

// normalizeVector scales vec to unit length. Cosine distance in the
// database assumes magnitude 1; a zero vector is returned unchanged.
func normalizeVector(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	magnitude := math.Sqrt(sum)
	if magnitude == 0 {
		return vec
	}

	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / magnitude)
	}
	return normalized
}
