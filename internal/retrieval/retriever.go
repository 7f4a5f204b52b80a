// Package retrieval turns a search query into ranked knowledge-base
// passages by embedding the query and running a vector similarity search.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kiranshivaraju/fixsight/internal/embedding"
	"github.com/kiranshivaraju/fixsight/internal/knowledge"
	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// DefaultTopK is the number of passages fetched when no limit is configured.
const DefaultTopK = 6

// Result bundles the ranked passages with the metrics of the round that
// produced them.
type Result struct {
	Passages []models.RetrievedPassage
	Metrics  models.VectorRetrievalMetrics
}

// Retriever embeds queries and searches the chunk store.
type Retriever struct {
	embedder embedding.Provider
	store    knowledge.Store
	topK     int
}

func New(embedder embedding.Provider, store knowledge.Store, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, store: store, topK: topK}
}

// Retrieve returns the topK passages nearest to query, ranked from 1.
// A blank query short-circuits to an empty result without touching the
// embedder or the store.
func (r *Retriever) Retrieve(ctx context.Context, query string) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return &Result{}, nil
	}

	start := time.Now()

	vec, err := r.embedder.Embed(ctx, query, embedding.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	scored, err := r.store.SearchSimilar(ctx, vec, r.topK)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
	norm := vectorNorm(vec)

	res := &Result{
		Metrics: models.VectorRetrievalMetrics{
			QueryEmbeddingNorm: &norm,
			NumDocsRetrieved:   len(scored),
			RetrievalLatencyMS: &latencyMS,
		},
	}

	if len(scored) == 0 {
		return res, nil
	}

	sum, minScore, maxScore := 0.0, scored[0].Similarity, scored[0].Similarity
	for i, sc := range scored {
		score := sc.Similarity
		res.Passages = append(res.Passages, models.RetrievedPassage{
			Rank:    i + 1,
			Score:   &score,
			Text:    sc.Chunk.Content,
			Source:  sc.Chunk.Source,
			ChunkID: sc.Chunk.ChunkID,
		})
		sum += score
		if score < minScore {
			minScore = score
		}
		if score > maxScore {
			maxScore = score
		}
	}
	avg := sum / float64(len(scored))
	res.Metrics.AvgSimilarityScore = &avg
	res.Metrics.MinSimilarityScore = &minScore
	res.Metrics.MaxSimilarityScore = &maxScore

	return res, nil
}

func vectorNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}
