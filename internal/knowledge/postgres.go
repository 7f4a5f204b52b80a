package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// PostgresStore is the pgvector-backed implementation of Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Indexing ---

func (s *PostgresStore) ReplaceSource(ctx context.Context, source string, chunks []models.DocChunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace source: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM doc_chunks WHERE source = $1`, source); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	for _, c := range chunks {
		_, err := tx.Exec(ctx,
			`INSERT INTO doc_chunks (id, source, chunk_id, content, embedding)
			 VALUES ($1, $2, $3, $4, $5)`,
			c.ID, c.Source, c.ChunkID, c.Content, pgvector.NewVector(c.Embedding))
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ChunkID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace source: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSource(ctx context.Context, source string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM doc_chunks WHERE source = $1`, source)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListSources(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT source FROM doc_chunks ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (s *PostgresStore) CountChunks(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM doc_chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

// --- Search ---

func (s *PostgresStore) SearchSimilar(ctx context.Context, embedding []float32, limit int) ([]ScoredChunk, error) {
	// Embeddings are unit length, so cosine distance (<=>) orders the same
	// as inner product and 1 - distance is the similarity score.
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, chunk_id, content, created_at, 1 - (embedding <=> $1) AS similarity
		 FROM doc_chunks
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var results []ScoredChunk
	for rows.Next() {
		var sc ScoredChunk
		if err := rows.Scan(&sc.Chunk.ID, &sc.Chunk.Source, &sc.Chunk.ChunkID,
			&sc.Chunk.Content, &sc.Chunk.CreatedAt, &sc.Similarity); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		results = append(results, sc)
	}
	return results, rows.Err()
}
