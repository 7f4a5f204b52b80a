package models

import (
	"time"

	"github.com/google/uuid"
)

// DocChunk is one embedded slice of a repair document stored in the
// knowledge base. Chunks from the same document share a Source and carry
// position-stamped chunk IDs (e.g., "toilet-repair.md#3").
type DocChunk struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Source    string    `db:"source"     json:"source"`
	ChunkID   string    `db:"chunk_id"   json:"chunk_id"`
	Content   string    `db:"content"    json:"content"`
	Embedding []float32 `db:"embedding"  json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
