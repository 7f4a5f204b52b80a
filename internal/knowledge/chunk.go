package knowledge

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// Chunking parameters. Chunks are sized to embed well and to read as a
// self-contained passage when cited in a plan; consecutive chunks share
// an overlap so no advice is split mid-sentence across a hard boundary.
const (
	ChunkChars   = 900
	OverlapChars = 150
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// ChunkText splits a normalized document into overlapping chunks stamped
// with position IDs ("source#0", "source#1", ...). Whitespace-only input
// yields no chunks. Boundaries are computed on runes, not bytes.
func ChunkText(source, text string) []models.DocChunk {
	runes := []rune(normalizeText(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []models.DocChunk
	step := ChunkChars - OverlapChars
	idx := 0
	for start := 0; start < len(runes); start += step {
		end := start + ChunkChars
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, models.DocChunk{
				ID:      uuid.New(),
				Source:  source,
				ChunkID: fmt.Sprintf("%s#%d", source, idx),
				Content: piece,
			})
			idx++
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// normalizeText converts Windows line endings and collapses runs of
// three or more newlines so chunk boundaries land on real content.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
