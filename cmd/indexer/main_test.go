package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/fixsight/internal/embedding"
	"github.com/kiranshivaraju/fixsight/internal/knowledge"
	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// fakeStore records indexing calls without a database.
type fakeStore struct {
	replaced map[string][]models.DocChunk
	deleted  []string
	sources  []string
}

func newFakeStore(sources ...string) *fakeStore {
	return &fakeStore{replaced: make(map[string][]models.DocChunk), sources: sources}
}

func (s *fakeStore) ReplaceSource(_ context.Context, source string, chunks []models.DocChunk) error {
	s.replaced[source] = chunks
	return nil
}

func (s *fakeStore) DeleteSource(_ context.Context, source string) error {
	s.deleted = append(s.deleted, source)
	return nil
}

func (s *fakeStore) ListSources(_ context.Context) ([]string, error) { return s.sources, nil }

func (s *fakeStore) CountChunks(_ context.Context) (int, error) {
	n := 0
	for _, chunks := range s.replaced {
		n += len(chunks)
	}
	return n, nil
}

func (s *fakeStore) SearchSimilar(_ context.Context, _ []float32, _ int) ([]knowledge.ScoredChunk, error) {
	return nil, nil
}

func (s *fakeStore) Ping(_ context.Context) error { return nil }

var _ knowledge.Store = (*fakeStore)(nil)

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIndexDir_IndexesMarkdownAndText(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "toilet/unclogging.md", strings.Repeat("Plunge with a flange plunger. ", 80))
	writeDoc(t, dir, "notes.txt", "Shut off the supply valve before any toilet work.")
	writeDoc(t, dir, "cover.jpg", "not a document")

	store := newFakeStore()
	ix := &indexer{store: store, embedder: embedding.NewMockProvider(), prefix: "guides/"}

	summary, err := ix.indexDir(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.documents)
	assert.Zero(t, summary.failed)
	assert.True(t, summary.sources["guides/toilet/unclogging.md"])
	assert.True(t, summary.sources["guides/notes.txt"])
	assert.NotContains(t, summary.sources, "guides/cover.jpg")

	chunks := store.replaced["guides/toilet/unclogging.md"]
	require.NotEmpty(t, chunks)
	assert.Equal(t, "guides/toilet/unclogging.md#0", chunks[0].ChunkID)
	for _, c := range chunks {
		assert.NotEmpty(t, c.Embedding)
	}
	assert.Equal(t, summary.chunks, len(chunks)+len(store.replaced["guides/notes.txt"]))
}

func TestIndexDir_EmbedFailureCountsAndContinues(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "one.md", "Check the flapper seal.")
	writeDoc(t, dir, "two.md", "Check the fill valve float.")

	store := newFakeStore()
	ix := &indexer{
		store:    store,
		embedder: embedding.NewFailingMockProvider(errors.New("quota exhausted")),
	}

	summary, err := ix.indexDir(context.Background(), dir)
	require.NoError(t, err)

	assert.Zero(t, summary.documents)
	assert.Equal(t, 2, summary.failed)
	assert.Empty(t, store.replaced)
}

func TestIndexFile_EmptyDocumentClearsSource(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "empty.md", "   \n\n  ")

	store := newFakeStore()
	ix := &indexer{store: store, embedder: embedding.NewMockProvider()}

	n, err := ix.indexFile(context.Background(), filepath.Join(dir, "empty.md"), "empty.md")
	require.NoError(t, err)
	assert.Zero(t, n)

	chunks, ok := store.replaced["empty.md"]
	assert.True(t, ok, "an emptied document should still be replaced")
	assert.Empty(t, chunks)
}

func TestPrune_RemovesStaleSourcesUnderPrefix(t *testing.T) {
	store := newFakeStore("guides/current.md", "guides/stale.md", "manual/keep.md")
	ix := &indexer{store: store, prefix: "guides/"}

	pruned, err := ix.prune(context.Background(), map[string]bool{"guides/current.md": true})
	require.NoError(t, err)

	assert.Equal(t, 1, pruned)
	assert.Equal(t, []string{"guides/stale.md"}, store.deleted)
}

func TestPrune_NoPrefixConsidersEverySource(t *testing.T) {
	store := newFakeStore("a.md", "b.md")
	ix := &indexer{store: store}

	pruned, err := ix.prune(context.Background(), map[string]bool{"a.md": true})
	require.NoError(t, err)

	assert.Equal(t, 1, pruned)
	assert.Equal(t, []string{"b.md"}, store.deleted)
}
