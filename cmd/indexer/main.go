// Package main implements the knowledge-base indexer. It chunks repair
// documents, embeds every chunk, and swaps the stored copy in Postgres
// so retrieval always serves the newest revision of each document.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/kiranshivaraju/fixsight/internal/config"
	"github.com/kiranshivaraju/fixsight/internal/embedding"
	"github.com/kiranshivaraju/fixsight/internal/knowledge"
)

// indexableExts are the document types the walker picks up.
var indexableExts = map[string]bool{".md": true, ".txt": true}

func main() {
	docsDir := flag.String("docs", "docs", "directory of repair documents to index")
	prefix := flag.String("source-prefix", "", "prefix prepended to every source name")
	prune := flag.Bool("prune", false, "delete indexed sources missing from the docs directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(*docsDir, *prefix, *prune); err != nil {
		slog.Error("indexer failed", "error", err)
		os.Exit(1)
	}
}

func run(docsDir, prefix string, prune bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := knowledge.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := knowledge.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	embedder, err := embedding.NewProvider(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("create embedding provider: %w", err)
	}

	slog.Info("indexing documents", "dir", docsDir, "embedder", embedder.Name())

	ix := &indexer{
		store:    knowledge.NewPostgresStore(pool),
		embedder: embedder,
		prefix:   prefix,
	}

	summary, err := ix.indexDir(ctx, docsDir)
	if err != nil {
		return err
	}

	if prune {
		pruned, err := ix.prune(ctx, summary.sources)
		if err != nil {
			return fmt.Errorf("prune stale sources: %w", err)
		}
		summary.pruned = pruned
	}

	total, err := ix.store.CountChunks(ctx)
	if err != nil {
		return fmt.Errorf("count chunks: %w", err)
	}

	slog.Info("indexing complete",
		"documents", summary.documents,
		"chunks", summary.chunks,
		"failed", summary.failed,
		"pruned", summary.pruned,
		"total_chunks", total)

	if summary.failed > 0 {
		return fmt.Errorf("%d of %d documents failed", summary.failed, summary.failed+summary.documents)
	}
	return nil
}

type indexSummary struct {
	documents int
	chunks    int
	failed    int
	pruned    int
	sources   map[string]bool
}

type indexer struct {
	store    knowledge.Store
	embedder embedding.Provider
	prefix   string
}

// indexDir walks dir and indexes every markdown and text file. A file
// that fails is logged and counted; the walk continues.
func (ix *indexer) indexDir(ctx context.Context, dir string) (*indexSummary, error) {
	summary := &indexSummary{sources: make(map[string]bool)}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !indexableExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		source := ix.prefix + filepath.ToSlash(rel)

		n, err := ix.indexFile(ctx, path, source)
		if err != nil {
			slog.Error("indexing document failed", "source", source, "error", err)
			summary.failed++
			return nil
		}

		slog.Info("document indexed", "source", source, "chunks", n)
		summary.documents++
		summary.chunks += n
		summary.sources[source] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return summary, nil
}

// indexFile chunks one document, embeds each chunk, and replaces the
// stored set under its source name. A file that chunks to nothing
// clears its stored copy.
func (ix *indexer) indexFile(ctx context.Context, path, source string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	chunks := knowledge.ChunkText(source, string(content))
	for i := range chunks {
		vec, err := ix.embedder.Embed(ctx, chunks[i].Content, embedding.TaskRetrievalDocument)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %s: %w", chunks[i].ChunkID, err)
		}
		chunks[i].Embedding = vec
	}

	if err := ix.store.ReplaceSource(ctx, source, chunks); err != nil {
		return 0, fmt.Errorf("replace source: %w", err)
	}
	return len(chunks), nil
}

// prune removes sources that are indexed but no longer on disk. With a
// source prefix set, only sources under that prefix are considered.
func (ix *indexer) prune(ctx context.Context, indexed map[string]bool) (int, error) {
	sources, err := ix.store.ListSources(ctx)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, source := range sources {
		if indexed[source] || !strings.HasPrefix(source, ix.prefix) {
			continue
		}
		if err := ix.store.DeleteSource(ctx, source); err != nil {
			return pruned, err
		}
		slog.Info("stale source pruned", "source", source)
		pruned++
	}
	return pruned, nil
}
