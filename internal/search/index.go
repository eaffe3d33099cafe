package search

import (
	"context"
	"fmt"
	"log"

	"github.com/kozaktomas/picarch/internal/database"
)

// IndexSource provides what is needed to build and validate an in-memory index.
type IndexSource interface {
	GetAllEmbeddings(ctx context.Context) ([]database.StoredEmbedding, error)
	IndexMetadata(ctx context.Context) (database.EmbeddingIndexMetadata, error)
}

// LoadIndex returns an HNSW index over every stored embedding. When path is set
// and the index persisted there matches the store's metadata it is loaded from
// disk; otherwise it is rebuilt and, if path is set, saved for the next run.
func LoadIndex(ctx context.Context, src IndexSource, path string, logger *log.Logger) (*database.EmbeddingIndex, error) {
	if logger == nil {
		logger = log.Default()
	}

	current, err := src.IndexMetadata(ctx)
	if err != nil {
		return nil, err
	}

	idx := database.NewEmbeddingIndex()
	if path != "" {
		if saved, err := database.LoadEmbeddingIndexMetadata(path); err == nil && *saved == current {
			err := idx.Load(path)
			if err == nil {
				logger.Printf("Loaded HNSW index with %d embeddings from %s", idx.Count(), path)
				return idx, nil
			}
			logger.Printf("Ignoring unreadable HNSW index %s: %v", path, err)
		}
	}

	return RebuildIndex(ctx, src, path, logger)
}

// RebuildIndex builds the index from the store and saves it to path when set.
func RebuildIndex(ctx context.Context, src IndexSource, path string, logger *log.Logger) (*database.EmbeddingIndex, error) {
	if logger == nil {
		logger = log.Default()
	}

	embeddings, err := src.GetAllEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}

	idx := database.NewEmbeddingIndex()
	idx.Build(embeddings)
	logger.Printf("Built HNSW index with %d embeddings", idx.Count())

	if path != "" {
		if err := idx.Save(path, database.MetadataFor(embeddings)); err != nil {
			return nil, fmt.Errorf("failed to save HNSW index: %w", err)
		}
	}
	return idx, nil
}
