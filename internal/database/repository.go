package database

import (
	"context"
)

// ImageReader provides read-only access to stored image paths
type ImageReader interface {
	// GetAllImagePaths returns every stored image path
	GetAllImagePaths(ctx context.Context) ([]string, error)
	// Count returns the number of stored images and embeddings
	Count(ctx context.Context) (images int, embeddings int, err error)
}

// ImageWriter persists images together with their face embeddings
type ImageWriter interface {
	// SaveImage inserts the image path and one embedding row per vector.
	// Every vector must be EmbeddingDim long, otherwise ErrInvalidDimension is
	// returned and nothing is written. Returns ErrImageExists if the path is
	// already stored; in that case no embeddings are written either.
	SaveImage(ctx context.Context, path string, embeddings [][]float32) (int64, error)
}

// EmbeddingSearcher finds images whose faces are close to a query embedding
type EmbeddingSearcher interface {
	// FindSimilar returns distinct image paths having at least one embedding with
	// cosine distance <= maxDistance, each with its smallest distance.
	FindSimilar(ctx context.Context, embedding []float32, maxDistance float64) ([]Match, error)
	// GetAllEmbeddings returns every stored embedding with its image path
	GetAllEmbeddings(ctx context.Context) ([]StoredEmbedding, error)
}

// Store combines every capability of the catalog store
type Store interface {
	ImageReader
	ImageWriter
	EmbeddingSearcher
}
