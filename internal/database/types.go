package database

import (
	"errors"
	"fmt"
	"time"
)

// EmbeddingDim is the length of every face embedding produced by the
// buffalo_l recognition model and accepted by the embeddings table.
const EmbeddingDim = 512

var (
	// ErrInvalidDimension is returned when an embedding is not EmbeddingDim long.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrImageExists is returned by SaveImage when the path is already stored.
	ErrImageExists = errors.New("image already stored")
)

// StoredImage represents an image path row
type StoredImage struct {
	ID        int64
	Path      string
	CreatedAt time.Time
}

// StoredEmbedding represents a single face embedding belonging to an image
type StoredEmbedding struct {
	ID        int64
	ImageID   int64
	Path      string // Path of the owning image (populated by joins)
	Embedding []float32
}

// Match is a search hit: an image path and the cosine distance of its closest face.
type Match struct {
	Path     string
	Distance float64
}

// Similarity returns 1 - distance.
func (m Match) Similarity() float64 {
	return 1 - m.Distance
}

// ValidateEmbeddings checks that every vector has exactly EmbeddingDim components.
// Vectors are never truncated or padded.
func ValidateEmbeddings(embeddings [][]float32) error {
	for i, emb := range embeddings {
		if len(emb) != EmbeddingDim {
			return fmt.Errorf("face %d has %d components, want %d: %w", i, len(emb), EmbeddingDim, ErrInvalidDimension)
		}
	}
	return nil
}

// MaxDistance converts a similarity threshold into the largest cosine distance
// that still counts as a match.
func MaxDistance(threshold float64) float64 {
	return 1 - threshold
}
