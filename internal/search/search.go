// Package search finds stored images containing a face similar to a query face.
package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/kozaktomas/picarch/internal/database"
	"github.com/kozaktomas/picarch/internal/pipeline"
)

var (
	// ErrNoFace is returned by SearchImage when the query image has no face.
	ErrNoFace = errors.New("no face found in query image")

	// ErrMultipleFaces is returned by SearchImage when the query image has more than one face.
	ErrMultipleFaces = errors.New("query image must contain exactly one face")

	// ErrInvalidThreshold is returned for thresholds outside [-1, 1].
	ErrInvalidThreshold = errors.New("threshold must be between -1 and 1")
)

// Searcher answers similarity queries against the store, or against an
// in-memory HNSW index when one is attached.
type Searcher struct {
	store  database.EmbeddingSearcher
	index  *database.EmbeddingIndex
	limit  int
	logger *log.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithIndex makes the searcher use idx instead of the store. At most limit
// paths are returned (0 = database.HNSWMinSearchK).
func WithIndex(idx *database.EmbeddingIndex, limit int) Option {
	return func(s *Searcher) {
		s.index = idx
		s.limit = limit
	}
}

// WithLogger sets the logger used for progress messages.
func WithLogger(l *log.Logger) Option {
	return func(s *Searcher) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a searcher over store.
func New(store database.EmbeddingSearcher, opts ...Option) *Searcher {
	s := &Searcher{store: store, logger: log.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.limit <= 0 {
		s.limit = database.HNSWMinSearchK
	}
	return s
}

// Search returns the distinct image paths having at least one face whose cosine
// similarity to query is at least threshold, closest first.
func (s *Searcher) Search(ctx context.Context, query []float32, threshold float64) ([]database.Match, error) {
	if err := database.ValidateEmbeddings([][]float32{query}); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if threshold < -1 || threshold > 1 {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidThreshold, threshold)
	}
	maxDistance := database.MaxDistance(threshold)

	var matches []database.Match
	var err error
	if s.index != nil && !s.index.IsEmpty() {
		matches, err = s.index.SearchWithin(query, s.limit, maxDistance)
	} else {
		matches, err = s.store.FindSimilar(ctx, query, maxDistance)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Path < matches[j].Path
	})
	return matches, nil
}

// SearchImage computes the face embedding of the image at path and searches
// with it. The image must contain exactly one face.
func (s *Searcher) SearchImage(ctx context.Context, computer pipeline.Computer, path string, threshold float64) ([]database.Match, error) {
	embeddings, err := computer.Compute(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %s: %w", path, err)
	}
	switch len(embeddings) {
	case 0:
		return nil, fmt.Errorf("%s: %w", path, ErrNoFace)
	case 1:
	default:
		return nil, fmt.Errorf("%s has %d faces: %w", path, len(embeddings), ErrMultipleFaces)
	}

	matches, err := s.Search(ctx, embeddings[0], threshold)
	if err != nil {
		return nil, err
	}
	s.logger.Printf("Found %d result(s)", len(matches))
	return matches, nil
}
