// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kozaktomas/picarch/internal/database"
)

// MockStore is an in-memory implementation of database.Store.
// It enforces the same invariants as the PostgreSQL store: unique paths,
// EmbeddingDim-long vectors and all-or-nothing writes per image.
type MockStore struct {
	mu         sync.RWMutex
	nextImage  int64
	nextEmb    int64
	images     map[string]*database.StoredImage
	embeddings []database.StoredEmbedding

	// Order in which SaveImage was called, including failed calls
	saveOrder []string

	// Error injection
	SaveError      error
	SaveErrorFor   map[string]error
	GetPathsError  error
	CountError     error
	FindSimilarErr error
	GetAllEmbErr   error
}

// NewMockStore creates a new empty mock store
func NewMockStore() *MockStore {
	return &MockStore{
		images:       make(map[string]*database.StoredImage),
		SaveErrorFor: make(map[string]error),
	}
}

// SaveImage stores the path and its embeddings
func (m *MockStore) SaveImage(ctx context.Context, path string, embeddings [][]float32) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saveOrder = append(m.saveOrder, path)

	if m.SaveError != nil {
		return 0, m.SaveError
	}
	if err, ok := m.SaveErrorFor[path]; ok {
		return 0, err
	}
	if err := database.ValidateEmbeddings(embeddings); err != nil {
		return 0, fmt.Errorf("image %s: %w", path, err)
	}
	if existing, ok := m.images[path]; ok {
		return existing.ID, database.ErrImageExists
	}

	m.nextImage++
	img := &database.StoredImage{ID: m.nextImage, Path: path}
	m.images[path] = img

	for _, emb := range embeddings {
		m.nextEmb++
		vec := make([]float32, len(emb))
		copy(vec, emb)
		m.embeddings = append(m.embeddings, database.StoredEmbedding{
			ID:        m.nextEmb,
			ImageID:   img.ID,
			Path:      path,
			Embedding: vec,
		})
	}
	return img.ID, nil
}

// GetAllImagePaths returns all stored paths sorted alphabetically
func (m *MockStore) GetAllImagePaths(ctx context.Context) ([]string, error) {
	if m.GetPathsError != nil {
		return nil, m.GetPathsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	paths := make([]string, 0, len(m.images))
	for p := range m.images {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// Count returns the number of stored images and embeddings
func (m *MockStore) Count(ctx context.Context) (int, int, error) {
	if m.CountError != nil {
		return 0, 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.images), len(m.embeddings), nil
}

// FindSimilar performs an exact scan over all embeddings
func (m *MockStore) FindSimilar(ctx context.Context, embedding []float32, maxDistance float64) ([]database.Match, error) {
	if m.FindSimilarErr != nil {
		return nil, m.FindSimilarErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	best := make(map[string]float64)
	for _, emb := range m.embeddings {
		dist := database.CosineDistance(embedding, emb.Embedding)
		if dist > maxDistance {
			continue
		}
		if prev, ok := best[emb.Path]; !ok || dist < prev {
			best[emb.Path] = dist
		}
	}

	matches := make([]database.Match, 0, len(best))
	for path, dist := range best {
		matches = append(matches, database.Match{Path: path, Distance: dist})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Path < matches[j].Path })
	return matches, nil
}

// GetAllEmbeddings returns a copy of every stored embedding
func (m *MockStore) GetAllEmbeddings(ctx context.Context) ([]database.StoredEmbedding, error) {
	if m.GetAllEmbErr != nil {
		return nil, m.GetAllEmbErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.StoredEmbedding, len(m.embeddings))
	copy(out, m.embeddings)
	return out, nil
}

// IndexMetadata returns the embedding count and highest embedding ID
func (m *MockStore) IndexMetadata(ctx context.Context) (database.EmbeddingIndexMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return database.MetadataFor(m.embeddings), nil
}

// AddImage seeds the store, bypassing validation
func (m *MockStore) AddImage(path string, embeddings ...[]float32) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextImage++
	m.images[path] = &database.StoredImage{ID: m.nextImage, Path: path}
	for _, emb := range embeddings {
		m.nextEmb++
		m.embeddings = append(m.embeddings, database.StoredEmbedding{
			ID:        m.nextEmb,
			ImageID:   m.nextImage,
			Path:      path,
			Embedding: emb,
		})
	}
	return m.nextImage
}

// EmbeddingsFor returns the embeddings stored for a path
func (m *MockStore) EmbeddingsFor(path string) []database.StoredEmbedding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.StoredEmbedding
	for _, emb := range m.embeddings {
		if emb.Path == path {
			out = append(out, emb)
		}
	}
	return out
}

// SaveOrder returns the paths passed to SaveImage in call order
func (m *MockStore) SaveOrder() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.saveOrder))
	copy(out, m.saveOrder)
	return out
}

// Verify interface compliance
var _ database.Store = (*MockStore)(nil)
