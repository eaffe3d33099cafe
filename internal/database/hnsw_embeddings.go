package database

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// EmbeddingIndexMetadata stores metadata for freshness checking
type EmbeddingIndexMetadata struct {
	EmbeddingCount int64 `json:"embedding_count"`
	MaxEmbeddingID int64 `json:"max_embedding_id"`
}

// EmbeddingIndex wraps an in-memory HNSW graph over face embeddings.
// Nodes are keyed by embedding row ID; idToEmb resolves them back to image paths.
type EmbeddingIndex struct {
	graph   *hnsw.Graph[int64]
	idToEmb map[int64]*StoredEmbedding
	mu      sync.RWMutex
}

// NewEmbeddingIndex creates a new empty index
func NewEmbeddingIndex() *EmbeddingIndex {
	return &EmbeddingIndex{
		idToEmb: make(map[int64]*StoredEmbedding),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with the given embeddings
func (h *EmbeddingIndex) Build(embeddings []StoredEmbedding) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.idToEmb = make(map[int64]*StoredEmbedding, len(embeddings))
	if len(embeddings) == 0 {
		h.graph = nil
		return
	}

	g := newGraph()
	for i := range embeddings {
		emb := &embeddings[i]
		if len(emb.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(emb.ID, emb.Embedding))
		h.idToEmb[emb.ID] = emb
	}
	h.graph = g
}

// Count returns the number of indexed embeddings
func (h *EmbeddingIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToEmb)
}

// IsEmpty returns true if no graph is loaded
func (h *EmbeddingIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil
}

// SearchWithin returns distinct image paths whose closest indexed face lies within
// maxDistance of the query, sorted by distance. At most limit paths are returned.
// Results are approximate: only the graph's nearest candidates are inspected.
func (h *EmbeddingIndex) SearchWithin(query []float32, limit int, maxDistance float64) ([]Match, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, errors.New("index not initialized")
	}

	searchK := max(limit*HNSWSearchMultiplier, HNSWMinSearchK)
	neighbors := h.graph.Search(query, searchK)

	best := make(map[string]float64)
	for _, n := range neighbors {
		emb, ok := h.idToEmb[n.Key]
		if !ok {
			continue
		}
		dist := CosineDistance(query, emb.Embedding)
		if dist > maxDistance {
			continue
		}
		if prev, seen := best[emb.Path]; !seen || dist < prev {
			best[emb.Path] = dist
		}
	}

	matches := make([]Match, 0, len(best))
	for path, dist := range best {
		matches = append(matches, Match{Path: path, Distance: dist})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Path < matches[j].Path
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// LoadEmbeddingIndexMetadata loads just the metadata file for staleness checking
func LoadEmbeddingIndexMetadata(basePath string) (*EmbeddingIndexMetadata, error) {
	data, err := os.ReadFile(basePath + ".meta")
	if err != nil {
		return nil, fmt.Errorf("read index metadata: %w", err)
	}
	var meta EmbeddingIndexMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse index metadata: %w", err)
	}
	return &meta, nil
}

// Save writes the graph, its metadata and the embedding lookup table next to basePath
func (h *EmbeddingIndex) Save(basePath string, metadata EmbeddingIndexMetadata) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		// Nothing indexed, drop stale files (best-effort cleanup).
		_ = os.Remove(basePath)
		_ = os.Remove(basePath + ".meta")
		_ = os.Remove(basePath + ".embeddings")
		return nil
	}

	f, err := os.Create(basePath)
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if err := h.graph.Export(f); err != nil {
		f.Close()
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing HNSW index file: %w", err)
	}

	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(basePath+".meta", metaData, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	embFile, err := os.Create(basePath + ".embeddings")
	if err != nil {
		return fmt.Errorf("failed to create embeddings file: %w", err)
	}
	defer embFile.Close()

	embeddings := make([]StoredEmbedding, 0, len(h.idToEmb))
	for _, emb := range h.idToEmb {
		embeddings = append(embeddings, *emb)
	}
	if err := gob.NewEncoder(embFile).Encode(embeddings); err != nil {
		return fmt.Errorf("failed to encode embeddings: %w", err)
	}
	return nil
}

// Load reads an index previously written by Save
func (h *EmbeddingIndex) Load(basePath string) error {
	f, err := os.Open(basePath)
	if err != nil {
		return fmt.Errorf("open HNSW index: %w", err)
	}
	defer f.Close()

	// Import needs an io.ByteReader.
	g := newGraph()
	if err := g.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("importing HNSW graph: %w", err)
	}

	embFile, err := os.Open(basePath + ".embeddings")
	if err != nil {
		return fmt.Errorf("failed to open embeddings file: %w", err)
	}
	defer embFile.Close()

	var embeddings []StoredEmbedding
	if err := gob.NewDecoder(embFile).Decode(&embeddings); err != nil {
		return fmt.Errorf("failed to decode embeddings: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = g
	h.idToEmb = make(map[int64]*StoredEmbedding, len(embeddings))
	for i := range embeddings {
		h.idToEmb[embeddings[i].ID] = &embeddings[i]
	}
	return nil
}

// MetadataFor computes the freshness metadata for a set of embeddings
func MetadataFor(embeddings []StoredEmbedding) EmbeddingIndexMetadata {
	meta := EmbeddingIndexMetadata{EmbeddingCount: int64(len(embeddings))}
	for i := range embeddings {
		meta.MaxEmbeddingID = max(meta.MaxEmbeddingID, embeddings[i].ID)
	}
	return meta
}
