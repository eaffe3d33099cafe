package database

// HNSW index parameters for 512-dim face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// to ensure we have enough after distance filtering.
	HNSWSearchMultiplier = 3

	// HNSWMinSearchK is the smallest candidate pool requested from the graph.
	HNSWMinSearchK = 100
)

// DefaultSimilarityThreshold is the minimum similarity (1 - cosine distance)
// for a stored face to count as the same person.
const DefaultSimilarityThreshold = 0.4
