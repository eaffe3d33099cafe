package search

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/kozaktomas/picarch/internal/database"
	"github.com/kozaktomas/picarch/internal/database/mock"
	"github.com/kozaktomas/picarch/internal/pipeline"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// face pads the given leading components with zeros up to EmbeddingDim.
func face(components ...float32) []float32 {
	v := make([]float32, database.EmbeddingDim)
	copy(v, components)
	return v
}

// newFixtureStore returns a store whose similarities to face(1) are known exactly.
func newFixtureStore() *mock.MockStore {
	store := mock.NewMockStore()
	store.AddImage("/photos/boundary.jpg", face(2, 4, 2, 1)) // similarity 0.4
	store.AddImage("/photos/half.jpg", face(1, 1, 1, 1))     // similarity 0.5
	store.AddImage("/photos/close.jpg", face(3, 4))          // similarity 0.6
	store.AddImage("/photos/far.jpg", face(1, 3))            // similarity ~0.316
	store.AddImage("/photos/group.jpg", face(1, 3), face(3, 4))
	store.AddImage("/photos/opposite.jpg", face(-1))
	return store
}

func paths(matches []database.Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Path
	}
	return out
}

func TestSearch_ThresholdIsInclusive(t *testing.T) {
	s := New(newFixtureStore(), WithLogger(discardLogger()))

	matches, err := s.Search(context.Background(), face(1), 0.4)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	want := []string{"/photos/close.jpg", "/photos/group.jpg", "/photos/half.jpg", "/photos/boundary.jpg"}
	if got := paths(matches); !slices.Equal(got, want) {
		t.Errorf("Search() = %v, want %v", got, want)
	}
	if sim := matches[len(matches)-1].Similarity(); sim != 0.4 {
		t.Errorf("expected boundary match similarity 0.4, got %v", sim)
	}
}

func TestSearch_HigherThreshold(t *testing.T) {
	s := New(newFixtureStore(), WithLogger(discardLogger()))

	matches, err := s.Search(context.Background(), face(1), 0.55)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if got, want := paths(matches), []string{"/photos/close.jpg", "/photos/group.jpg"}; !slices.Equal(got, want) {
		t.Errorf("Search() = %v, want %v", got, want)
	}
}

func TestSearch_NegativeThresholdMatchesEverything(t *testing.T) {
	s := New(newFixtureStore(), WithLogger(discardLogger()))

	matches, err := s.Search(context.Background(), face(1), -1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 6 {
		t.Errorf("expected all 6 images, got %v", paths(matches))
	}
	if matches[len(matches)-1].Path != "/photos/opposite.jpg" {
		t.Errorf("expected the opposite face last, got %v", paths(matches))
	}
}

func TestSearch_Validation(t *testing.T) {
	s := New(mock.NewMockStore(), WithLogger(discardLogger()))

	if _, err := s.Search(context.Background(), make([]float32, 128), 0.4); !errors.Is(err, database.ErrInvalidDimension) {
		t.Errorf("expected ErrInvalidDimension, got %v", err)
	}
	for _, threshold := range []float64{-1.01, 1.5} {
		if _, err := s.Search(context.Background(), face(1), threshold); !errors.Is(err, ErrInvalidThreshold) {
			t.Errorf("threshold %v: expected ErrInvalidThreshold, got %v", threshold, err)
		}
	}
}

func TestSearch_StoreError(t *testing.T) {
	store := mock.NewMockStore()
	store.FindSimilarErr = errors.New("connection lost")
	s := New(store, WithLogger(discardLogger()))

	if _, err := s.Search(context.Background(), face(1), 0.4); !errors.Is(err, store.FindSimilarErr) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}

func TestSearch_WithIndex(t *testing.T) {
	store := newFixtureStore()
	embeddings, err := store.GetAllEmbeddings(context.Background())
	if err != nil {
		t.Fatalf("GetAllEmbeddings failed: %v", err)
	}
	idx := database.NewEmbeddingIndex()
	idx.Build(embeddings)

	// The store must not be consulted when the index is loaded.
	store.FindSimilarErr = errors.New("store should not be used")
	s := New(store, WithIndex(idx, 3), WithLogger(discardLogger()))

	matches, err := s.Search(context.Background(), face(1), 0.4)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if got, want := paths(matches), []string{"/photos/close.jpg", "/photos/group.jpg", "/photos/half.jpg"}; !slices.Equal(got, want) {
		t.Errorf("Search() = %v, want %v", got, want)
	}
}

func TestSearch_EmptyIndexFallsBackToStore(t *testing.T) {
	s := New(newFixtureStore(), WithIndex(database.NewEmbeddingIndex(), 0), WithLogger(discardLogger()))

	matches, err := s.Search(context.Background(), face(1), 0.6)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if got, want := paths(matches), []string{"/photos/close.jpg", "/photos/group.jpg"}; !slices.Equal(got, want) {
		t.Errorf("Search() = %v, want %v", got, want)
	}
}

func TestSearchImage_RequiresExactlyOneFace(t *testing.T) {
	s := New(newFixtureStore(), WithLogger(discardLogger()))

	tests := []struct {
		name    string
		faces   [][]float32
		wantErr error
	}{
		{"no face", nil, ErrNoFace},
		{"two faces", [][]float32{face(1), face(0, 1)}, ErrMultipleFaces},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			computer := pipeline.ComputeFunc(func(ctx context.Context, path string) ([][]float32, error) {
				return tc.faces, nil
			})
			if _, err := s.SearchImage(context.Background(), computer, "/query.jpg", 0.4); !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestSearchImage(t *testing.T) {
	s := New(newFixtureStore(), WithLogger(discardLogger()))
	computer := pipeline.ComputeFunc(func(ctx context.Context, path string) ([][]float32, error) {
		if path != "/query.jpg" {
			t.Errorf("unexpected path %s", path)
		}
		return [][]float32{face(1)}, nil
	})

	matches, err := s.SearchImage(context.Background(), computer, "/query.jpg", 0.5)
	if err != nil {
		t.Fatalf("SearchImage failed: %v", err)
	}
	if len(matches) != 3 {
		t.Errorf("expected 3 matches, got %v", paths(matches))
	}
}

func TestSearchImage_ComputeError(t *testing.T) {
	s := New(newFixtureStore(), WithLogger(discardLogger()))
	boom := errors.New("server unavailable")
	computer := pipeline.ComputeFunc(func(ctx context.Context, path string) ([][]float32, error) {
		return nil, boom
	})

	if _, err := s.SearchImage(context.Background(), computer, "/query.jpg", 0.4); !errors.Is(err, boom) {
		t.Errorf("expected compute error, got %v", err)
	}
}

func TestCopyResults(t *testing.T) {
	src := t.TempDir()
	for _, name := range []string{"a/face.jpg", "b/face.jpg", "c/other.png"} {
		path := filepath.Join(src, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(path, []byte(name), 0o600); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	matches := []database.Match{
		{Path: filepath.Join(src, "a", "face.jpg")},
		{Path: filepath.Join(src, "b", "face.jpg")},
		{Path: filepath.Join(src, "c", "other.png")},
		{Path: filepath.Join(src, "deleted.jpg")},
	}
	out := filepath.Join(t.TempDir(), "find")

	stats, err := CopyResults(matches, out, discardLogger())
	if err != nil {
		t.Fatalf("CopyResults failed: %v", err)
	}
	if stats.Copied != 3 || stats.Missing != 1 || stats.Failed != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	for name, want := range map[string]string{
		"face.jpg":   "a/face.jpg",
		"face-1.jpg": "b/face.jpg",
		"other.png":  "c/other.png",
	} {
		data, err := os.ReadFile(filepath.Join(out, name))
		if err != nil {
			t.Errorf("expected %s in output: %v", name, err)
			continue
		}
		if string(data) != want {
			t.Errorf("%s has content %q, want %q", name, data, want)
		}
	}
}

func TestCopyResults_KeepsModTime(t *testing.T) {
	src := filepath.Join(t.TempDir(), "face.jpg")
	if err := os.WriteFile(src, []byte("x"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	srcInfo, _ := os.Stat(src)
	out := t.TempDir()

	if _, err := CopyResults([]database.Match{{Path: src}}, out, discardLogger()); err != nil {
		t.Fatalf("CopyResults failed: %v", err)
	}
	dstInfo, err := os.Stat(filepath.Join(out, "face.jpg"))
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if !dstInfo.ModTime().Equal(srcInfo.ModTime()) {
		t.Errorf("expected mod time %s, got %s", srcInfo.ModTime(), dstInfo.ModTime())
	}
}
