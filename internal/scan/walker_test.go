package scan

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
}

func TestIsImage(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"photo.jpg", true},
		{"photo.JPG", true},
		{"photo.Jpeg", true},
		{"scan.tiff", true},
		{"anim.gif", true},
		{"pic.webp", true},
		{"old.bmp", true},
		{"shot.png", true},
		{"scan.tif", false},
		{"notes.txt", false},
		{"jpg", false},
		{"archive.jpg.zip", false},
	}
	for _, tc := range tests {
		if got := IsImage(tc.path); got != tc.want {
			t.Errorf("IsImage(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestWalker_Walk(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root,
		"a.JPG",
		"b.png",
		"notes.txt",
		"sub/c.jpeg",
		"sub/readme.md",
		"sub/@eaDir/thumb.jpg",
	)

	w, err := NewWalker(nil, []string{"**/@eaDir/**"})
	if err != nil {
		t.Fatalf("NewWalker failed: %v", err)
	}
	got, err := w.Walk(root)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	want := []string{
		filepath.Join(root, "a.JPG"),
		filepath.Join(root, "b.png"),
		filepath.Join(root, "sub", "c.jpeg"),
	}
	if !slices.Equal(got, want) {
		t.Errorf("Walk() = %v, want %v", got, want)
	}
}

func TestWalker_Includes(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "2023/a.jpg", "2024/b.jpg", "2024/nested/c.png")

	w, err := NewWalker([]string{"2024/**"}, nil)
	if err != nil {
		t.Fatalf("NewWalker failed: %v", err)
	}
	got, err := w.Walk(root)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	want := []string{
		filepath.Join(root, "2024", "b.jpg"),
		filepath.Join(root, "2024", "nested", "c.png"),
	}
	if !slices.Equal(got, want) {
		t.Errorf("Walk() = %v, want %v", got, want)
	}
}

func TestWalker_SingleFile(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "face.jpg", "notes.txt")
	w, _ := NewWalker(nil, nil)

	got, err := w.Walk(filepath.Join(root, "face.jpg"))
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if len(got) != 1 || got[0] != filepath.Join(root, "face.jpg") {
		t.Errorf("expected the single file, got %v", got)
	}

	if _, err := w.Walk(filepath.Join(root, "notes.txt")); err == nil {
		t.Error("expected error for a non-image file")
	}
}

func TestWalker_MissingRoot(t *testing.T) {
	w, _ := NewWalker(nil, nil)
	if _, err := w.Walk(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestNewWalker_InvalidPattern(t *testing.T) {
	if _, err := NewWalker([]string{"[unclosed"}, nil); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func lockDir(t *testing.T, dir string) {
	t.Helper()
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	if err := os.Chmod(dir, 0o000); err != nil {
		t.Fatalf("chmod failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })
}

func TestWalker_SkipsUnreadableDirectory(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.jpg", "locked/hidden.jpg", "z/b.png")
	lockDir(t, filepath.Join(root, "locked"))

	var buf bytes.Buffer
	w, _ := NewWalker(nil, nil, WithLogger(log.New(&buf, "", 0)))

	got, err := w.Walk(root)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	want := []string{filepath.Join(root, "a.jpg"), filepath.Join(root, "z", "b.png")}
	if !slices.Equal(got, want) {
		t.Errorf("Walk() = %v, want %v", got, want)
	}
	if !strings.Contains(buf.String(), "locked") {
		t.Errorf("expected the unreadable directory to be logged, got %q", buf.String())
	}
}

func TestWalker_UnreadableRoot(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.jpg")
	lockDir(t, root)

	w, _ := NewWalker(nil, nil, WithLogger(log.New(&bytes.Buffer{}, "", 0)))
	if _, err := w.Walk(root); err == nil {
		t.Error("expected error for an unreadable root")
	}
}
