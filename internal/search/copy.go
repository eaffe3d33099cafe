package search

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/picarch/internal/database"
)

// CopyStats summarizes a CopyResults call.
type CopyStats struct {
	Copied  int
	Missing int // stored paths no longer on disk
	Failed  int
}

// CopyResults copies every matched file that still exists into outputDir,
// creating it if needed. Copy failures are logged and counted; only failing to
// create outputDir is returned as an error. Files sharing a base name get a
// numeric suffix instead of overwriting each other.
func CopyResults(matches []database.Match, outputDir string, logger *log.Logger) (CopyStats, error) {
	var stats CopyStats
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return stats, fmt.Errorf("failed to create output directory: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}

	used := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if _, err := os.Stat(m.Path); errors.Is(err, fs.ErrNotExist) {
			stats.Missing++
			continue
		}

		dst := uniqueDestination(outputDir, filepath.Base(m.Path), used)
		if err := copyFile(m.Path, dst); err != nil {
			logger.Printf("Error copying %s to %s: %v", m.Path, dst, err)
			stats.Failed++
			continue
		}
		stats.Copied++
	}
	return stats, nil
}

func uniqueDestination(dir, name string, used map[string]struct{}) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 1; ; i++ {
		if _, taken := used[candidate]; !taken {
			used[candidate] = struct{}{}
			return filepath.Join(dir, candidate)
		}
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
}

// copyFile copies src to dst and keeps the source modification time.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
