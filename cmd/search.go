package cmd

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/picarch/internal/config"
	"github.com/kozaktomas/picarch/internal/database"
	"github.com/kozaktomas/picarch/internal/facedetect"
	"github.com/kozaktomas/picarch/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search <image>",
	Short: "Find every stored image containing the person in the given image",
	Long: `Compute the face embedding of a query image containing exactly one face
and copy every stored image with a similar face into the output folder.

A stored face matches when its cosine similarity to the query face is at
least the threshold.

Examples:
  picarch search alice.jpg
  picarch search alice.jpg --output alice --threshold 0.5
  picarch search alice.jpg --hnsw --limit 50`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().String("output", "find", "Folder the matching images are copied to")
	searchCmd.Flags().Float64("threshold", database.DefaultSimilarityThreshold, "Minimum cosine similarity, between -1 and 1 (default SEARCH_THRESHOLD or 0.4)")
	searchCmd.Flags().Bool("hnsw", false, "Search an in-memory HNSW index instead of PostgreSQL (approximate)")
	searchCmd.Flags().Int("limit", database.HNSWMinSearchK, "Maximum number of images returned by --hnsw")
	searchCmd.Flags().Bool("no-copy", false, "Only list the matches")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Load()

	threshold := cfg.Search.Threshold
	if cmd.Flags().Changed("threshold") {
		threshold = mustGetFloat64(cmd, "threshold")
	}

	pool, repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	var opts []search.Option
	if mustGetBool(cmd, "hnsw") {
		idx, err := search.LoadIndex(ctx, repo, cfg.Database.HNSWIndexPath, log.Default())
		if err != nil {
			return err
		}
		opts = append(opts, search.WithIndex(idx, mustGetInt(cmd, "limit")))
	}

	computer := facedetect.NewFileComputer(facedetect.Options{
		BaseURL:      cfg.Embedding.URL,
		MaxImageSize: cfg.Embedding.MaxImageSize,
		Timeout:      cfg.Embedding.Timeout,
	})
	defer computer.Close()

	fmt.Printf("Searching for the person in %s (threshold %.2f)...\n", args[0], threshold)
	matches, err := search.New(repo, opts...).SearchImage(ctx, computer, args[0], threshold)
	if errors.Is(err, search.ErrNoFace) || errors.Is(err, search.ErrMultipleFaces) {
		return fmt.Errorf("please provide an image with exactly one face: %w", err)
	}
	if err != nil {
		return err
	}

	fmt.Printf("\nFound %d image(s):\n", len(matches))
	for _, m := range matches {
		fmt.Printf("  %.3f  %s\n", m.Similarity(), m.Path)
	}

	if mustGetBool(cmd, "no-copy") || len(matches) == 0 {
		return nil
	}

	output, err := filepath.Abs(mustGetString(cmd, "output"))
	if err != nil {
		return err
	}
	stats, err := search.CopyResults(matches, output, log.Default())
	if err != nil {
		return err
	}
	fmt.Printf("\nCopied %d image(s) to %s", stats.Copied, output)
	if stats.Missing > 0 || stats.Failed > 0 {
		fmt.Printf(" (%d no longer on disk, %d failed)", stats.Missing, stats.Failed)
	}
	fmt.Println()
	return nil
}
