package cmd

import (
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/picarch/internal/config"
	"github.com/kozaktomas/picarch/internal/search"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the persisted HNSW index used by search --hnsw",
	Long: `Load every stored face embedding, build an in-memory HNSW graph and save it
to HNSW_INDEX_PATH so that search --hnsw can start without rebuilding it.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Load()

	if cfg.Database.HNSWIndexPath == "" {
		return errors.New("HNSW_INDEX_PATH is not set")
	}

	pool, repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	idx, err := search.RebuildIndex(ctx, repo, cfg.Database.HNSWIndexPath, log.Default())
	if err != nil {
		return err
	}
	fmt.Printf("Saved HNSW index with %d face(s) to %s\n", idx.Count(), cfg.Database.HNSWIndexPath)
	return nil
}
