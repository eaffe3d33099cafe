package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/picarch/internal/config"
	"github.com/kozaktomas/picarch/internal/database"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many images and faces are stored",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Load()

	pool, repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	images, embeddings, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Images: %d\n", images)
	fmt.Printf("Faces:  %d\n", embeddings)

	if cfg.Database.HNSWIndexPath == "" {
		return nil
	}
	meta, err := database.LoadEmbeddingIndexMetadata(cfg.Database.HNSWIndexPath)
	if err != nil {
		fmt.Printf("HNSW index: not built\n")
		return nil
	}
	current, err := repo.IndexMetadata(ctx)
	if err != nil {
		return err
	}
	state := "up to date"
	if *meta != current {
		state = "stale"
	}
	fmt.Printf("HNSW index: %d face(s), %s\n", meta.EmbeddingCount, state)
	return nil
}
