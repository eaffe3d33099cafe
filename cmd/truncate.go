package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/picarch/internal/config"
)

var truncateCmd = &cobra.Command{
	Use:   "truncate",
	Short: "Delete every stored image and face embedding",
	Long: `Delete every stored image and face embedding but keep the schema.

The next encode run embeds every image again.`,
	Args: cobra.NoArgs,
	RunE: runTruncate,
}

func init() {
	rootCmd.AddCommand(truncateCmd)

	truncateCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
}

func runTruncate(cmd *cobra.Command, args []string) error {
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
	if !mustGetBool(cmd, "yes") &&
		!confirmAction(fmt.Sprintf("Delete %d image(s) and %d face(s)? [y/N]: ", images, embeddings)) {
		fmt.Println("Cancelled.")
		return nil
	}

	if err := repo.Truncate(ctx); err != nil {
		return err
	}
	fmt.Println("Database truncated.")
	return nil
}
