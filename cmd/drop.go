package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/picarch/internal/config"
)

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop the picarch tables",
	Long: `Drop the images and embeddings tables together with the migration history.
The schema is created again the next time any command connects.`,
	Args: cobra.NoArgs,
	RunE: runDrop,
}

func init() {
	rootCmd.AddCommand(dropCmd)

	dropCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
}

func runDrop(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Load()

	if !mustGetBool(cmd, "yes") && !confirmAction("Drop all picarch tables? [y/N]: ") {
		fmt.Println("Cancelled.")
		return nil
	}

	pool, repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := repo.Drop(ctx); err != nil {
		return err
	}
	fmt.Println("Database dropped.")
	return nil
}
