package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/picarch/internal/config"
	"github.com/kozaktomas/picarch/internal/facedetect"
	"github.com/kozaktomas/picarch/internal/pipeline"
	"github.com/kozaktomas/picarch/internal/scan"
	"github.com/kozaktomas/picarch/internal/search"
)

var encodeCmd = &cobra.Command{
	Use:   "encode <path>",
	Short: "Compute and store face embeddings for every image below a directory",
	Long: `Walk a directory, compute a face embedding for every face in every image
not stored yet and save them to the database.

Images already in the database are skipped, so an interrupted run can simply
be started again. Images without faces are not stored and are retried on the
next run.

Examples:
  picarch encode ~/Pictures
  picarch encode /mnt/archive --workers 8 --exclude '**/raw/**'
  picarch encode /mnt/archive --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runEncode,
}

func init() {
	rootCmd.AddCommand(encodeCmd)

	encodeCmd.Flags().Int("workers", 0, "Number of parallel embedding workers (default PIPELINE_WORKERS or number of CPUs)")
	encodeCmd.Flags().Int("queue-size", 0, "Capacity of the database write queue (default PIPELINE_QUEUE_SIZE or 64)")
	encodeCmd.Flags().StringSlice("include", nil, "Glob patterns of files to include, relative to path (default **/*)")
	encodeCmd.Flags().StringSlice("exclude", nil, "Glob patterns of files or directories to skip")
	encodeCmd.Flags().Bool("dry-run", false, "Only report how many images would be embedded")
}

func runEncode(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Load()

	if n := mustGetInt(cmd, "workers"); n > 0 {
		cfg.Pipeline.Workers = n
	}
	if n := mustGetInt(cmd, "queue-size"); n > 0 {
		cfg.Pipeline.QueueSize = n
	}
	if include := mustGetStringSlice(cmd, "include"); len(include) > 0 {
		cfg.Scan.Include = include
	}
	if exclude := mustGetStringSlice(cmd, "exclude"); len(exclude) > 0 {
		cfg.Scan.Exclude = exclude
	}

	walker, err := scan.NewWalker(cfg.Scan.Include, cfg.Scan.Exclude)
	if err != nil {
		return err
	}
	images, err := walker.Walk(args[0])
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", args[0], err)
	}
	fmt.Printf("Found %d image(s)\n", len(images))

	pool, repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	factory := facedetect.NewFactory(facedetect.Options{
		BaseURL:      cfg.Embedding.URL,
		MaxImageSize: cfg.Embedding.MaxImageSize,
		Timeout:      cfg.Embedding.Timeout,
	})

	planner := pipeline.New(repo, repo, factory)
	work, err := planner.Plan(ctx, images)
	if err != nil {
		return err
	}
	fmt.Printf("Images to embed: %d (skipping %d already embedded)\n\n", len(work), len(images)-len(work))

	if mustGetBool(cmd, "dry-run") || len(work) == 0 {
		return nil
	}

	bar := progressbar.NewOptions(len(work),
		progressbar.OptionSetDescription("Embedding faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	p := pipeline.New(repo, repo, factory,
		pipeline.WithPoolSize(cfg.Pipeline.Workers),
		pipeline.WithQueueSize(cfg.Pipeline.QueueSize),
		pipeline.WithProgress(pipeline.ObserverFunc(func(pipeline.Result) {
			bar.Add(1)
		})),
	)
	summary, runErr := p.Run(ctx, work)
	fmt.Println()
	if summary == nil {
		return runErr
	}

	fmt.Printf("\nCompleted in %s: %d image(s) saved with %d face(s)\n",
		summary.Duration.Round(time.Millisecond), summary.Writer.Saved, summary.Writer.Embeddings)
	fmt.Printf("No face: %d, errors: %d, already stored: %d\n",
		summary.NoFace, summary.Failed+summary.Writer.Failed, summary.Writer.Duplicates)

	if imageCount, embeddingCount, err := repo.Count(ctx); err == nil {
		fmt.Printf("Total in database: %d image(s), %d face(s)\n", imageCount, embeddingCount)
	}

	if runErr != nil {
		return runErr
	}

	if cfg.Database.HNSWIndexPath != "" && summary.Writer.Saved > 0 {
		if _, err := search.RebuildIndex(ctx, repo, cfg.Database.HNSWIndexPath, log.Default()); err != nil {
			return err
		}
	}
	return nil
}
