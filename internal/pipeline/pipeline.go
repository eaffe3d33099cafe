package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/picarch/internal/database"
)

// Summary describes a finished run.
type Summary struct {
	RunID      string
	Candidates int // identifiers passed to Run
	Skipped    int // already persisted before the run started
	Queued     int // work items handed to the encoder
	Failed     int // computations that returned an error
	NoFace     int // computations that found no face
	Writer     WriterStats
	Duration   time.Duration
}

// Pipeline wires the encoder, the channel and the writer together.
type Pipeline struct {
	snapshot  database.ImageReader
	store     database.ImageWriter
	factory   ComputerFactory
	workers   int
	queueSize int
	observer  Observer
	logger    *log.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPoolSize sets the number of encoder workers (0 = runtime.NumCPU()).
func WithPoolSize(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

// WithQueueSize sets the capacity of the persistence channel.
func WithQueueSize(n int) Option {
	return func(p *Pipeline) { p.queueSize = n }
}

// WithProgress registers an observer of encoder completions.
func WithProgress(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithPipelineLogger sets the base logger. Each run prefixes it with its run ID.
func WithPipelineLogger(l *log.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a pipeline. snapshot is read once per run to find the images
// already persisted; store receives the writes and is used only by the writer.
func New(snapshot database.ImageReader, store database.ImageWriter, factory ComputerFactory, opts ...Option) *Pipeline {
	p := &Pipeline{
		snapshot:  snapshot,
		store:     store,
		factory:   factory,
		queueSize: DefaultQueueSize,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan returns the candidates that still need embedding according to the
// current store contents.
func (p *Pipeline) Plan(ctx context.Context, candidates []string) ([]string, error) {
	persisted, err := p.snapshot.GetAllImagePaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded images: %w", err)
	}
	return Remaining(candidates, NewPathSet(persisted)), nil
}

// Run embeds and persists every candidate not yet stored. Per-item compute and
// write failures are logged and counted; Run fails only when the snapshot cannot
// be read, the encoder cannot start, or ctx is cancelled. Writes happen in the
// order of candidates. Running twice concurrently against one store is unsupported:
// the persisted set is read once, at the start.
func (p *Pipeline) Run(ctx context.Context, candidates []string) (*Summary, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := log.New(p.logger.Writer(), fmt.Sprintf("%s[run %s] ", p.logger.Prefix(), runID[:8]), p.logger.Flags())

	summary := &Summary{RunID: runID, Candidates: len(candidates)}
	defer func() { summary.Duration = time.Since(start) }()

	work, err := p.Plan(ctx, candidates)
	if err != nil {
		return nil, err
	}
	summary.Skipped = len(candidates) - len(work)
	summary.Queued = len(work)
	logger.Printf("%d candidate(s), %d already embedded, %d to embed", len(candidates), summary.Skipped, len(work))

	if len(work) == 0 {
		return summary, nil
	}

	encoder := NewEncoder(p.factory, WithWorkers(p.workers), WithObserver(p.observer), WithLogger(logger))
	results, err := encoder.Encode(ctx, work)
	if err != nil {
		return nil, fmt.Errorf("failed to start encoder: %w", err)
	}

	ch := NewChannel(p.queueSize)
	writer := NewWriter(p.store, ch, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return writer.Run(gctx)
	})

	var sendErr error
	for r := range results {
		switch {
		case r.Failed():
			summary.Failed++
		case len(r.Embeddings) == 0:
			summary.NoFace++
			logger.Printf("No face found in %s", r.Path)
		}

		// Keep draining the encoder after a send failure so its workers exit.
		if sendErr != nil {
			continue
		}
		if err := ch.Send(gctx, Message{Path: r.Path, Embeddings: r.Embeddings}); err != nil {
			sendErr = fmt.Errorf("queue %s: %w", r.Path, err)
		}
	}

	closeErr := ch.Close(gctx)
	waitErr := g.Wait()
	summary.Writer = writer.Stats()

	if err := errors.Join(sendErr, closeErr, waitErr); err != nil {
		return summary, err
	}
	logger.Printf("Done: %d image(s) saved, %d embedding(s), %d failed", summary.Writer.Saved, summary.Writer.Embeddings, summary.Writer.Failed+summary.Failed)
	return summary, nil
}
