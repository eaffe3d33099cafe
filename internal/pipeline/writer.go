package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/kozaktomas/picarch/internal/database"
)

// WriterState is the lifecycle state of a Writer.
type WriterState int32

const (
	WriterRunning WriterState = iota
	WriterStopped
)

func (s WriterState) String() string {
	switch s {
	case WriterRunning:
		return "running"
	case WriterStopped:
		return "stopped"
	default:
		return fmt.Sprintf("WriterState(%d)", int32(s))
	}
}

// WriterStats counts what the writer did with the messages it received.
type WriterStats struct {
	Saved      int // images persisted
	Embeddings int // embedding rows persisted
	Empty      int // messages without embeddings, discarded
	Duplicates int // images already stored, ignored
	Failed     int // writes that returned an error, not retried
}

// Writer is the single consumer of a Channel. It persists one image per
// message and keeps going when a write fails.
type Writer struct {
	store  database.ImageWriter
	ch     *Channel
	logger *log.Logger

	state atomic.Int32
	mu    sync.Mutex
	stats WriterStats
}

// NewWriter creates a writer draining ch into store.
func NewWriter(store database.ImageWriter, ch *Channel, logger *log.Logger) *Writer {
	if logger == nil {
		logger = log.Default()
	}
	return &Writer{store: store, ch: ch, logger: logger}
}

// Run consumes messages until the sentinel arrives, then returns nil.
// It returns early only when ctx is done.
func (w *Writer) Run(ctx context.Context) error {
	defer w.state.Store(int32(WriterStopped))

	for {
		msg, err := w.ch.Receive(ctx)
		if err != nil {
			return fmt.Errorf("persistence writer: %w", err)
		}
		if msg.IsSentinel() {
			return nil
		}
		w.handle(ctx, msg)
	}
}

// State returns the current state.
func (w *Writer) State() WriterState {
	return WriterState(w.state.Load())
}

// Stats returns a snapshot of the counters.
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Writer) handle(ctx context.Context, msg Message) {
	if len(msg.Embeddings) == 0 {
		w.count(func(s *WriterStats) { s.Empty++ })
		return
	}

	err := w.save(ctx, msg)
	switch {
	case err == nil:
		w.count(func(s *WriterStats) {
			s.Saved++
			s.Embeddings += len(msg.Embeddings)
		})
	case errors.Is(err, database.ErrImageExists):
		w.logger.Printf("Image %s already stored, skipping", msg.Path)
		w.count(func(s *WriterStats) { s.Duplicates++ })
	default:
		w.logger.Printf("Error saving %s: %v", msg.Path, err)
		w.count(func(s *WriterStats) { s.Failed++ })
	}
}

func (w *Writer) save(ctx context.Context, msg Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("store panicked: %v", rec)
		}
	}()
	_, err = w.store.SaveImage(ctx, msg.Path, msg.Embeddings)
	return err
}

func (w *Writer) count(update func(*WriterStats)) {
	w.mu.Lock()
	update(&w.stats)
	w.mu.Unlock()
}
