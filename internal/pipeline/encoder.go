package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
)

// ErrComputePanic marks a result whose computer panicked.
var ErrComputePanic = errors.New("embedding computation panicked")

// Result is the outcome of computing embeddings for one image.
// A failed result has Err set and no embeddings.
type Result struct {
	Index      int
	Path       string
	Embeddings [][]float32
	Err        error
}

// Failed reports whether the computation failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Observer is notified once per item when its result is known, in completion
// order. Items skipped because the context was cancelled are included.
// ItemDone is called from worker goroutines and must be safe for concurrent use.
type Observer interface {
	ItemDone(r Result)
}

// ObserverFunc adapts a function into an Observer.
type ObserverFunc func(r Result)

// ItemDone calls f.
func (f ObserverFunc) ItemDone(r Result) { f(r) }

// Encoder computes embeddings with a fixed pool of workers.
type Encoder struct {
	workers  int
	factory  ComputerFactory
	observer Observer
	logger   *log.Logger
}

// EncoderOption configures an Encoder.
type EncoderOption func(*Encoder)

// WithWorkers sets the pool size. Values below 1 select runtime.NumCPU().
func WithWorkers(n int) EncoderOption {
	return func(e *Encoder) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithObserver registers a completion observer.
func WithObserver(o Observer) EncoderOption {
	return func(e *Encoder) { e.observer = o }
}

// WithLogger sets the logger used for per-item failures.
func WithLogger(l *log.Logger) EncoderOption {
	return func(e *Encoder) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEncoder creates an encoder whose workers each own a Computer built by factory.
func NewEncoder(factory ComputerFactory, opts ...EncoderOption) *Encoder {
	e := &Encoder{
		workers: runtime.NumCPU(),
		factory: factory,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Workers returns the configured pool size.
func (e *Encoder) Workers() int {
	return e.workers
}

type job struct {
	index int
	path  string
	slot  chan Result
}

// Encode starts computing embeddings for paths and returns a channel yielding
// exactly len(paths) results in the order of paths, regardless of the order in
// which workers finish. A slow item holds back delivery of later ones; at most
// 2×workers items are in flight ahead of the consumer. The caller must drain the
// channel. Once ctx is cancelled, items not yet started are yielded with ctx.Err().
//
// All computers are created before any work starts; a factory error is returned
// and nothing runs. Computers are closed when their worker exits, before the
// result channel is closed.
func (e *Encoder) Encode(ctx context.Context, paths []string) (<-chan Result, error) {
	out := make(chan Result)
	if len(paths) == 0 {
		close(out)
		return out, nil
	}

	workers := min(e.workers, len(paths))
	computers := make([]Computer, 0, workers)
	for i := range workers {
		c, err := e.factory()
		if err != nil {
			for _, started := range computers {
				_ = started.Close()
			}
			return nil, fmt.Errorf("starting encoder worker %d: %w", i, err)
		}
		computers = append(computers, c)
	}

	jobs := make(chan job)
	pending := make(chan chan Result, 2*workers)

	var wg sync.WaitGroup
	for i, c := range computers {
		wg.Add(1)
		go e.work(ctx, i, c, jobs, &wg)
	}

	go e.dispatch(ctx, paths, jobs, pending)

	go func() {
		defer close(out)
		for slot := range pending {
			out <- <-slot
		}
		wg.Wait()
	}()

	return out, nil
}

// dispatch hands out jobs in submission order. Each job's slot is queued on
// pending before the job is handed to a worker, so the collector always waits
// for results in order. Items skipped after cancellation are still reported
// to the observer.
func (e *Encoder) dispatch(ctx context.Context, paths []string, jobs chan<- job, pending chan<- chan Result) {
	defer close(jobs)
	defer close(pending)

	for i, path := range paths {
		slot := make(chan Result, 1)
		pending <- slot

		if ctx.Err() != nil {
			e.cancelled(ctx, i, path, slot)
			continue
		}
		select {
		case jobs <- job{index: i, path: path, slot: slot}:
		case <-ctx.Done():
			e.cancelled(ctx, i, path, slot)
		}
	}
}

func (e *Encoder) cancelled(ctx context.Context, index int, path string, slot chan<- Result) {
	r := Result{Index: index, Path: path, Err: ctx.Err()}
	e.notify(r)
	slot <- r
}

func (e *Encoder) notify(r Result) {
	if e.observer != nil {
		e.observer.ItemDone(r)
	}
}

func (e *Encoder) work(ctx context.Context, id int, c Computer, jobs <-chan job, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		if err := c.Close(); err != nil {
			e.logger.Printf("Worker %d: failed to close computer: %v", id, err)
		}
	}()

	for j := range jobs {
		r := e.compute(ctx, c, j)
		e.notify(r)
		j.slot <- r
	}
}

// compute runs one item, turning errors and panics into a failed result.
func (e *Encoder) compute(ctx context.Context, c Computer, j job) (r Result) {
	r = Result{Index: j.index, Path: j.path}

	defer func() {
		if rec := recover(); rec != nil {
			r.Embeddings = nil
			r.Err = fmt.Errorf("%w: %v", ErrComputePanic, rec)
			e.logger.Printf("Error embedding %s: %v", j.path, r.Err)
		}
	}()

	embeddings, err := c.Compute(ctx, j.path)
	if err != nil {
		r.Err = err
		e.logger.Printf("Error embedding %s: %v", j.path, err)
		return r
	}
	r.Embeddings = embeddings
	return r
}
