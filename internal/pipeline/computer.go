// Package pipeline implements concurrent face-embedding ingestion: a worker pool
// computes embeddings per image, results are delivered in submission order and
// handed through a bounded channel to a single writer that persists them.
package pipeline

import "context"

// Computer turns one image into zero or more face embeddings.
// A Computer is owned by a single worker and is never called concurrently.
type Computer interface {
	// Compute returns one embedding per detected face (empty when no face is found).
	Compute(ctx context.Context, path string) ([][]float32, error)
	// Close releases resources acquired when the computer was created.
	Close() error
}

// ComputerFactory creates a Computer. It is invoked once per worker at startup,
// so expensive setup belongs here rather than in Compute.
type ComputerFactory func() (Computer, error)

// ComputeFunc adapts a plain function into a Computer with a no-op Close.
type ComputeFunc func(ctx context.Context, path string) ([][]float32, error)

// Compute calls f.
func (f ComputeFunc) Compute(ctx context.Context, path string) ([][]float32, error) {
	return f(ctx, path)
}

// Close does nothing.
func (f ComputeFunc) Close() error { return nil }
