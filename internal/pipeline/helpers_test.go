package pipeline

import (
	"context"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/picarch/internal/database"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// vec returns a deterministic EmbeddingDim-long vector.
func vec(seed int) []float32 {
	v := make([]float32, database.EmbeddingDim)
	for i := range v {
		v[i] = float32((i+seed)%17) + float32(seed)
	}
	return v
}

// fakeOutcome describes what the fake computer does for one path.
type fakeOutcome struct {
	embeddings [][]float32
	err        error
	panicWith  any
	delay      time.Duration
}

// fakeModel is shared configuration for the fake computers created by its factory.
type fakeModel struct {
	mu       sync.Mutex
	outcomes map[string]fakeOutcome
	calls    []string

	created    atomic.Int32
	closed     atomic.Int32
	failAfter  int32 // factory fails once this many computers exist (0 = never)
	factoryErr error
}

func newFakeModel(outcomes map[string]fakeOutcome) *fakeModel {
	return &fakeModel{outcomes: outcomes}
}

func (m *fakeModel) factory() (Computer, error) {
	if m.factoryErr != nil && m.created.Load() >= m.failAfter {
		return nil, m.factoryErr
	}
	m.created.Add(1)
	return &fakeComputer{model: m}, nil
}

func (m *fakeModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type fakeComputer struct {
	model  *fakeModel
	closed bool
}

func (c *fakeComputer) Compute(ctx context.Context, path string) ([][]float32, error) {
	c.model.mu.Lock()
	c.model.calls = append(c.model.calls, path)
	out := c.model.outcomes[path]
	c.model.mu.Unlock()

	if out.delay > 0 {
		select {
		case <-time.After(out.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if out.panicWith != nil {
		panic(out.panicWith)
	}
	return out.embeddings, out.err
}

func (c *fakeComputer) Close() error {
	if !c.closed {
		c.closed = true
		c.model.closed.Add(1)
	}
	return nil
}

func collect(results <-chan Result) []Result {
	var out []Result
	for r := range results {
		out = append(out, r)
	}
	return out
}
