package facedetect

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kozaktomas/picarch/internal/pipeline"
)

// Options configures the computers produced by NewFactory.
type Options struct {
	BaseURL      string
	MaxImageSize int
	Timeout      time.Duration
}

// FileComputer reads image files from disk and returns one embedding per face.
type FileComputer struct {
	client       *Client
	maxImageSize int
}

// NewFileComputer creates a computer with its own HTTP client.
func NewFileComputer(opts Options) *FileComputer {
	return &FileComputer{
		client:       NewClient(opts.BaseURL, opts.Timeout),
		maxImageSize: opts.MaxImageSize,
	}
}

// NewFactory returns a factory for the encoder's worker pool.
func NewFactory(opts Options) pipeline.ComputerFactory {
	return func() (pipeline.Computer, error) {
		return NewFileComputer(opts), nil
	}
}

// Compute implements pipeline.Computer.
func (c *FileComputer) Compute(ctx context.Context, path string) ([][]float32, error) {
	resp, err := c.Detect(ctx, path)
	if err != nil {
		return nil, err
	}
	return resp.Embeddings(), nil
}

// Detect returns the full detection response for the image at path.
func (c *FileComputer) Detect(ctx context.Context, path string) (*FaceResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	data, err = ResizeImage(data, c.maxImageSize)
	if err != nil {
		return nil, err
	}
	return c.client.DetectFaces(ctx, path, data)
}

// Close releases idle connections held by the computer's client.
func (c *FileComputer) Close() error {
	c.client.client.CloseIdleConnections()
	return nil
}
