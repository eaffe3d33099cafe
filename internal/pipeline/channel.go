package pipeline

import (
	"context"
	"errors"
	"sync"
)

// ErrChannelClosed is returned when sending after the sentinel was enqueued.
var ErrChannelClosed = errors.New("persistence channel closed")

// DefaultQueueSize is the default capacity of a Channel.
const DefaultQueueSize = 64

// Message carries the embeddings of one image to the writer, or the sentinel.
type Message struct {
	Path       string
	Embeddings [][]float32

	sentinel bool
}

// Sentinel returns the message meaning "no more work".
func Sentinel() Message {
	return Message{sentinel: true}
}

// IsSentinel reports whether m is the sentinel.
func (m Message) IsSentinel() bool {
	return m.sentinel
}

// Channel is a bounded FIFO queue with many producers and one consumer.
// Close enqueues the sentinel after every message accepted before it.
type Channel struct {
	queue  chan Message
	mu     sync.RWMutex
	closed bool
}

// NewChannel creates a channel holding up to capacity messages.
// A capacity of zero makes every send wait for the consumer.
func NewChannel(capacity int) *Channel {
	return &Channel{queue: make(chan Message, max(capacity, 0))}
}

// Send enqueues msg, blocking while the channel is full. Sending the sentinel
// is the same as calling Close.
func (c *Channel) Send(ctx context.Context, msg Message) error {
	if msg.IsSentinel() {
		return c.Close(ctx)
	}

	// The read lock is held for the whole send so Close cannot slip the
	// sentinel in front of a message that already passed the closed check.
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrChannelClosed
	}
	select {
	case c.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close enqueues the sentinel. Later calls are no-ops and later sends fail.
func (c *Channel) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	select {
	case c.queue <- Sentinel():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a message is available or ctx is done.
func (c *Channel) Receive(ctx context.Context) (Message, error) {
	select {
	case msg := <-c.queue:
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Len returns the number of queued messages.
func (c *Channel) Len() int {
	return len(c.queue)
}
