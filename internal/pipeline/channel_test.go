package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestChannel_FIFOThenSentinel(t *testing.T) {
	ctx := context.Background()
	ch := NewChannel(10)

	for i := range 3 {
		if err := ch.Send(ctx, Message{Path: fmt.Sprintf("/%d.jpg", i)}); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	if err := ch.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	for i := range 3 {
		msg, err := ch.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive failed: %v", err)
		}
		if msg.IsSentinel() {
			t.Fatalf("got sentinel before message %d", i)
		}
		if want := fmt.Sprintf("/%d.jpg", i); msg.Path != want {
			t.Errorf("expected %s, got %s", want, msg.Path)
		}
	}

	msg, err := ch.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if !msg.IsSentinel() {
		t.Errorf("expected sentinel, got %+v", msg)
	}
}

func TestChannel_SendAfterClose(t *testing.T) {
	ctx := context.Background()
	ch := NewChannel(2)

	if err := ch.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := ch.Send(ctx, Message{Path: "/late.jpg"}); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("expected ErrChannelClosed, got %v", err)
	}
	// Closing twice enqueues a single sentinel.
	if err := ch.Close(ctx); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if ch.Len() != 1 {
		t.Errorf("expected exactly one queued sentinel, got %d messages", ch.Len())
	}
}

func TestChannel_SendSentinelCloses(t *testing.T) {
	ctx := context.Background()
	ch := NewChannel(2)

	if err := ch.Send(ctx, Sentinel()); err != nil {
		t.Fatalf("Send(Sentinel) failed: %v", err)
	}
	if err := ch.Send(ctx, Message{Path: "/a.jpg"}); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("expected ErrChannelClosed after sentinel, got %v", err)
	}
}

func TestChannel_ReceiveBlocksUntilMessage(t *testing.T) {
	ctx := context.Background()
	ch := NewChannel(0)

	done := make(chan Message)
	go func() {
		msg, _ := ch.Receive(ctx)
		done <- msg
	}()

	select {
	case <-done:
		t.Fatal("Receive returned before anything was sent")
	case <-time.After(20 * time.Millisecond):
	}

	if err := ch.Send(ctx, Message{Path: "/a.jpg"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if msg := <-done; msg.Path != "/a.jpg" {
		t.Errorf("expected /a.jpg, got %s", msg.Path)
	}
}

func TestChannel_ReceiveHonorsContext(t *testing.T) {
	ch := NewChannel(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := ch.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestChannel_BoundedSendBlocks(t *testing.T) {
	ch := NewChannel(1)
	if err := ch.Send(context.Background(), Message{Path: "/a.jpg"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := ch.Send(ctx, Message{Path: "/b.jpg"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected full channel to block until deadline, got %v", err)
	}
}

func TestChannel_ConcurrentProducers(t *testing.T) {
	ctx := context.Background()
	ch := NewChannel(4)

	const producers, perProducer = 5, 20
	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				if err := ch.Send(ctx, Message{Path: fmt.Sprintf("/%d/%d.jpg", p, i)}); err != nil {
					t.Errorf("Send failed: %v", err)
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		_ = ch.Close(ctx)
	}()

	received := 0
	for {
		msg, err := ch.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive failed: %v", err)
		}
		if msg.IsSentinel() {
			break
		}
		received++
	}
	if received != producers*perProducer {
		t.Errorf("expected %d messages before sentinel, got %d", producers*perProducer, received)
	}
}
