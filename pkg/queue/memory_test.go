package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx := context.Background()
	received := make(chan *Message, 1)

	sub, err := bus.Subscribe(ctx, "crawlerd.results.done", func(msg *Message) {
		received <- msg
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	if err := bus.Publish(ctx, "crawlerd.results.done", []byte("report")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-received:
		if string(msg.Data) != "report" {
			t.Errorf("Expected 'report', got %q", string(msg.Data))
		}
		if msg.Subject != "crawlerd.results.done" {
			t.Errorf("Expected subject 'crawlerd.results.done', got %q", msg.Subject)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for message")
	}
}

func TestMemoryBus_Wildcard(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx := context.Background()
	var received atomic.Int32

	sub, err := bus.Subscribe(ctx, "crawlerd.results.*", func(msg *Message) {
		received.Add(1)
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	for _, subject := range []string{"crawlerd.results.done", "crawlerd.results.dead", "crawlerd.tasks.new"} {
		if err := bus.Publish(ctx, subject, []byte("x")); err != nil {
			t.Fatalf("Publish %s failed: %v", subject, err)
		}
	}

	time.Sleep(100 * time.Millisecond)
	if got := received.Load(); got != 2 {
		t.Errorf("Expected 2 matching messages, got %d", got)
	}
}

func TestMemoryQueue_PushPullAck(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx := context.Background()
	q := bus.Queue("tasks")

	if err := q.Push(ctx, []byte("payload")); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	if n, _ := q.Len(ctx); n != 1 {
		t.Errorf("Expected 1 pending, got %d", n)
	}

	d, err := q.Pull(ctx)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if string(d.Data) != "payload" {
		t.Errorf("Expected 'payload', got %q", string(d.Data))
	}

	if err := q.Ack(ctx, d.ID); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}

	// Second ack of the same delivery must fail.
	if err := q.Ack(ctx, d.ID); !errors.Is(err, ErrUnknownDelivery) {
		t.Errorf("Expected ErrUnknownDelivery, got %v", err)
	}
}

func TestMemoryQueue_NackRedelivers(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx := context.Background()
	q := bus.Queue("tasks")

	if err := q.Push(ctx, []byte("retry-me")); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	first, err := q.Pull(ctx)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if err := q.Nack(ctx, first.ID); err != nil {
		t.Fatalf("Nack failed: %v", err)
	}

	second, err := q.Pull(ctx)
	if err != nil {
		t.Fatalf("Pull after nack failed: %v", err)
	}
	if string(second.Data) != "retry-me" {
		t.Errorf("Expected redelivered payload, got %q", string(second.Data))
	}
	if second.ID == first.ID {
		t.Error("Redelivery must carry a fresh delivery ID")
	}
}

func TestMemoryQueue_PullBlocksUntilCancel(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	q := bus.Queue("tasks")
	if _, err := q.Pull(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestMemoryQueue_SameNameSameQueue(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	if bus.Queue("tasks") != bus.Queue("tasks") {
		t.Error("Queue must return the same instance per name")
	}
	if bus.Queue("tasks").Name() != "tasks" {
		t.Errorf("Unexpected queue name %q", bus.Queue("tasks").Name())
	}
}

func TestMemoryBus_ClosedBusRejectsOperations(t *testing.T) {
	bus := NewMemoryBus()
	q := bus.Queue("tasks")
	bus.Close()

	ctx := context.Background()
	if err := bus.Publish(ctx, "x", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Publish, got %v", err)
	}
	if _, err := bus.Subscribe(ctx, "x", func(*Message) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Subscribe, got %v", err)
	}
	if err := q.Push(ctx, []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Push, got %v", err)
	}
}
