// Package queue provides the task transport: an at-least-once work queue
// for task submission plus publish/subscribe for result fan-out. The
// default implementation uses NATS JetStream, with an in-memory option
// for testing. Delivery semantics are at-least-once: a task is redelivered
// until a worker acknowledges it, so workers ack only on a terminal report
// and nack on retryable engine faults.
package queue

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned when operating on a closed bus or subscription.
	ErrClosed = errors.New("queue closed")

	// ErrEmpty is returned when pulling from an empty queue after the
	// pull wait elapses.
	ErrEmpty = errors.New("queue empty")

	// ErrUnknownDelivery is returned when acking or nacking a delivery
	// the queue is not tracking, typically after its ack window expired.
	ErrUnknownDelivery = errors.New("unknown delivery")
)

// Bus is the messaging transport. Implementations must be safe for
// concurrent use.
type Bus interface {
	// Publish sends a message to all subscribers of the subject.
	// Fire-and-forget; does not wait for delivery.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the subject. The
	// handler runs on the subscription's own goroutine. Subjects support
	// NATS wildcards: "crawlerd.results.*" matches one token, ">" the rest.
	Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error)

	// Queue returns the named task queue, creating it on first use.
	Queue(name string) TaskQueue

	// Close shuts down the bus and every subscription and queue.
	Close() error
}

// MessageHandler processes one incoming message.
type MessageHandler func(msg *Message)

// Message is an incoming pub/sub message.
type Message struct {
	Subject string
	Data    []byte
}

// Subscription is an active subscription that can be cancelled.
type Subscription interface {
	Unsubscribe() error
	Subject() string
}

// TaskQueue is a persistent at-least-once work queue. Every pulled
// delivery must be resolved with Ack or Nack; an unresolved delivery is
// redelivered after the ack window.
type TaskQueue interface {
	// Push enqueues a task payload.
	Push(ctx context.Context, data []byte) error

	// Pull retrieves the next delivery, blocking until one is available,
	// the pull wait elapses (ErrEmpty), or the context is cancelled.
	Pull(ctx context.Context) (*Delivery, error)

	// Ack marks a delivery as terminally processed. The payload is never
	// redelivered.
	Ack(ctx context.Context, deliveryID string) error

	// Nack returns a delivery to the queue for redelivery.
	Nack(ctx context.Context, deliveryID string) error

	// Len reports the approximate number of pending tasks.
	Len(ctx context.Context) (int, error)

	// Name returns the queue name.
	Name() string
}

// Delivery is one unit of work pulled from a TaskQueue. The ID identifies
// the delivery, not the task: a redelivered task gets a fresh ID.
type Delivery struct {
	ID   string
	Data []byte
}
