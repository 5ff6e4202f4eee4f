package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Config holds connection settings for the NATS-backed bus.
type Config struct {
	// URL is the NATS server URL (e.g. "nats://localhost:4222").
	URL string

	// Name is a client identifier for monitoring.
	Name string

	// Timeout is the default timeout for connection operations.
	Timeout time.Duration

	// AckWait is how long a pulled task may stay unacknowledged before
	// redelivery. Must exceed the longest task deadline plus persistence,
	// or a slow task is redelivered while still running.
	AckWait time.Duration

	// MaxDeliver caps redeliveries before JetStream parks the message.
	MaxDeliver int

	// PullWait bounds how long Pull blocks waiting for a task.
	PullWait time.Duration
}

// DefaultConfig returns a Config with workable defaults.
func DefaultConfig() Config {
	return Config{
		URL:        nats.DefaultURL,
		Name:       "crawlerd",
		Timeout:    30 * time.Second,
		AckWait:    5 * time.Minute,
		MaxDeliver: 5,
		PullWait:   30 * time.Second,
	}
}

// NATSBus implements Bus over NATS with JetStream-backed task queues.
type NATSBus struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	config Config
	mu     sync.Mutex
	queues map[string]*natsQueue
	closed atomic.Bool
}

// NewNATSBus connects to NATS and initializes JetStream.
func NewNATSBus(cfg Config) (*NATSBus, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	bus, err := NewNATSBusFromConn(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return bus, nil
}

// NewNATSBusFromConn builds a bus over an existing connection. Useful for
// tests with an embedded NATS server.
func NewNATSBusFromConn(conn *nats.Conn, cfg Config) (*NATSBus, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("jetstream init: %w", err)
	}
	return &NATSBus{
		conn:   conn,
		js:     js,
		config: cfg,
		queues: make(map[string]*natsQueue),
	}, nil
}

func (b *NATSBus) Publish(ctx context.Context, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.conn.Publish(subject, data)
}

func (b *NATSBus) Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{Subject: msg.Subject, Data: msg.Data})
	})
	if err != nil {
		return nil, err
	}
	return &natsSubscription{sub: sub}, nil
}

func (b *NATSBus) Queue(name string) TaskQueue {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.queues[name]; ok {
		return q
	}
	q := &natsQueue{
		name:     name,
		js:       b.js,
		config:   b.config,
		inflight: make(map[string]jetstream.Msg),
	}
	b.queues[name] = q
	return q
}

func (b *NATSBus) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	b.conn.Close()
	return nil
}

// JetStream exposes the JetStream context for operations the Bus
// interface does not cover.
func (b *NATSBus) JetStream() jetstream.JetStream {
	return b.js
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) Subject() string {
	return s.sub.Subject
}

// natsQueue implements TaskQueue over a JetStream work-queue stream with
// a durable consumer. Pulled messages are held in the inflight map until
// Ack or Nak resolves them.
type natsQueue struct {
	name     string
	js       jetstream.JetStream
	config   Config
	stream   jetstream.Stream
	consumer jetstream.Consumer
	init     sync.Once
	initErr  error

	mu       sync.Mutex
	inflight map[string]jetstream.Msg
}

func (q *natsQueue) subject() string {
	return fmt.Sprintf("crawlerd.queue.%s", q.name)
}

func (q *natsQueue) ensureStream(ctx context.Context) error {
	q.init.Do(func() {
		q.stream, q.initErr = q.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:        fmt.Sprintf("CRAWLERD_QUEUE_%s", q.name),
			Subjects:    []string{q.subject()},
			Retention:   jetstream.WorkQueuePolicy,
			MaxMsgs:     100000,
			MaxBytes:    1024 * 1024 * 1024,
			Discard:     jetstream.DiscardOld,
			MaxAge:      24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			AllowDirect: true,
		})
		if q.initErr != nil {
			return
		}

		ackWait := q.config.AckWait
		if ackWait <= 0 {
			ackWait = 5 * time.Minute
		}
		maxDeliver := q.config.MaxDeliver
		if maxDeliver <= 0 {
			maxDeliver = 5
		}
		q.consumer, q.initErr = q.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
			Durable:       fmt.Sprintf("crawlerd_worker_%s", q.name),
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       ackWait,
			MaxDeliver:    maxDeliver,
			MaxAckPending: 1000,
		})
	})
	return q.initErr
}

func (q *natsQueue) Push(ctx context.Context, data []byte) error {
	if err := q.ensureStream(ctx); err != nil {
		return err
	}
	_, err := q.js.Publish(ctx, q.subject(), data)
	return err
}

func (q *natsQueue) Pull(ctx context.Context) (*Delivery, error) {
	if err := q.ensureStream(ctx); err != nil {
		return nil, err
	}

	wait := q.config.PullWait
	if wait <= 0 {
		wait = 30 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
	}

	msgs, err := q.consumer.Fetch(1, jetstream.FetchMaxWait(wait))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) {
			return nil, ErrEmpty
		}
		return nil, err
	}

	for msg := range msgs.Messages() {
		meta, err := msg.Metadata()
		if err != nil {
			_ = msg.Nak()
			continue
		}
		// Consumer sequence is unique per delivery, so a redelivery gets
		// its own ID and cannot collide with a still-tracked one.
		id := fmt.Sprintf("%d:%d", meta.Sequence.Stream, meta.Sequence.Consumer)
		q.mu.Lock()
		q.inflight[id] = msg
		q.mu.Unlock()
		return &Delivery{ID: id, Data: msg.Data()}, nil
	}

	if err := msgs.Error(); err != nil {
		return nil, err
	}
	return nil, ErrEmpty
}

func (q *natsQueue) Ack(ctx context.Context, deliveryID string) error {
	msg, err := q.take(deliveryID)
	if err != nil {
		return err
	}
	return msg.Ack()
}

func (q *natsQueue) Nack(ctx context.Context, deliveryID string) error {
	msg, err := q.take(deliveryID)
	if err != nil {
		return err
	}
	return msg.Nak()
}

func (q *natsQueue) take(deliveryID string) (jetstream.Msg, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	msg, ok := q.inflight[deliveryID]
	if !ok {
		return nil, ErrUnknownDelivery
	}
	delete(q.inflight, deliveryID)
	return msg, nil
}

func (q *natsQueue) Len(ctx context.Context) (int, error) {
	if err := q.ensureStream(ctx); err != nil {
		return 0, err
	}
	info, err := q.stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return int(info.State.Msgs), nil
}

func (q *natsQueue) Name() string {
	return q.name
}
