package audit

import (
	"context"
	"log/slog"
	"time"
)

// Publisher emits events to a store, synchronously by default or through a
// buffered channel when async mode is enabled. Emit never blocks request
// handling in async mode; a full buffer drops the event with a log line
// rather than stalling logins.
type Publisher struct {
	store  Store
	logger *slog.Logger

	ch   chan Event
	done chan struct{}
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables asynchronous emission with the given buffer size.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.ch = make(chan Event, size)
		}
	}
}

func NewPublisher(store Store, logger *slog.Logger, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.ch != nil {
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

// Emit records one event. The timestamp is stamped here so callers don't
// have to.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.ch == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.ch <- event:
		return nil
	default:
		p.logger.Warn("audit buffer full, dropping event", "action", event.Action)
		return nil
	}
}

// List exposes stored events for admin surfaces and tests.
func (p *Publisher) List(ctx context.Context) ([]Event, error) {
	return p.store.List(ctx)
}

// Close flushes the async buffer and stops the drain goroutine. No-op in
// sync mode.
func (p *Publisher) Close() {
	if p.ch == nil {
		return
	}
	close(p.ch)
	<-p.done
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.ch {
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("failed to append audit event", "error", err, "action", event.Action)
		}
	}
}
