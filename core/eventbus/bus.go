// Package eventbus routes typed events between agent modules.
//
// The bus is topic based: subscribers register for a single event kind and
// get their own bounded delivery queue. Publishing never blocks the
// publisher; when a subscriber's queue is full the oldest pending event for
// that subscriber is dropped and counted. Delivery order is FIFO per
// subscriber per topic. Nothing is guaranteed across topics or across
// subscribers of the same topic.
package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/TreasureProject/voicecore/core/events"
)

const defaultQueueCapacity = 16

var (
	// ErrTimeout is returned by ReceiveTimeout when no event arrived in time.
	ErrTimeout = errors.New("eventbus: receive timed out")
	// ErrClosed is returned when receiving on a closed subscription.
	ErrClosed = errors.New("eventbus: subscription closed")
)

type Bus struct {
	mu   sync.RWMutex
	subs map[events.Kind][]*Subscription
}

func New() *Bus {
	return &Bus{subs: map[events.Kind][]*Subscription{}}
}

type subscribeOptions struct {
	queueCapacity int
	name          string
}

type SubscribeOption func(*subscribeOptions)

// WithQueueCapacity bounds the subscriber's delivery queue. Capacity must be
// at least one; smaller values are ignored.
func WithQueueCapacity(capacity int) SubscribeOption {
	return func(o *subscribeOptions) {
		if capacity >= 1 {
			o.queueCapacity = capacity
		}
	}
}

// WithSubscriberName labels the subscription in logs and metrics.
func WithSubscriberName(name string) SubscribeOption {
	return func(o *subscribeOptions) { o.name = name }
}

// Subscribe registers a new subscriber for one topic. Every subscriber of a
// topic receives every event published on it, independently of the others.
func (b *Bus) Subscribe(topic events.Kind, opts ...SubscribeOption) *Subscription {
	options := subscribeOptions{queueCapacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(&options)
	}

	sub := &Subscription{
		bus:   b,
		id:    uuid.NewString(),
		name:  options.name,
		topic: topic,
		queue: make(chan events.Event, options.queueCapacity),
		done:  make(chan struct{}),
	}
	if sub.name == "" {
		sub.name = sub.id
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	return sub
}

// Publish routes the event to every current subscriber of its kind. It never
// blocks on a slow consumer; backpressure is local to each subscription.
func (b *Bus) Publish(event events.Event) {
	b.mu.RLock()
	subs := b.subs[event.Kind()]
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.push(event)
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sub.topic]
	for i, s := range subs {
		if s.id == sub.id {
			b.subs[sub.topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Subscription is one subscriber's bounded delivery queue for a single topic.
// Owned by the bus; detach with Close.
type Subscription struct {
	bus   *Bus
	id    string
	name  string
	topic events.Kind

	// pushMu serializes producers so drop-oldest keeps FIFO order intact.
	pushMu sync.Mutex
	queue  chan events.Event

	closeOnce sync.Once
	done      chan struct{}

	dropped atomic.Uint64
}

// Topic is the event kind this subscription delivers.
func (s *Subscription) Topic() events.Kind { return s.topic }

// Dropped is the number of events discarded because the queue was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Events exposes the delivery queue for select-based consumption. The channel
// is never closed; combine with Done when shutting down.
func (s *Subscription) Events() <-chan events.Event { return s.queue }

// Done is closed when the subscription has been detached from the bus.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Receive blocks the calling goroutine until an event arrives, the context
// ends, or the subscription is closed.
func (s *Subscription) Receive(ctx context.Context) (events.Event, error) {
	select {
	case event := <-s.queue:
		return event, nil
	case <-s.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReceiveTimeout is Receive with a deadline instead of a context. It returns
// ErrTimeout when no event arrived in time.
func (s *Subscription) ReceiveTimeout(timeout time.Duration) (events.Event, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	event, err := s.Receive(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrTimeout
	}
	return event, err
}

// Close detaches the subscription from the bus. Pending events are discarded.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.bus.unsubscribe(s)
		close(s.done)
	})
}

func (s *Subscription) push(event events.Event) {
	select {
	case <-s.done:
		return
	default:
	}

	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	select {
	case s.queue <- event:
		return
	default:
	}

	// Queue full: make room by discarding the oldest pending event for this
	// subscriber only.
	select {
	case dropped := <-s.queue:
		s.dropped.Add(1)
		droppedEvents.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("topic", string(s.topic)),
			attribute.String("subscriber", s.name),
		))
		logger.Warn("dropped oldest pending event for slow subscriber",
			"topic", s.topic, "subscriber", s.name, "dropped_kind", dropped.Kind(),
			"total_dropped", s.dropped.Load())
	default:
	}

	select {
	case s.queue <- event:
	default:
	}
}
