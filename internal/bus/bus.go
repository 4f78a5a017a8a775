// Package bus implements the typed publish/subscribe event bus (C2): the
// sole nervous system connecting hardware, orchestrator, and mini-apps.
//
// Delivery is at-most-once per subscription, FIFO within one event type
// and one subscription, with no ordering guarantee across types or
// subscriptions. A single worker goroutine drains the queue so handler
// panics never race each other and per-subscription FIFO order falls out
// for free. Grounded on the pack's dedicated event-bus examples
// (eventbus.EventBus's non-blocking bounded-channel fan-out and
// events.Bus's nil-safe Publish), adapted to the spec's single shared
// queue + payload-filter subscription model instead of per-topic
// channels.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vfiduccia/boss/internal/bosserr"
)

// Event is one message flowing through the bus.
type Event struct {
	Type      string
	Payload   map[string]any
	Timestamp time.Time // monotonic (time.Now() carries a monotonic reading)
	Source    string
}

// Handler processes one delivered event. A handler that panics is
// recovered by the bus worker; it does not affect other handlers or
// subsequent events.
type Handler func(Event)

// Filter requires every key present to equal the event payload's value
// for that key. An event matches a filter iff every filter key is
// present in the payload with an equal value. A nil or empty filter
// always matches.
type Filter map[string]any

const (
	defaultQueueSize = 1000
	defaultDrain     = 2 * time.Second
)

type subscription struct {
	id        string
	eventType string
	handler   Handler
	filter    Filter

	failures int
	lastErr  string
}

// Bus is the process-wide event bus. Construct with New; there is
// exactly one per orchestrator, injected into every component that
// needs it — never a package-level singleton.
type Bus struct {
	log zerolog.Logger

	queue    chan Event
	queueCap int

	mu   sync.RWMutex
	subs map[string][]*subscription // keyed by event type
	byID map[string]*subscription

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}

	droppedMu sync.Mutex
	dropped   map[string]int // count of dropped events by type, for burst-suppressed logging
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithQueueSize overrides the default bounded queue capacity (1000).
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueCap = n
		}
	}
}

// New creates a Bus and starts its single delivery worker.
func New(log zerolog.Logger, opts ...Option) *Bus {
	b := &Bus{
		log:      log.With().Str("component", "bus").Logger(),
		queueCap: defaultQueueSize,
		subs:     make(map[string][]*subscription),
		byID:     make(map[string]*subscription),
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
		dropped:  make(map[string]int),
	}
	for _, o := range opts {
		o(b)
	}
	b.queue = make(chan Event, b.queueCap)
	go b.run()
	return b
}

// Publish enqueues an event for async delivery. Non-blocking: if the
// queue is at capacity the event is dropped (newest-dropped) and a
// system.error is emitted describing the drop. A no-op after Stop.
func (b *Bus) Publish(eventType string, payload map[string]any, source string) {
	select {
	case <-b.stopped:
		return
	default:
	}

	ev := Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
		Source:    source,
	}

	select {
	case b.queue <- ev:
	default:
		b.onOverflow(eventType)
	}
}

func (b *Bus) onOverflow(eventType string) {
	b.droppedMu.Lock()
	b.dropped[eventType]++
	n := b.dropped[eventType]
	b.droppedMu.Unlock()

	overflowErr := &bosserr.BusOverflow{EventType: eventType}
	b.log.Warn().Err(overflowErr).Int("dropped_total", n).Msg("bus queue full, dropping event")

	// The queue is full right now, so the system.error notification is
	// handed to a goroutine that enqueues it once the worker frees a slot
	// (or gives up on Stop). The publisher never blocks and onOverflow is
	// never re-entered for it.
	errEv := Event{
		Type: "system.error",
		Payload: map[string]any{
			"code":    "bus_overflow",
			"message": overflowErr.Error(),
		},
		Timestamp: time.Now(),
		Source:    "bus",
	}
	go func() {
		select {
		case b.queue <- errEv:
		case <-b.stopped:
		}
	}()
}

// Subscribe registers handler for eventType, optionally constrained by
// filter. Returns the subscription id for later Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler, filter Filter) string {
	sub := &subscription{
		id:        uuid.NewString(),
		eventType: eventType,
		handler:   handler,
		filter:    filter,
	}
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], sub)
	b.byID[sub.id] = sub
	b.mu.Unlock()
	return sub.id
}

// Unsubscribe removes a subscription. Idempotent.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.byID[id]
	if !ok {
		return
	}
	delete(b.byID, id)
	list := b.subs[sub.eventType]
	for i, s := range list {
		if s.id == id {
			b.subs[sub.eventType] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// Stop drains the queue up to deadline (default 2s if ctx carries none),
// then returns. Further Publish calls are no-ops once Stop is called.
func (b *Bus) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		close(b.stopped)
		deadline := defaultDrain
		if dl, ok := ctx.Deadline(); ok {
			deadline = time.Until(dl)
		}
		select {
		case <-b.done:
		case <-time.After(deadline):
			b.log.Warn().Msg("bus stop: drain deadline exceeded")
		}
	})
}

func (b *Bus) run() {
	defer close(b.done)
	for {
		select {
		case ev := <-b.queue:
			b.deliver(ev)
		case <-b.stopped:
			// Drain whatever is already queued, then exit. Stop's caller
			// bounds how long it will wait for b.done via its deadline.
			for {
				select {
				case ev := <-b.queue:
					b.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(ev Event) {
	b.mu.RLock()
	subs := make([]*subscription, len(b.subs[ev.Type]))
	copy(subs, b.subs[ev.Type])
	b.mu.RUnlock()

	for _, sub := range subs {
		if !matches(sub.filter, ev.Payload) {
			continue
		}
		b.invoke(sub, ev)
	}
}

func matches(filter Filter, payload map[string]any) bool {
	for k, v := range filter {
		pv, ok := payload[k]
		if !ok || pv != v {
			return false
		}
	}
	return true
}

func (b *Bus) invoke(sub *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.mu.Lock()
			sub.failures++
			sub.lastErr = formatPanic(r)
			count := sub.failures
			lastErr := sub.lastErr
			b.mu.Unlock()

			b.log.Error().
				Str("subscription_id", sub.id).
				Str("event_type", ev.Type).
				Str("panic", lastErr).
				Int("failure_count", count).
				Msg("event handler panicked")

			b.Publish("system.error", map[string]any{
				"code":    "handler_panic",
				"message": "subscription " + sub.id + " failed " + lastErr,
			}, "bus")
		}
	}()
	sub.handler(ev)
}

func formatPanic(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "non-error panic value"
}
