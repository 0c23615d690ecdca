package bus

import (
	"fmt"
	"sync"

	"github.com/brookwillow/kiwi/pkg/logger"
)

// Handler consumes events of the kinds it subscribed to.
type Handler func(Event)

// FrameConsumer receives raw audio frames on the fast path.
type FrameConsumer func(AudioFrame)

const asyncQueueSize = 256

// Subscription identifies one subscribe call for later removal.
type Subscription struct {
	kind Kind
	id   int
}

type subscriber struct {
	id      int
	handler Handler
	queue   chan Event // nil for synchronous subscribers
	done    chan struct{}
}

// EventBus routes typed events to subscribers. Dispatch is synchronous on the
// publisher unless the subscriber opted into a background worker, in which
// case events are queued FIFO per subscriber. Audio frames skip all of this
// and go straight to registered frame consumers.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[Kind][]*subscriber
	consumers   []FrameConsumer
	nextID      int
	closed      bool
}

func New() *EventBus {
	return &EventBus{
		subscribers: make(map[Kind][]*subscriber),
	}
}

// Subscribe registers a synchronous handler. The handler runs on the
// publisher's goroutine; it must be fast and must not block.
func (b *EventBus) Subscribe(kind Kind, handler Handler) Subscription {
	return b.subscribe(kind, handler, false)
}

// SubscribeAsync registers a handler backed by its own worker goroutine.
// Events for this subscriber are queued FIFO; a full queue drops the event
// with a warning rather than stalling the publisher.
func (b *EventBus) SubscribeAsync(kind Kind, handler Handler) Subscription {
	return b.subscribe(kind, handler, true)
}

func (b *EventBus) subscribe(kind Kind, handler Handler, async bool) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscriber{id: b.nextID, handler: handler}
	if async {
		sub.queue = make(chan Event, asyncQueueSize)
		sub.done = make(chan struct{})
		go sub.drain()
	}
	b.subscribers[kind] = append(b.subscribers[kind], sub)
	return Subscription{kind: kind, id: sub.id}
}

func (s *subscriber) drain() {
	defer close(s.done)
	for ev := range s.queue {
		invoke(s.handler, ev)
	}
}

// Unsubscribe removes a subscription. Safe to call more than once.
func (b *EventBus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.kind]
	for i, s := range subs {
		if s.id == sub.id {
			b.subscribers[sub.kind] = append(subs[:i], subs[i+1:]...)
			if s.queue != nil {
				close(s.queue)
			}
			return
		}
	}
}

// Publish delivers the event to every subscriber of its kind in subscription
// order. Publication after Close silently drops.
func (b *EventBus) Publish(ev Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := b.subscribers[ev.Kind]
	snapshot := make([]*subscriber, len(subs))
	copy(snapshot, subs)
	b.mu.RUnlock()

	for _, s := range snapshot {
		if s.queue != nil {
			select {
			case s.queue <- ev:
			default:
				logger.WarnCF("bus", "Subscriber queue full, event dropped",
					map[string]any{"kind": string(ev.Kind), "source": ev.Source})
			}
			continue
		}
		invoke(s.handler, ev)
	}
}

func invoke(handler Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("bus", "Event handler panicked",
				map[string]any{"kind": string(ev.Kind), "panic": fmt.Sprint(r)})
		}
	}()
	handler(ev)
}

// RegisterFrameConsumer adds a fast-path consumer for audio frames. Frames
// are the highest-rate events in the system; routing them through the generic
// per-subscriber queues would cost an allocation and a channel hop per frame.
func (b *EventBus) RegisterFrameConsumer(fn FrameConsumer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumers = append(b.consumers, fn)
}

// PublishFrame hands a frame to every registered frame consumer on the
// caller's goroutine.
func (b *EventBus) PublishFrame(frame AudioFrame) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	consumers := b.consumers
	b.mu.RUnlock()

	for _, fn := range consumers {
		fn(frame)
	}
}

// Close stops delivery and waits for async subscriber queues to drain.
func (b *EventBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var waiting []*subscriber
	for _, subs := range b.subscribers {
		for _, s := range subs {
			if s.queue != nil {
				close(s.queue)
				waiting = append(waiting, s)
			}
		}
	}
	b.subscribers = make(map[Kind][]*subscriber)
	b.consumers = nil
	b.mu.Unlock()

	for _, s := range waiting {
		<-s.done
	}
}
