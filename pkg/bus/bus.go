// Package bus implements the bridge's internal message fan-out: every
// adapter registers under a name and gets back a handle that both
// receives a copy of every other adapter's outgoing messages and can
// publish its own.
package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
	"github.com/picoclaw-bridge/bridge/pkg/logger"
)

// SubscriberQueueSize is the per-subscriber buffered channel capacity.
// Matches the reference implementation's broadcast::channel(32).
const SubscriberQueueSize = 32

var (
	// ErrDuplicateName is returned by Register when the name is already
	// in use. Two adapters racing to register under the same name is a
	// configuration fault, not a transient condition to retry.
	ErrDuplicateName = errors.New("bus: adapter name already registered")

	// ErrClosed is returned by Register once the bus has been shut down.
	ErrClosed = errors.New("bus: closed")
)

// Bus is a named registry of subscribers. Publishing a message from
// one subscriber delivers a copy to every other registered subscriber;
// the sender never receives its own message back.
type Bus struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string]*Subscription)}
}

// Register creates a new named subscription. The name is typically an
// adapter's platform name ("discord", "qq", "cmd", ...) and must be
// unique among currently-registered subscribers.
func (b *Bus) Register(name string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if _, exists := b.subs[name]; exists {
		return nil, ErrDuplicateName
	}

	sub := &Subscription{
		name: name,
		ch:   make(chan bridge.Message, SubscriberQueueSize),
		bus:  b,
	}
	b.subs[name] = sub
	return sub, nil
}

// Unregister removes a subscriber, e.g. once its adapter has stopped.
// It is safe to call more than once.
func (b *Bus) Unregister(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, name)
}

// Publish fans a message out to every subscriber except from. Delivery
// is best-effort per subscriber: a full subscriber queue has its oldest
// message dropped to make room, and a failure to deliver to one
// subscriber never affects delivery to the others.
func (b *Bus) Publish(ctx context.Context, from string, msg bridge.Message) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	targets := make([]*Subscription, 0, len(b.subs))
	for name, sub := range b.subs {
		if name == from {
			continue
		}
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		deliver(sub, msg)
	}
}

func deliver(sub *Subscription, msg bridge.Message) {
	select {
	case sub.ch <- msg:
		return
	default:
	}

	// Queue is full: drop the oldest entry to make room for this one,
	// then retry once. A concurrent Recv may have already drained a
	// slot; either way the second send attempt must not block.
	select {
	case <-sub.ch:
		logger.WarnCF("bus", "dropped oldest message for slow subscriber", map[string]any{
			"adapter": sub.name,
		})
	default:
	}

	select {
	case sub.ch <- msg:
	default:
		logger.WarnCF("bus", "dropped message, subscriber queue still full", map[string]any{
			"adapter": sub.name,
		})
	}
}

// Close shuts the bus down: further Register calls fail, Publish
// becomes a no-op, and every subscriber's channel is closed so blocked
// Recv calls return. Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
}

// Subscription is one adapter's handle onto the bus.
type Subscription struct {
	name string
	ch   chan bridge.Message
	bus  *Bus
}

// Name returns the name this subscription was registered under.
func (s *Subscription) Name() string { return s.name }

// Send publishes msg to every other subscriber. It is equivalent to
// calling Bus.Publish with this subscription's name as the sender.
func (s *Subscription) Send(ctx context.Context, msg bridge.Message) {
	s.bus.Publish(ctx, s.name, msg)
}

// Recv blocks until a message addressed to this subscriber arrives, the
// context is canceled, or the bus is closed. ok is false in the latter
// two cases.
func (s *Subscription) Recv(ctx context.Context) (bridge.Message, bool) {
	select {
	case msg, ok := <-s.ch:
		return msg, ok
	case <-ctx.Done():
		return bridge.Message{}, false
	}
}
