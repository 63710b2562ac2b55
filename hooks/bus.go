// Package hooks implements the internal runtime event bus: a fan-out
// publish/subscribe mechanism distinct from the client-facing stream (see
// package bridge). Every node transition and tool execution is published
// here first; subscribers include the checkpoint writer, telemetry, and the
// Backend Bridge. Grounded on the teacher's runtime/agent/hooks.Bus, which
// is itself a plain in-memory fan-out rather than a Pulse-backed bus (Pulse
// is used elsewhere in this module for the LLM client's cross-process rate
// limit coordination, matching where the teacher actually reaches for it).
package hooks

import (
	"context"
	"errors"
	"sync"
)

// Event is any value published on the Bus. Concrete event types live in
// package workflow (NodeExecuted, ToolExecuted, WorkflowCompleted, ...).
type Event interface {
	EventType() string
}

// Subscriber reacts to published events. HandleEvent should return an error
// only if processing failed in a way that should halt the workflow (e.g. a
// checkpoint write that must succeed); the Bus stops iterating at the first
// error.
type Subscriber interface {
	HandleEvent(ctx context.Context, event Event) error
}

// SubscriberFunc adapts a plain function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, event Event) error

func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error { return f(ctx, event) }

// Subscription represents an active registration; Close is idempotent.
type Subscription interface {
	Close()
}

// Bus publishes events to every registered subscriber, in registration
// order, stopping at the first subscriber error.
type Bus struct {
	mu   sync.Mutex
	subs []*subscription
	next int
}

type subscription struct {
	id  int
	sub Subscriber
	bus *Bus
}

func (s *subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	for i, existing := range s.bus.subs {
		if existing == s {
			s.bus.subs = append(s.bus.subs[:i], s.bus.subs[i+1:]...)
			return
		}
	}
}

// New constructs an empty Bus.
func New() *Bus { return &Bus{} }

// Register adds a subscriber, returning a Subscription that can be closed to
// unregister it.
func (b *Bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("hooks: nil subscriber")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	s := &subscription{id: b.next, sub: sub, bus: b}
	b.subs = append(b.subs, s)
	return s, nil
}

// Publish delivers event to every currently registered subscriber in
// registration order, stopping at the first error.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.Lock()
	subs := make([]*subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()
	for _, s := range subs {
		if err := s.sub.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
