// Package event provides the in-process fan-out used to deliver execution
// events and workflow updates to consumers. Delivery is synchronous and in
// subscriber-registration order; a callback may unsubscribe any subscription,
// including its own, during a publish.
package event

import (
	"sync"

	"go.uber.org/zap"

	"github.com/t77yq/flowpulse/internal/model"
)

// Kind identifies which stream a subscription is attached to
type Kind int

const (
	KindExecution Kind = iota
	KindWorkflowUpdate
)

// Subscription pairs a callback with an event kind. It stays registered
// until Unsubscribe is called; the bus never removes it implicitly.
type Subscription struct {
	bus    *Bus
	kind   Kind
	id     uint64
	execFn func(model.ExecutionEvent)
	wfFn   func(model.Workflow)
}

// Unsubscribe removes the subscription from the bus. Calling it more than
// once is harmless.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.remove(s)
}

// Bus is an in-memory publish/subscribe registry. The zero value is not
// usable; construct one with NewBus.
type Bus struct {
	logger *zap.Logger

	mu       sync.Mutex
	nextID   uint64
	execSubs []*Subscription
	wfSubs   []*Subscription
}

// NewBus creates a new event bus
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{logger: logger.Named("bus")}
}

// SubscribeExecutions registers a callback for execution events
func (b *Bus) SubscribeExecutions(fn func(model.ExecutionEvent)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{bus: b, kind: KindExecution, id: b.nextID, execFn: fn}
	b.execSubs = append(b.execSubs, sub)
	b.logger.Debug("Subscriber added",
		zap.Uint64("subscription_id", sub.id),
		zap.Int("execution_subscribers", len(b.execSubs)))
	return sub
}

// SubscribeWorkflowUpdates registers a callback for workflow-update events
func (b *Bus) SubscribeWorkflowUpdates(fn func(model.Workflow)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{bus: b, kind: KindWorkflowUpdate, id: b.nextID, wfFn: fn}
	b.wfSubs = append(b.wfSubs, sub)
	b.logger.Debug("Subscriber added",
		zap.Uint64("subscription_id", sub.id),
		zap.Int("workflow_subscribers", len(b.wfSubs)))
	return sub
}

// PublishExecution delivers an execution event to every currently registered
// execution subscriber. Delivery happens on the caller's goroutine against a
// snapshot of the subscriber list, so callbacks may mutate subscriptions
// without corrupting iteration.
func (b *Bus) PublishExecution(ev model.ExecutionEvent) {
	b.mu.Lock()
	subs := make([]*Subscription, len(b.execSubs))
	copy(subs, b.execSubs)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.execFn(ev)
	}
}

// PublishWorkflowUpdate delivers a workflow update to every currently
// registered workflow subscriber.
func (b *Bus) PublishWorkflowUpdate(wf model.Workflow) {
	b.mu.Lock()
	subs := make([]*Subscription, len(b.wfSubs))
	copy(subs, b.wfSubs)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.wfFn(wf)
	}
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch sub.kind {
	case KindExecution:
		b.execSubs = drop(b.execSubs, sub.id)
	case KindWorkflowUpdate:
		b.wfSubs = drop(b.wfSubs, sub.id)
	}
	b.logger.Debug("Subscriber removed", zap.Uint64("subscription_id", sub.id))
}

func drop(subs []*Subscription, id uint64) []*Subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}
