package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/flowpulse/internal/model"
)

func TestBus_DeliveryOrder(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var order []string
	bus.SubscribeExecutions(func(model.ExecutionEvent) { order = append(order, "first") })
	bus.SubscribeExecutions(func(model.ExecutionEvent) { order = append(order, "second") })
	bus.SubscribeExecutions(func(model.ExecutionEvent) { order = append(order, "third") })

	bus.PublishExecution(model.ExecutionEvent{ID: "e1"})

	require.Equal(t, []string{"first", "second", "third"}, order)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var calls int
	sub := bus.SubscribeExecutions(func(model.ExecutionEvent) { calls++ })

	bus.PublishExecution(model.ExecutionEvent{ID: "e1"})
	require.Equal(t, 1, calls)

	sub.Unsubscribe()
	bus.PublishExecution(model.ExecutionEvent{ID: "e2"})
	assert.Equal(t, 1, calls)

	// Unsubscribing twice is harmless
	sub.Unsubscribe()
}

func TestBus_UnsubscribeDuringPublish(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var first, second, third int
	var sub2 *Subscription

	bus.SubscribeExecutions(func(model.ExecutionEvent) {
		first++
		sub2.Unsubscribe()
	})
	sub2 = bus.SubscribeExecutions(func(model.ExecutionEvent) { second++ })
	bus.SubscribeExecutions(func(model.ExecutionEvent) { third++ })

	// The publish iterates a snapshot: sub2 still sees this event even
	// though the first callback removed it mid-delivery.
	bus.PublishExecution(model.ExecutionEvent{ID: "e1"})
	require.Equal(t, 1, first)
	require.Equal(t, 1, second)
	require.Equal(t, 1, third)

	bus.PublishExecution(model.ExecutionEvent{ID: "e2"})
	assert.Equal(t, 2, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, 2, third)
}

func TestBus_SelfUnsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var calls int
	var sub *Subscription
	sub = bus.SubscribeExecutions(func(model.ExecutionEvent) {
		calls++
		sub.Unsubscribe()
	})

	bus.PublishExecution(model.ExecutionEvent{ID: "e1"})
	bus.PublishExecution(model.ExecutionEvent{ID: "e2"})
	assert.Equal(t, 1, calls)
}

func TestBus_KindsAreIndependent(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var execs, updates int
	bus.SubscribeExecutions(func(model.ExecutionEvent) { execs++ })
	bus.SubscribeWorkflowUpdates(func(model.Workflow) { updates++ })

	bus.PublishExecution(model.ExecutionEvent{ID: "e1"})
	bus.PublishWorkflowUpdate(model.Workflow{ID: "w1"})
	bus.PublishWorkflowUpdate(model.Workflow{ID: "w1"})

	assert.Equal(t, 1, execs)
	assert.Equal(t, 2, updates)
}
