package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

func TestBus_PublishReachesMatchingSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	investigationID := types.NewID()
	ch, cleanup := bus.Subscribe(context.Background(), Filter{
		InvestigationID: &investigationID,
	}, 4)
	defer cleanup()

	require.NoError(t, bus.Publish(context.Background(),
		New(EventNodeStarted, investigationID).WithNode("n1", "statistical-analysis")))
	require.NoError(t, bus.Publish(context.Background(),
		New(EventNodeStarted, types.NewID()))) // different investigation

	select {
	case event := <-ch:
		assert.Equal(t, EventNodeStarted, event.Type)
		assert.Equal(t, "n1", event.NodeID)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}
	select {
	case event := <-ch:
		t.Fatalf("unexpected second event: %+v", event)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_TypeFilter(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cleanup := bus.Subscribe(context.Background(), Filter{
		Types: []EventType{EventFindingReported},
	}, 4)
	defer cleanup()

	id := types.NewID()
	require.NoError(t, bus.Publish(context.Background(), New(EventNodeStarted, id)))
	require.NoError(t, bus.Publish(context.Background(), New(EventFindingReported, id)))

	event := <-ch
	assert.Equal(t, EventFindingReported, event.Type)
}

func TestBus_SlowSubscriberDropsWithoutBlocking(t *testing.T) {
	var drops int
	bus := NewBus(WithDropHandler(func(Event, uint64) { drops++ }))
	defer bus.Close()

	_, cleanup := bus.Subscribe(context.Background(), Filter{}, 1)
	defer cleanup()

	id := types.NewID()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(context.Background(), New(EventNodeCompleted, id))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Equal(t, 9, drops)
}

func TestBus_CleanupStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cleanup := bus.Subscribe(context.Background(), Filter{}, 4)
	cleanup()
	cleanup() // idempotent

	require.NoError(t, bus.Publish(context.Background(), New(EventNodeStarted, types.NewID())))

	_, open := <-ch
	assert.False(t, open)
}

func TestBus_CloseRejectsPublish(t *testing.T) {
	bus := NewBus()
	ch, cleanup := bus.Subscribe(context.Background(), Filter{}, 4)
	defer cleanup()

	require.NoError(t, bus.Close())
	require.Error(t, bus.Publish(context.Background(), New(EventNodeStarted, types.NewID())))

	_, open := <-ch
	assert.False(t, open)
}

func TestFilter_ZeroValueMatchesEverything(t *testing.T) {
	event := New(EventAggregateUpdated, types.NewID())
	assert.True(t, Filter{}.Matches(event))
}
