package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(NewEventLog(setupTestDB(t)), nil)
	defer bus.Close()

	ch := bus.Subscribe(EventItemQueued, 10)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent(EventItemQueued, "a", "hello")))

	assert.Equal(t, EventItemQueued, receive(t, ch).EventType())
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus(NewEventLog(setupTestDB(t)), nil)
	defer bus.Close()

	ch := bus.SubscribeAll(10)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("test.first", "a", "first")))
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("test.second", "b", "second")))

	assert.Equal(t, "test.first", receive(t, ch).EventType())
	assert.Equal(t, "test.second", receive(t, ch).EventType())
}

func TestBus_SubscribeItem(t *testing.T) {
	bus := NewBus(nil, nil)
	defer bus.Close()

	ch := bus.SubscribeItem("a", 10)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("test.one", "b", "other")))
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("test.two", "a", "mine")))

	e := receive(t, ch)
	assert.Equal(t, "a", e.EntityID())
	assert.Equal(t, "test.two", e.EventType())
}

func TestBus_EphemeralNotPersisted(t *testing.T) {
	log := NewEventLog(setupTestDB(t))
	bus := NewBus(log, nil)
	defer bus.Close()

	ch := bus.SubscribeAll(10)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, &ItemProgressed{
		BaseEvent: NewBaseEvent(EventItemProgressed, EntityItem, "a"),
		Percent:   50,
	}))
	require.NoError(t, bus.Publish(ctx, &ItemFinished{
		BaseEvent: NewBaseEvent(EventItemFinished, EntityItem, "a"),
		Path:      "/music/x.flac",
		Count:     1,
	}))

	// Both are delivered.
	assert.Equal(t, EventItemProgressed, receive(t, ch).EventType())
	assert.Equal(t, EventItemFinished, receive(t, ch).EventType())

	// Only the finished event is stored.
	stored, err := log.ForEntity(EntityItem, "a")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, EventItemFinished, stored[0].EventType)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil, nil)
	defer bus.Close()

	ch := bus.Subscribe("test.event", 10)
	bus.Unsubscribe(ch)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("test.event", "a", "hello")))

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := NewBus(nil, nil)
	ch := bus.SubscribeAll(1)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("test.event", "a", "late")))
	_, ok := <-ch
	assert.False(t, ok)
}

func TestBus_SubscribeAfterClose(t *testing.T) {
	bus := NewBus(nil, nil)
	require.NoError(t, bus.Close())

	_, ok := <-bus.SubscribeItem("a", 1)
	assert.False(t, ok, "late subscribers get a closed channel")
}

func TestBus_FullSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus(nil, nil)
	defer bus.Close()

	ch := bus.SubscribeAll(1)
	other := bus.Subscribe("test.flood", 10)
	for i := range 5 {
		require.NoError(t, bus.Publish(context.Background(), newTestEvent("test.flood", fmt.Sprint(i), "x")))
	}
	assert.Equal(t, "0", receive(t, ch).EntityID())
	assert.Len(t, other, 5, "a full subscriber does not starve the others")
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus(nil, nil)
	defer bus.Close()

	ch := bus.SubscribeAll(100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = bus.Publish(context.Background(), newTestEvent("test.concurrent", fmt.Sprint(n), "concurrent"))
		}(i)
	}
	wg.Wait()

	count := 0
	timeout := time.After(time.Second)
loop:
	for {
		select {
		case <-ch:
			count++
			if count == 10 {
				break loop
			}
		case <-timeout:
			break loop
		}
	}

	assert.Equal(t, 10, count)
}
