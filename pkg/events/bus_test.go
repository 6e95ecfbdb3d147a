package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed")
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestMemoryBusPublishSubscribe(t *testing.T) {
	bus := NewMemoryBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	bus.Publish(NewEvent(EventTaskStart, "run-1", TaskInfo{TaskID: "ms-001"}))

	e := receive(t, ch)
	assert.Equal(t, EventTaskStart, e.Type)
	assert.Equal(t, "run-1", e.RunID)
	assert.Equal(t, TaskInfo{TaskID: "ms-001"}, e.Data)
}

func TestMemoryBusFilter(t *testing.T) {
	bus := NewMemoryBus()
	ch := bus.Subscribe(EventTaskEnd)
	defer bus.Unsubscribe(ch)

	bus.Publish(NewEvent(EventTaskStart, "r", "filtered"))
	bus.Publish(NewEvent(EventTaskEnd, "r", "delivered"))

	e := receive(t, ch)
	assert.Equal(t, EventTaskEnd, e.Type)
	assert.Equal(t, "delivered", e.Data)

	select {
	case e := <-ch:
		t.Errorf("unexpected event: %v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBusMultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	defer bus.Unsubscribe(ch1)
	defer bus.Unsubscribe(ch2)

	bus.Publish(NewEvent(EventRunStart, "run-1", RunInfo{Model: "gpt-4o", Tasks: 3}))

	for _, ch := range []<-chan Event{ch1, ch2} {
		assert.Equal(t, EventRunStart, receive(t, ch).Type)
	}
}

func TestMemoryBusFullSubscriberDoesNotBlock(t *testing.T) {
	bus := NewMemoryBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	for i := range subscriberBuffer + 10 {
		bus.Publish(NewEvent(EventTaskEnd, "r", i))
	}
	assert.Len(t, ch, subscriberBuffer)
	assert.Len(t, bus.History(time.Time{}), subscriberBuffer+10)
}

func TestMemoryBusHistory(t *testing.T) {
	bus := NewMemoryBus()

	t1 := time.Now()
	bus.Publish(NewEvent(EventRunStart, "r", "first"))
	time.Sleep(10 * time.Millisecond)
	t2 := time.Now()
	bus.Publish(NewEvent(EventRunEnd, "r", "second"))

	assert.Len(t, bus.History(t1), 2)
	since := bus.History(t2)
	require.Len(t, since, 1)
	assert.Equal(t, "second", since[0].Data)
	assert.Empty(t, NewMemoryBus().History(time.Time{}))
}

func TestMemoryBusHistoryLimit(t *testing.T) {
	bus := NewMemoryBusWithLimit(3)
	for i := range 5 {
		bus.Publish(NewEvent(EventTaskEnd, "r", i))
	}

	got := bus.History(time.Time{})
	require.Len(t, got, 3)
	assert.Equal(t, 2, got[0].Data)
	assert.Equal(t, 4, got[2].Data)
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	bus := NewMemoryBus()
	ch := bus.Subscribe()
	bus.Unsubscribe(ch)
	bus.Unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")

	// Publishing after unsubscribe must not touch the closed channel.
	bus.Publish(NewEvent(EventRunEnd, "r", nil))
}

// Publishers keep running while observers come and go, as when the
// inspector disconnects during a cancelled run.
func TestMemoryBusConcurrentPublishUnsubscribe(t *testing.T) {
	bus := NewMemoryBusWithLimit(100)

	for range 200 {
		ch := bus.Subscribe()
		var wg sync.WaitGroup
		for p := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range 10 {
					bus.Publish(NewEvent(EventTaskFailed, "r", p*10+i))
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Unsubscribe(ch)
		}()
		wg.Wait()

		for range ch {
		}
	}
}

func TestMemoryBusClose(t *testing.T) {
	bus := NewMemoryBus()
	ch := bus.Subscribe()
	bus.Close()
	bus.Close()

	_, ok := <-ch
	assert.False(t, ok)

	bus.Publish(NewEvent(EventRunEnd, "r", nil))
	assert.Len(t, bus.History(time.Time{}), 1)

	late := bus.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribing to a closed bus yields a closed channel")
	bus.Unsubscribe(late)
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventTaskFailed, "run-9", TaskInfo{TaskID: "x", Reason: "timeout"})
	assert.Equal(t, EventTaskFailed, e.Type)
	assert.False(t, e.Timestamp.IsZero())
}
