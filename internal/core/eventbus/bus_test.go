package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startBus(t *testing.T, buffer int) *EventBus {
	t.Helper()
	bus := New(buffer)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go bus.Start(ctx)
	return bus
}

func TestEventBusDeliversInOrder(t *testing.T) {
	bus := startBus(t, 64)

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	bus.SubscribeIterationStarted(func(p IterationStartedPayload) {
		mu.Lock()
		got = append(got, p.Iteration)
		if len(got) == 3 {
			close(done)
		}
		mu.Unlock()
	})

	for i := 1; i <= 3; i++ {
		bus.PublishIterationStarted(IterationStartedPayload{TaskID: "t-1", Iteration: i, MaxIterations: 3})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for events")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestEventBusDropsWhenFull(t *testing.T) {
	// No Start loop, so the buffer never drains.
	bus := New(1)

	var dropped []Event
	bus.OnDrop(func(event Event, _ any) {
		dropped = append(dropped, event)
	})

	bus.PublishGateRunning(GateRunningPayload{TaskID: "t-1", Gate: "build"})
	bus.PublishGateRunning(GateRunningPayload{TaskID: "t-1", Gate: "test"})

	require.Len(t, dropped, 1)
	assert.Equal(t, EventGateRunning, dropped[0])
}

func TestEventBusPublishHook(t *testing.T) {
	bus := New(8)

	var published []Event
	bus.OnPublish(func(event Event, _ any) {
		published = append(published, event)
	})

	bus.PublishSessionStarted(SessionStartedPayload{SessionID: "s-1", TaskCount: 2})

	require.Len(t, published, 1)
	assert.Equal(t, EventSessionStarted, published[0])
}

func TestEventBusSubscriberPanicIsContained(t *testing.T) {
	bus := startBus(t, 8)

	panics := make(chan any, 1)
	bus.OnPanic(func(_ Event, _ any, recovered any) {
		panics <- recovered
	})

	delivered := make(chan struct{})
	bus.SubscribeTaskStarted(func(TaskStartedPayload) {
		panic("bad sink")
	})
	bus.SubscribeTaskStarted(func(TaskStartedPayload) {
		close(delivered)
	})

	bus.PublishTaskStarted(TaskStartedPayload{})

	select {
	case r := <-panics:
		assert.Equal(t, "bad sink", r)
	case <-time.After(time.Second):
		t.Fatal("panic hook never fired")
	}

	// The panicking subscriber must not starve the next one.
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("second subscriber never ran")
	}
}

func TestEventBusDrainsOnShutdown(t *testing.T) {
	bus := New(8)

	var mu sync.Mutex
	var count int
	bus.SubscribeSignalDetected(func(SignalDetectedPayload) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	for range 5 {
		bus.PublishSignalDetected(SignalDetectedPayload{TaskID: "t-1"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Start(ctx) // returns after draining

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, count)
}
