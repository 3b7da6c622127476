package eventbus

import (
	"context"
	"sync"
)

// envelope pairs an event name with its payload on the dispatch channel.
type envelope struct {
	event   Event
	payload any
}

// EventBus is a buffered, typed pub/sub bus. Publishing never blocks: if the
// buffer is full the event is dropped and the OnDrop hook fires. Dispatch
// happens on the single Start goroutine, so subscribers observe events in
// publish order.
type EventBus struct {
	ch    chan envelope
	hooks hooks

	mu               sync.RWMutex
	sessionStarted   []func(SessionStartedPayload)
	sessionEnded     []func(SessionEndedPayload)
	taskStarted      []func(TaskStartedPayload)
	taskCompleted    []func(TaskCompletedPayload)
	iterationStarted []func(IterationStartedPayload)
	phaseChanged     []func(PhaseChangedPayload)
	gateRunning      []func(GateRunningPayload)
	gateCompleted    []func(GateCompletedPayload)
	signalDetected   []func(SignalDetectedPayload)
}

// New creates an event bus with the given buffer size.
func New(buffer int) *EventBus {
	return &EventBus{ch: make(chan envelope, buffer)}
}

// Start runs the dispatch loop until ctx is cancelled. Remaining buffered
// events are drained before returning so a clean shutdown loses nothing.
func (bus *EventBus) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case env := <-bus.ch:
					bus.dispatch(env)
				default:
					return
				}
			}
		case env := <-bus.ch:
			bus.dispatch(env)
		}
	}
}

func (bus *EventBus) dispatch(env envelope) {
	switch p := env.payload.(type) {
	case SessionStartedPayload:
		for _, fn := range snapshot(bus, &bus.sessionStarted) {
			bus.safeCall(env, func() { fn(p) })
		}
	case SessionEndedPayload:
		for _, fn := range snapshot(bus, &bus.sessionEnded) {
			bus.safeCall(env, func() { fn(p) })
		}
	case TaskStartedPayload:
		for _, fn := range snapshot(bus, &bus.taskStarted) {
			bus.safeCall(env, func() { fn(p) })
		}
	case TaskCompletedPayload:
		for _, fn := range snapshot(bus, &bus.taskCompleted) {
			bus.safeCall(env, func() { fn(p) })
		}
	case IterationStartedPayload:
		for _, fn := range snapshot(bus, &bus.iterationStarted) {
			bus.safeCall(env, func() { fn(p) })
		}
	case PhaseChangedPayload:
		for _, fn := range snapshot(bus, &bus.phaseChanged) {
			bus.safeCall(env, func() { fn(p) })
		}
	case GateRunningPayload:
		for _, fn := range snapshot(bus, &bus.gateRunning) {
			bus.safeCall(env, func() { fn(p) })
		}
	case GateCompletedPayload:
		for _, fn := range snapshot(bus, &bus.gateCompleted) {
			bus.safeCall(env, func() { fn(p) })
		}
	case SignalDetectedPayload:
		for _, fn := range snapshot(bus, &bus.signalDetected) {
			bus.safeCall(env, func() { fn(p) })
		}
	}
}

// safeCall invokes a subscriber, converting panics into the OnPanic hook so a
// misbehaving sink can never abort orchestration.
func (bus *EventBus) safeCall(env envelope, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			bus.runOnPanic(env.event, env.payload, r)
		}
	}()
	fn()
}

func snapshot[T any](bus *EventBus, subs *[]T) []T {
	bus.mu.RLock()
	out := make([]T, len(*subs))
	copy(out, *subs)
	bus.mu.RUnlock()
	return out
}

func subscribe[T any](bus *EventBus, event Event, subs *[]T, fn T) {
	bus.mu.Lock()
	*subs = append(*subs, fn)
	bus.mu.Unlock()
	bus.runOnSubscribe(event)
}

// PublishSessionStarted publishes a session.started event.
func (bus *EventBus) PublishSessionStarted(p SessionStartedPayload) {
	bus.send(EventSessionStarted, p)
}

// SubscribeSessionStarted registers a handler for session.started events.
func (bus *EventBus) SubscribeSessionStarted(fn func(SessionStartedPayload)) {
	subscribe(bus, EventSessionStarted, &bus.sessionStarted, fn)
}

// PublishSessionEnded publishes a session.ended event.
func (bus *EventBus) PublishSessionEnded(p SessionEndedPayload) {
	bus.send(EventSessionEnded, p)
}

// SubscribeSessionEnded registers a handler for session.ended events.
func (bus *EventBus) SubscribeSessionEnded(fn func(SessionEndedPayload)) {
	subscribe(bus, EventSessionEnded, &bus.sessionEnded, fn)
}

// PublishTaskStarted publishes a task.started event.
func (bus *EventBus) PublishTaskStarted(p TaskStartedPayload) {
	bus.send(EventTaskStarted, p)
}

// SubscribeTaskStarted registers a handler for task.started events.
func (bus *EventBus) SubscribeTaskStarted(fn func(TaskStartedPayload)) {
	subscribe(bus, EventTaskStarted, &bus.taskStarted, fn)
}

// PublishTaskCompleted publishes a task.completed event.
func (bus *EventBus) PublishTaskCompleted(p TaskCompletedPayload) {
	bus.send(EventTaskCompleted, p)
}

// SubscribeTaskCompleted registers a handler for task.completed events.
func (bus *EventBus) SubscribeTaskCompleted(fn func(TaskCompletedPayload)) {
	subscribe(bus, EventTaskCompleted, &bus.taskCompleted, fn)
}

// PublishIterationStarted publishes an iteration.started event.
func (bus *EventBus) PublishIterationStarted(p IterationStartedPayload) {
	bus.send(EventIterationStarted, p)
}

// SubscribeIterationStarted registers a handler for iteration.started events.
func (bus *EventBus) SubscribeIterationStarted(fn func(IterationStartedPayload)) {
	subscribe(bus, EventIterationStarted, &bus.iterationStarted, fn)
}

// PublishPhaseChanged publishes a phase.changed event.
func (bus *EventBus) PublishPhaseChanged(p PhaseChangedPayload) {
	bus.send(EventPhaseChanged, p)
}

// SubscribePhaseChanged registers a handler for phase.changed events.
func (bus *EventBus) SubscribePhaseChanged(fn func(PhaseChangedPayload)) {
	subscribe(bus, EventPhaseChanged, &bus.phaseChanged, fn)
}

// PublishGateRunning publishes a gate.running event.
func (bus *EventBus) PublishGateRunning(p GateRunningPayload) {
	bus.send(EventGateRunning, p)
}

// SubscribeGateRunning registers a handler for gate.running events.
func (bus *EventBus) SubscribeGateRunning(fn func(GateRunningPayload)) {
	subscribe(bus, EventGateRunning, &bus.gateRunning, fn)
}

// PublishGateCompleted publishes a gate.completed event.
func (bus *EventBus) PublishGateCompleted(p GateCompletedPayload) {
	bus.send(EventGateCompleted, p)
}

// SubscribeGateCompleted registers a handler for gate.completed events.
func (bus *EventBus) SubscribeGateCompleted(fn func(GateCompletedPayload)) {
	subscribe(bus, EventGateCompleted, &bus.gateCompleted, fn)
}

// PublishSignalDetected publishes a signal.detected event.
func (bus *EventBus) PublishSignalDetected(p SignalDetectedPayload) {
	bus.send(EventSignalDetected, p)
}

// SubscribeSignalDetected registers a handler for signal.detected events.
func (bus *EventBus) SubscribeSignalDetected(fn func(SignalDetectedPayload)) {
	subscribe(bus, EventSignalDetected, &bus.signalDetected, fn)
}
