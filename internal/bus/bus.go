// Package bus provides the process-wide publish/subscribe channel carrying
// build, typecheck and request lifecycle events to external observers.
//
// Events form a closed union: every variant is a struct in this package
// implementing the Event interface, so subscribers can switch over them
// exhaustively. The bus itself is stateless beyond its subscriber list;
// delivery is best-effort and a slow subscriber loses events rather than
// blocking publishers.
package bus

import "sync"

// Event is the closed union of bus events.
type Event interface {
	event()
}

// TransformStart signals a transform attempt beginning for a file.
type TransformStart struct {
	File string
}

// TransformOK signals a successful transform of a file.
type TransformOK struct {
	File string
}

// TransformError signals a compiler rejection for a file.
type TransformError struct {
	File string
	Err  error
}

// TypecheckReset signals the external typechecker cleared its screen;
// observers should discard accumulated diagnostics.
type TypecheckReset struct{}

// TypecheckDone signals the external typechecker finished a pass and is
// waiting for changes.
type TypecheckDone struct{}

// TypecheckMessage carries raw diagnostic text from the external typechecker.
type TypecheckMessage struct {
	Text string
}

// TypecheckErrorCount carries the error total reported by the typechecker.
type TypecheckErrorCount struct {
	Count int
}

// Console carries a browser console call relayed by the reload snippet.
type Console struct {
	Level string
	Args  []string
}

// ServerResponse reports a non-200 response for observability.
type ServerResponse struct {
	Method string
	Path   string
	Status int
}

// NewSession signals a fresh page load was served; observers should reset
// any accumulated error or log state.
type NewSession struct{}

func (TransformStart) event()      {}
func (TransformOK) event()         {}
func (TransformError) event()      {}
func (TypecheckReset) event()      {}
func (TypecheckDone) event()       {}
func (TypecheckMessage) event()    {}
func (TypecheckErrorCount) event() {}
func (Console) event()             {}
func (ServerResponse) event()      {}
func (NewSession) event()          {}

const subscriberBuffer = 64

// Bus fans events out to every subscriber.
type Bus struct {
	mutex       sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[int]chan Event),
	}
}

// Subscribe registers a new subscriber and returns its event channel along
// with a cancel function. The channel is closed on cancel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, subscriberBuffer)
	b.subscribers[id] = ch

	cancel := func() {
		b.mutex.Lock()
		defer b.mutex.Unlock()

		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub)
		}
	}

	return ch, cancel
}

// Publish delivers event to every subscriber. Subscribers whose buffer is
// full miss the event.
func (b *Bus) Publish(event Event) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full, skip this event
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	return len(b.subscribers)
}
