package queue

import (
	"sync/atomic"
	"time"

	"github.com/poiesic/gleanit/core"
)

// EventType names a job lifecycle event.
type EventType string

const (
	EventJobCreated   EventType = "job:created"
	EventJobStarted   EventType = "job:started"
	EventJobCompleted EventType = "job:completed"
	EventJobFailed    EventType = "job:failed"
	EventJobRetry     EventType = "job:retry"
)

// Event describes one job lifecycle transition.
type Event struct {
	Type     EventType
	JobID    string
	JobType  core.JobType
	Attempts int
	Err      error         // Set for failed and retry events
	Delay    time.Duration // Set for retry events
	At       time.Time
}

// Observer receives lifecycle events. OnEvent is called from dispatcher
// goroutines and must not block.
type Observer interface {
	OnEvent(event Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(event Event)

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(event Event) {
	f(event)
}

// ChannelObserver delivers events on a buffered channel.
// Events are dropped rather than stalling a worker when the buffer is full.
type ChannelObserver struct {
	events  chan Event
	dropped atomic.Int64
}

var _ Observer = (*ChannelObserver)(nil)

// NewChannelObserver creates a ChannelObserver with the given buffer size.
func NewChannelObserver(buffer int) *ChannelObserver {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelObserver{
		events: make(chan Event, buffer),
	}
}

// Events returns the channel events are delivered on.
func (o *ChannelObserver) Events() <-chan Event {
	return o.events
}

// Dropped returns how many events were discarded because the buffer was full.
func (o *ChannelObserver) Dropped() int64 {
	return o.dropped.Load()
}

// OnEvent implements Observer.
func (o *ChannelObserver) OnEvent(event Event) {
	select {
	case o.events <- event:
	default:
		o.dropped.Add(1)
	}
}
