package ideasync

import (
	"sync"
	"time"
)

type EventType string

const (
	EventRecordCreated  EventType = "record.created"
	EventRecordUpdated  EventType = "record.updated"
	EventBusyChanged    EventType = "sync.busy"
	EventNetworkWarning EventType = "sync.network_warning"
	EventBufferCleared  EventType = "input.cleared"
	EventLogCleared     EventType = "log.cleared"
)

type Event struct {
	Type           EventType      `json:"type"`
	Record         *AttemptRecord `json:"record,omitempty"`
	Busy           *bool          `json:"busy,omitempty"`
	NetworkWarning *bool          `json:"networkWarning,omitempty"`
	Category       Category       `json:"category,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// EventHub fans events out to subscribers. Publishing never blocks; a
// subscriber whose buffer is full misses the event.
type EventHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	closed bool
}

func NewEventHub() *EventHub {
	return &EventHub{subs: map[int]chan Event{}}
}

// Subscribe returns a channel of events and a function that cancels the
// subscription and closes the channel.
func (h *EventHub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
}

func (h *EventHub) Publish(event Event) {
	if h == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *EventHub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
