package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventExecutionRecorded = "execution_recorded"
	EventTaskErrored       = "task_errored"
	EventTokensRotated     = "tokens_rotated"
	EventAlbumFlushed      = "album_flushed"
)

// ExecutionEventPayload is the minimal execution snapshot for event consumers.
type ExecutionEventPayload struct {
	TaskID        int64     `json:"task_id"`
	SourceAccount int64     `json:"source_account"`
	TargetAccount int64     `json:"target_account"`
	Platform      string    `json:"platform"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	ItemID        string    `json:"item_id,omitempty"`
	ExecutedAt    time.Time `json:"executed_at"`
}

// TaskErrorPayload reports a batch that finished with failed deliveries.
type TaskErrorPayload struct {
	TaskID int64 `json:"task_id"`
	Failed int64 `json:"failed"`
}

// AlbumEventPayload reports a media group that left the buffer.
type AlbumEventPayload struct {
	SourceAccount int64  `json:"source_account"`
	GroupID       string `json:"group_id"`
	Parts         int    `json:"parts"`
}

// TokensRotatedPayload reports a persisted token refresh.
type TokensRotatedPayload struct {
	AccountID int64  `json:"account_id"`
	Platform  string `json:"platform"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
	Processed bool
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
