package realtime

import "time"

// EventType identifies a realtime event kind on the wire
type EventType string

const (
	EventTaskCreated       EventType = "task-created"
	EventTaskUpdated       EventType = "task-updated"
	EventTaskDeleted       EventType = "task-deleted"
	EventTaskStatusChanged EventType = "task-status-changed"
	EventCommentAdded      EventType = "comment-added"
	EventCommentUpdated    EventType = "comment-updated"
	EventCommentDeleted    EventType = "comment-deleted"
	EventNotification      EventType = "notification"
	EventNotificationCount EventType = "notification-count"
	EventUserOnline        EventType = "user-online"
	EventUserOffline       EventType = "user-offline"
)

// Event is one typed realtime message. Delivery is best-effort: it is
// pushed to the connections registered at publish time and never queued
// or replayed for absent recipients.
type Event struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent builds an event stamped with the current time
func NewEvent(eventType EventType, payload interface{}) Event {
	return Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}
