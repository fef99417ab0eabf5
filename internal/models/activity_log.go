package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Activity types for the audit trail
const (
	ActivityTaskCreated       = "task_created"
	ActivityTaskUpdated       = "task_updated"
	ActivityTaskDeleted       = "task_deleted"
	ActivityTaskStatusChanged = "task_status_changed"
	ActivityCommentAdded      = "comment_added"
	ActivityCommentUpdated    = "comment_updated"
	ActivityCommentDeleted    = "comment_deleted"
)

// ActivityLogEntry is an append-only audit record written by the domain
// event pipeline after a committed mutation. Read-only thereafter.
type ActivityLogEntry struct {
	ID          string           `json:"id"`
	ActorID     string           `json:"actor_id"`
	Type        string           `json:"type"`
	Description string           `json:"description"`
	ProjectID   *string          `json:"project_id,omitempty"`
	TaskID      *string          `json:"task_id,omitempty"`
	Metadata    ActivityMetadata `json:"metadata,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// ActivityMetadata holds additional context for activity entries
type ActivityMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (am *ActivityMetadata) Scan(value interface{}) error {
	if value == nil {
		*am = make(ActivityMetadata)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*am = ActivityMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (am ActivityMetadata) Value() (driver.Value, error) {
	if am == nil {
		return nil, nil
	}
	return json.Marshal(am)
}

// MarshalJSON implements json.Marshaler
func (am ActivityMetadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(am))
}

// UnmarshalJSON implements json.Unmarshaler
func (am *ActivityMetadata) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*am = ActivityMetadata(m)
	return nil
}
