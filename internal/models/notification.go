package models

import "time"

// Notification types
const (
	NotificationTypeTaskAssigned  = "task_assigned"
	NotificationTypeTaskUpdated   = "task_updated"
	NotificationTypeTaskCompleted = "task_completed"
	NotificationTypeCommentAdded  = "comment_added"
)

// Notification is created by the domain event pipeline for an interested
// party other than the actor. The core only ever creates notifications
// and marks them read; it never deletes them.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ProjectID *string   `json:"project_id,omitempty"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
