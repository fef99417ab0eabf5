package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/labforge/trackd/internal/models"
	"github.com/labforge/trackd/internal/realtime"
)

// ProgressRecomputer recomputes and persists a project's derived progress
type ProgressRecomputer interface {
	Recompute(ctx context.Context, projectID string) (int, error)
}

// ActivityRecorder appends entries to the activity audit trail
type ActivityRecorder interface {
	Create(ctx context.Context, entry *models.ActivityLogEntry) (*models.ActivityLogEntry, error)
}

// NotificationStore creates notifications and reads unread counts
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) (*models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

// Publisher pushes typed events to rooms or identities
type Publisher interface {
	ToRoom(room realtime.Room, event realtime.Event)
	ToIdentity(userID string, event realtime.Event)
}

// TaskChange describes a committed task mutation handed to the pipeline
// by the CRUD layer.
type TaskChange struct {
	Kind      string // models.ActivityTask* constant
	Task      *models.Task
	ActorID   string
	OldStatus string
	NewStatus string
	Changes   map[string]interface{} // before/after values for task-updated
}

// CommentChange describes a committed comment mutation
type CommentChange struct {
	Kind    string // models.ActivityComment* constant
	Comment *models.Comment
	Task    *models.Task // owning task, for project scoping and interest
	ActorID string
}

// Pipeline runs the fixed side-effect sequence that follows a committed
// domain mutation: progress recomputation, activity logging, notification
// creation, broadcast. Every step is best-effort with respect to the ones
// after it — a failure is logged and the pipeline moves on, because the
// primary record mutation has already committed and there is nothing to
// roll back.
type Pipeline struct {
	progress      ProgressRecomputer
	activity      ActivityRecorder
	notifications NotificationStore
	publisher     Publisher
	logger        *slog.Logger
}

// NewPipeline creates a new domain event pipeline
func NewPipeline(progress ProgressRecomputer, activity ActivityRecorder, notifications NotificationStore, publisher Publisher, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		progress:      progress,
		activity:      activity,
		notifications: notifications,
		publisher:     publisher,
		logger:        logger,
	}
}

// HandleTaskChange runs the pipeline for a task mutation
func (p *Pipeline) HandleTaskChange(ctx context.Context, change TaskChange) {
	projectID := change.Task.ProjectID

	progress := -1
	if change.affectsCompletion() {
		p.bestEffort("recompute_progress", func() error {
			value, err := p.progress.Recompute(ctx, projectID)
			if err != nil {
				return err
			}
			progress = value
			return nil
		})
	}

	p.bestEffort("activity_log", func() error {
		_, err := p.activity.Create(ctx, &models.ActivityLogEntry{
			ActorID:     change.ActorID,
			Type:        change.Kind,
			Description: change.describe(),
			ProjectID:   &projectID,
			TaskID:      &change.Task.ID,
			Metadata:    change.metadata(),
		})
		return err
	})

	var created *models.Notification
	if recipient, ok := change.interestedParty(); ok {
		p.bestEffort("create_notification", func() error {
			n, err := p.notifications.Create(ctx, &models.Notification{
				UserID:    recipient,
				ProjectID: &projectID,
				Type:      change.notificationType(),
				Title:     change.notificationTitle(),
				Message:   change.describe(),
			})
			if err != nil {
				return err
			}
			created = n
			return nil
		})
	}

	p.bestEffort("broadcast", func() error {
		p.publisher.ToRoom(realtime.ProjectRoom(projectID), change.event(progress))
		if created != nil {
			p.notifyRecipient(ctx, created)
		}
		return nil
	})
}

// HandleCommentChange runs the pipeline for a comment mutation. Comments
// never change completion state, so there is no progress step.
func (p *Pipeline) HandleCommentChange(ctx context.Context, change CommentChange) {
	projectID := change.Task.ProjectID

	p.bestEffort("activity_log", func() error {
		_, err := p.activity.Create(ctx, &models.ActivityLogEntry{
			ActorID:     change.ActorID,
			Type:        change.Kind,
			Description: change.describe(),
			ProjectID:   &projectID,
			TaskID:      &change.Task.ID,
			Metadata: models.ActivityMetadata{
				"comment_id": change.Comment.ID,
			},
		})
		return err
	})

	var created *models.Notification
	if recipient, ok := change.interestedParty(); ok {
		p.bestEffort("create_notification", func() error {
			n, err := p.notifications.Create(ctx, &models.Notification{
				UserID:    recipient,
				ProjectID: &projectID,
				Type:      models.NotificationTypeCommentAdded,
				Title:     "New comment",
				Message:   change.describe(),
			})
			if err != nil {
				return err
			}
			created = n
			return nil
		})
	}

	p.bestEffort("broadcast", func() error {
		p.publisher.ToRoom(realtime.ProjectRoom(projectID), change.event())
		if created != nil {
			p.notifyRecipient(ctx, created)
		}
		return nil
	})
}

// NotificationRead re-broadcasts an identity's unread count after an
// external mark-read. The pushed count is whatever the store reports at
// broadcast time; two rapid mutations may race and deliver a stale
// value, which clients reconcile on their next fetch.
func (p *Pipeline) NotificationRead(ctx context.Context, userID string) {
	p.bestEffort("broadcast_unread_count", func() error {
		count, err := p.notifications.CountUnread(ctx, userID)
		if err != nil {
			return err
		}
		p.publisher.ToIdentity(userID, realtime.NewEvent(realtime.EventNotificationCount, count))
		return nil
	})
}

// notifyRecipient pushes the notification and a refreshed unread count
// to the recipient's personal room
func (p *Pipeline) notifyRecipient(ctx context.Context, n *models.Notification) {
	p.publisher.ToIdentity(n.UserID, realtime.NewEvent(realtime.EventNotification, n))

	count, err := p.notifications.CountUnread(ctx, n.UserID)
	if err != nil {
		p.logger.Error("failed to count unread notifications",
			slog.String("user_id", n.UserID),
			slog.Any("error", err))
		return
	}
	p.publisher.ToIdentity(n.UserID, realtime.NewEvent(realtime.EventNotificationCount, count))
}

// bestEffort runs one pipeline step, logging and absorbing its failure.
// Later steps still run; earlier steps are never undone.
func (p *Pipeline) bestEffort(step string, fn func() error) {
	if err := fn(); err != nil {
		p.logger.Error("pipeline step failed",
			slog.String("step", step),
			slog.Any("error", err))
	}
}

// affectsCompletion reports whether the mutation changed the project's
// completion ratio. Creation and deletion always move the total count;
// a status change matters only when it crosses the completed boundary.
func (c TaskChange) affectsCompletion() bool {
	switch c.Kind {
	case models.ActivityTaskCreated, models.ActivityTaskDeleted:
		return true
	case models.ActivityTaskStatusChanged:
		return (c.OldStatus == models.TaskStatusCompleted) != (c.NewStatus == models.TaskStatusCompleted)
	}
	return false
}

// interestedParty returns the identity to notify, when it differs from
// the actor
func (c TaskChange) interestedParty() (string, bool) {
	if c.Task.AssigneeID == nil {
		return "", false
	}
	if *c.Task.AssigneeID == c.ActorID {
		return "", false
	}
	return *c.Task.AssigneeID, true
}

func (c CommentChange) interestedParty() (string, bool) {
	if c.Kind != models.ActivityCommentAdded {
		return "", false
	}
	if c.Task.AssigneeID == nil || *c.Task.AssigneeID == c.ActorID {
		return "", false
	}
	return *c.Task.AssigneeID, true
}

func (c TaskChange) describe() string {
	switch c.Kind {
	case models.ActivityTaskCreated:
		return fmt.Sprintf("task %q created", c.Task.Title)
	case models.ActivityTaskUpdated:
		return fmt.Sprintf("task %q updated", c.Task.Title)
	case models.ActivityTaskDeleted:
		return fmt.Sprintf("task %q deleted", c.Task.Title)
	case models.ActivityTaskStatusChanged:
		return fmt.Sprintf("task %q moved from %s to %s", c.Task.Title, c.OldStatus, c.NewStatus)
	}
	return fmt.Sprintf("task %q changed", c.Task.Title)
}

func (c CommentChange) describe() string {
	switch c.Kind {
	case models.ActivityCommentAdded:
		return fmt.Sprintf("comment added on task %q", c.Task.Title)
	case models.ActivityCommentUpdated:
		return fmt.Sprintf("comment updated on task %q", c.Task.Title)
	case models.ActivityCommentDeleted:
		return fmt.Sprintf("comment deleted on task %q", c.Task.Title)
	}
	return fmt.Sprintf("comment changed on task %q", c.Task.Title)
}

func (c TaskChange) metadata() models.ActivityMetadata {
	md := models.ActivityMetadata{}
	if c.Kind == models.ActivityTaskStatusChanged {
		md["old_status"] = c.OldStatus
		md["new_status"] = c.NewStatus
	}
	if len(c.Changes) > 0 {
		md["changes"] = c.Changes
	}
	return md
}

func (c TaskChange) notificationType() string {
	switch c.Kind {
	case models.ActivityTaskStatusChanged:
		if c.NewStatus == models.TaskStatusCompleted {
			return models.NotificationTypeTaskCompleted
		}
		return models.NotificationTypeTaskUpdated
	case models.ActivityTaskCreated:
		return models.NotificationTypeTaskAssigned
	default:
		return models.NotificationTypeTaskUpdated
	}
}

func (c TaskChange) notificationTitle() string {
	switch c.Kind {
	case models.ActivityTaskCreated:
		return "Task assigned to you"
	case models.ActivityTaskStatusChanged:
		return "Task status changed"
	default:
		return "Task updated"
	}
}

// event maps the change to its wire event. A recomputed progress value
// rides along with status changes so clients update their bars without
// a refetch; -1 means no recomputation happened.
func (c TaskChange) event(progress int) realtime.Event {
	payload := map[string]interface{}{
		"task": c.Task,
	}

	var eventType realtime.EventType
	switch c.Kind {
	case models.ActivityTaskCreated:
		eventType = realtime.EventTaskCreated
	case models.ActivityTaskUpdated:
		eventType = realtime.EventTaskUpdated
		payload["changes"] = c.Changes
	case models.ActivityTaskDeleted:
		eventType = realtime.EventTaskDeleted
	case models.ActivityTaskStatusChanged:
		eventType = realtime.EventTaskStatusChanged
		payload["old_status"] = c.OldStatus
		payload["new_status"] = c.NewStatus
	default:
		eventType = realtime.EventTaskUpdated
	}

	if progress >= 0 {
		payload["project_progress"] = progress
	}

	return realtime.NewEvent(eventType, payload)
}

func (c CommentChange) event() realtime.Event {
	payload := map[string]interface{}{
		"comment": c.Comment,
		"task_id": c.Task.ID,
	}

	var eventType realtime.EventType
	switch c.Kind {
	case models.ActivityCommentAdded:
		eventType = realtime.EventCommentAdded
	case models.ActivityCommentUpdated:
		eventType = realtime.EventCommentUpdated
	case models.ActivityCommentDeleted:
		eventType = realtime.EventCommentDeleted
	default:
		eventType = realtime.EventCommentUpdated
	}

	return realtime.NewEvent(eventType, payload)
}
