package realtime

import "strings"

// Room is a logical broadcast scope. Rooms are not persisted; membership
// is derived from role and project affiliation at connect time.
type Room string

// ProjectRoom returns the room for a project's collaborators
func ProjectRoom(projectID string) Room {
	return Room("project:" + projectID)
}

// UserRoom returns an identity's personal room
func UserRoom(userID string) Room {
	return Room("user:" + userID)
}

// ProjectID returns the project id for a project room, or false when the
// room is not project-scoped.
func (r Room) ProjectID() (string, bool) {
	id, ok := strings.CutPrefix(string(r), "project:")
	return id, ok
}
