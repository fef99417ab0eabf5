package realtime

import (
	"context"

	"github.com/labforge/trackd/internal/models"
)

// ProjectDirectory answers the membership questions room routing needs
type ProjectDirectory interface {
	ListAllIDs(ctx context.Context) ([]string, error)
	ListIDsByOwner(ctx context.Context, ownerID string) ([]string, error)
	ListIDsByMember(ctx context.Context, userID string) ([]string, error)
	IsOwner(ctx context.Context, projectID, userID string) (bool, error)
	IsMember(ctx context.Context, projectID, userID string) (bool, error)
}

// RoomRouter resolves the room set a (role, identity) pair is entitled
// to. All role-conditional membership decisions live here; nothing else
// branches on role for room access.
type RoomRouter struct {
	projects ProjectDirectory
}

// NewRoomRouter creates a new RoomRouter
func NewRoomRouter(projects ProjectDirectory) *RoomRouter {
	return &RoomRouter{projects: projects}
}

// RoomsFor computes an identity's initial room membership: the personal
// room always, plus project rooms by role — admins get every project,
// lecturers the projects they own, students the projects they are
// enrolled in.
func (rr *RoomRouter) RoomsFor(ctx context.Context, userID string, role models.Role) ([]Room, error) {
	rooms := []Room{UserRoom(userID)}

	var projectIDs []string
	var err error

	switch role {
	case models.RoleAdmin:
		projectIDs, err = rr.projects.ListAllIDs(ctx)
	case models.RoleLecturer:
		projectIDs, err = rr.projects.ListIDsByOwner(ctx, userID)
	case models.RoleStudent:
		projectIDs, err = rr.projects.ListIDsByMember(ctx, userID)
	default:
		return nil, models.ErrForbidden
	}
	if err != nil {
		return nil, err
	}

	for _, id := range projectIDs {
		rooms = append(rooms, ProjectRoom(id))
	}

	return rooms, nil
}

// CanJoinProject authorizes an ad-hoc join against the same membership
// rule used for initial room assignment.
func (rr *RoomRouter) CanJoinProject(ctx context.Context, userID string, role models.Role, projectID string) (bool, error) {
	switch role {
	case models.RoleAdmin:
		return true, nil
	case models.RoleLecturer:
		return rr.projects.IsOwner(ctx, projectID, userID)
	case models.RoleStudent:
		return rr.projects.IsMember(ctx, projectID, userID)
	default:
		return false, nil
	}
}
