package realtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labforge/trackd/internal/models"
)

// fakeDirectory implements ProjectDirectory over fixed ownership and
// membership tables
type fakeDirectory struct {
	all     []string
	owners  map[string][]string // ownerID -> projectIDs
	members map[string][]string // userID -> projectIDs
}

func (d *fakeDirectory) ListAllIDs(ctx context.Context) ([]string, error) {
	return d.all, nil
}

func (d *fakeDirectory) ListIDsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	return d.owners[ownerID], nil
}

func (d *fakeDirectory) ListIDsByMember(ctx context.Context, userID string) ([]string, error) {
	return d.members[userID], nil
}

func (d *fakeDirectory) IsOwner(ctx context.Context, projectID, userID string) (bool, error) {
	for _, id := range d.owners[userID] {
		if id == projectID {
			return true, nil
		}
	}
	return false, nil
}

func (d *fakeDirectory) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	for _, id := range d.members[userID] {
		if id == projectID {
			return true, nil
		}
	}
	return false, nil
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		all:     []string{"p1", "p2", "p3"},
		owners:  map[string][]string{"lecturer-1": {"p1", "p2"}},
		members: map[string][]string{"student-1": {"p2"}},
	}
}

func TestRoomRouter_RoomsForAdmin(t *testing.T) {
	router := NewRoomRouter(newFakeDirectory())

	rooms, err := router.RoomsFor(context.Background(), "admin-1", models.RoleAdmin)
	require.NoError(t, err)

	assert.ElementsMatch(t, []Room{
		UserRoom("admin-1"),
		ProjectRoom("p1"),
		ProjectRoom("p2"),
		ProjectRoom("p3"),
	}, rooms)
}

func TestRoomRouter_RoomsForLecturer(t *testing.T) {
	router := NewRoomRouter(newFakeDirectory())

	rooms, err := router.RoomsFor(context.Background(), "lecturer-1", models.RoleLecturer)
	require.NoError(t, err)

	assert.ElementsMatch(t, []Room{
		UserRoom("lecturer-1"),
		ProjectRoom("p1"),
		ProjectRoom("p2"),
	}, rooms)
}

func TestRoomRouter_RoomsForStudent(t *testing.T) {
	router := NewRoomRouter(newFakeDirectory())

	rooms, err := router.RoomsFor(context.Background(), "student-1", models.RoleStudent)
	require.NoError(t, err)

	assert.ElementsMatch(t, []Room{
		UserRoom("student-1"),
		ProjectRoom("p2"),
	}, rooms)
}

func TestRoomRouter_RoomsForAlwaysIncludesPersonalRoom(t *testing.T) {
	router := NewRoomRouter(newFakeDirectory())

	// A student with no enrollments still gets the personal room
	rooms, err := router.RoomsFor(context.Background(), "student-2", models.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, []Room{UserRoom("student-2")}, rooms)
}

func TestRoomRouter_RoomsForUnknownRole(t *testing.T) {
	router := NewRoomRouter(newFakeDirectory())

	_, err := router.RoomsFor(context.Background(), "user-1", models.Role("intruder"))
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestRoomRouter_CanJoinProject(t *testing.T) {
	router := NewRoomRouter(newFakeDirectory())
	ctx := context.Background()

	tests := []struct {
		name      string
		userID    string
		role      models.Role
		projectID string
		want      bool
	}{
		{"admin joins anything", "admin-1", models.RoleAdmin, "p3", true},
		{"lecturer joins owned project", "lecturer-1", models.RoleLecturer, "p1", true},
		{"lecturer rejected from foreign project", "lecturer-1", models.RoleLecturer, "p3", false},
		{"student joins enrolled project", "student-1", models.RoleStudent, "p2", true},
		{"student rejected from other project", "student-1", models.RoleStudent, "p1", false},
		{"unknown role rejected", "user-1", models.Role("intruder"), "p1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, err := router.CanJoinProject(ctx, tt.userID, tt.role, tt.projectID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, allowed)
		})
	}
}

func TestRoomConstructors(t *testing.T) {
	project := ProjectRoom("p1")
	personal := UserRoom("user-1")

	id, ok := project.ProjectID()
	assert.True(t, ok)
	assert.Equal(t, "p1", id)

	_, ok = personal.ProjectID()
	assert.False(t, ok)
}
