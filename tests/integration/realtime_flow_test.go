package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labforge/trackd/internal/events"
	"github.com/labforge/trackd/internal/models"
	"github.com/labforge/trackd/internal/realtime"
)

// wsClient is a thin test wrapper around a websocket connection
type wsClient struct {
	conn *websocket.Conn
}

func dialAndAuth(t *testing.T, ts *TestServer, token string) *wsClient {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL(), nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}

	require.NoError(t, conn.WriteJSON(map[string]string{
		"action": "auth",
		"token":  token,
	}))

	return &wsClient{conn: conn}
}

// readEvent reads events until one of the wanted types arrives, skipping
// presence noise from other tests' connections
func (c *wsClient) readEvent(t *testing.T, want ...realtime.EventType) realtime.Event {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, c.conn.SetReadDeadline(deadline))

	for {
		var event realtime.Event
		require.NoError(t, c.conn.ReadJSON(&event))
		for _, w := range want {
			if event.Type == w {
				return event
			}
		}
	}
}

func (c *wsClient) close() {
	c.conn.Close()
}

func TestRealtimeFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	testDB, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	defer testDB.Teardown(ctx)

	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	login := func(t *testing.T, email, password string) string {
		resp, err := ts.Request(http.MethodPost, "/auth/login", map[string]string{
			"email":    email,
			"password": password,
		}, nil)
		require.NoError(t, err)
		token, err := ExtractTokenFromResponse(resp)
		require.NoError(t, err)
		require.NotEmpty(t, token)
		return token
	}

	t.Run("task status change reaches project members", func(t *testing.T) {
		require.NoError(t, testDB.CleanupTables(ctx))

		lecturerEmail, lecturerPassword := TestUser("lecturer")
		lecturer, err := SeedUser(ctx, testDB.Pool, lecturerEmail, lecturerPassword, models.RoleLecturer)
		require.NoError(t, err)

		studentEmail, studentPassword := TestUser("member")
		student, err := SeedUser(ctx, testDB.Pool, studentEmail, studentPassword, models.RoleStudent)
		require.NoError(t, err)

		project, err := SeedProject(ctx, testDB.Pool, "Signal Processing", lecturer.ID)
		require.NoError(t, err)
		require.NoError(t, SeedProjectMember(ctx, testDB.Pool, project.ID, student.ID))

		task, err := SeedTask(ctx, testDB.Pool, project.ID, "Collect samples", models.TaskStatusTodo, &student.ID)
		require.NoError(t, err)

		client := dialAndAuth(t, ts, login(t, studentEmail, studentPassword))
		defer client.close()

		// Wait for the connection to be registered before publishing
		require.Eventually(t, func() bool {
			return len(ts.Registry.ConnectionsByIdentity(student.ID)) == 1
		}, 5*time.Second, 50*time.Millisecond)

		task.Status = models.TaskStatusCompleted
		ts.Pipeline.HandleTaskChange(ctx, events.TaskChange{
			Kind:      models.ActivityTaskStatusChanged,
			Task:      task,
			ActorID:   lecturer.ID,
			OldStatus: models.TaskStatusTodo,
			NewStatus: models.TaskStatusCompleted,
		})

		event := client.readEvent(t, realtime.EventTaskStatusChanged)

		payload, err := json.Marshal(event.Payload)
		require.NoError(t, err)
		var body struct {
			OldStatus       string `json:"old_status"`
			NewStatus       string `json:"new_status"`
			ProjectProgress int    `json:"project_progress"`
		}
		require.NoError(t, json.Unmarshal(payload, &body))
		assert.Equal(t, models.TaskStatusTodo, body.OldStatus)
		assert.Equal(t, models.TaskStatusCompleted, body.NewStatus)
		assert.Equal(t, 100, body.ProjectProgress)

		// The assignee also gets a notification on the personal room
		client.readEvent(t, realtime.EventNotification)
		countEvent := client.readEvent(t, realtime.EventNotificationCount)

		countPayload, err := json.Marshal(countEvent.Payload)
		require.NoError(t, err)
		var count int
		require.NoError(t, json.Unmarshal(countPayload, &count))
		assert.Equal(t, 1, count)

		// Persisted progress matches the broadcast value
		var progress int
		require.NoError(t, testDB.Pool.QueryRow(ctx,
			`SELECT progress FROM projects WHERE id = $1`, project.ID).Scan(&progress))
		assert.Equal(t, 100, progress)
	})

	t.Run("non-member cannot join a project room", func(t *testing.T) {
		require.NoError(t, testDB.CleanupTables(ctx))

		lecturerEmail, lecturerPassword := TestUser("owner")
		lecturer, err := SeedUser(ctx, testDB.Pool, lecturerEmail, lecturerPassword, models.RoleLecturer)
		require.NoError(t, err)

		outsiderEmail, outsiderPassword := TestUser("outsider")
		outsider, err := SeedUser(ctx, testDB.Pool, outsiderEmail, outsiderPassword, models.RoleStudent)
		require.NoError(t, err)

		project, err := SeedProject(ctx, testDB.Pool, "Closed Project", lecturer.ID)
		require.NoError(t, err)

		client := dialAndAuth(t, ts, login(t, outsiderEmail, outsiderPassword))
		defer client.close()

		require.Eventually(t, func() bool {
			return len(ts.Registry.ConnectionsByIdentity(outsider.ID)) == 1
		}, 5*time.Second, 50*time.Millisecond)

		require.NoError(t, client.conn.WriteJSON(map[string]string{
			"action":     "join-project",
			"project_id": project.ID,
		}))

		// The rejected join must not deliver project events to the outsider
		time.Sleep(200 * time.Millisecond)
		assert.Empty(t, ts.Registry.ConnectionsByRoom(realtime.ProjectRoom(project.ID)))
	})

	t.Run("invalid token is rejected during handshake", func(t *testing.T) {
		conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL(), nil)
		require.NoError(t, err)
		if resp != nil {
			resp.Body.Close()
		}
		defer conn.Close()

		require.NoError(t, conn.WriteJSON(map[string]string{
			"action": "auth",
			"token":  "not-a-token",
		}))

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, _, err = conn.ReadMessage()
		assert.Error(t, err)
	})
}
