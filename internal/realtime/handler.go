package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labforge/trackd/internal/auth"
	"github.com/labforge/trackd/internal/models"
)

// connState tracks where a connection is in its lifecycle:
// connecting -> authenticating -> joined -> closed. A failed handshake
// goes straight from authenticating to closed.
type connState int

const (
	stateConnecting connState = iota
	stateAuthenticating
	stateJoined
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAuthenticating:
		return "authenticating"
	case stateJoined:
		return "joined"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// Client actions on the realtime channel
const (
	actionAuth         = "auth"
	actionJoinProject  = "join-project"
	actionLeaveProject = "leave-project"
)

// clientMessage is what clients send over the realtime channel
type clientMessage struct {
	Action    string `json:"action"`
	Token     string `json:"token,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
}

// UserFetcher loads an identity's current account state. Admission
// requires the account still be active at handshake time.
type UserFetcher interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Config holds realtime transport tuning
type Config struct {
	SendBufferSize   int
	WriteTimeout     time.Duration
	PongTimeout      time.Duration
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
}

// Handler upgrades HTTP requests to websocket connections and runs each
// connection's lifecycle: handshake authentication, registration, room
// assignment, client join/leave requests and teardown.
type Handler struct {
	tm          *auth.TokenManager
	sessions    auth.SessionValidator
	users       UserFetcher
	registry    *Registry
	router      *RoomRouter
	broadcaster *Broadcaster
	config      Config
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// NewHandler creates a new realtime connection handler
func NewHandler(tm *auth.TokenManager, sessions auth.SessionValidator, users UserFetcher, registry *Registry, router *RoomRouter, broadcaster *Broadcaster, config Config, logger *slog.Logger) *Handler {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}

	return &Handler{
		tm:          tm,
		sessions:    sessions,
		users:       users,
		registry:    registry,
		router:      router,
		broadcaster: broadcaster,
		config:      config,
		upgrader: websocket.Upgrader{
			// Browser origin enforcement happens in the CORS layer in
			// front of this handler
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the request and runs the connection to completion
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.Any("error", err))
		return
	}

	state := stateConnecting

	claims, ok := h.authenticate(r.Context(), ws, &state)
	if !ok {
		// Registry and session failures are fatal to this connection
		// attempt only; nothing else is affected
		h.transition(&state, stateClosed)
		_ = ws.Close()
		return
	}

	conn := newWSConn(ws, claims.UserID, h.config.SendBufferSize, h.config.WriteTimeout, h.config.PingInterval, h.logger)
	go conn.writePump()

	rooms, err := h.router.RoomsFor(r.Context(), claims.UserID, claims.Role)
	if err != nil {
		h.logger.Error("failed to resolve rooms",
			slog.String("user_id", claims.UserID),
			slog.Any("error", err))
		conn.Close()
		return
	}

	first := h.registry.Register(conn)

	joined := make(map[Room]struct{}, len(rooms))
	for _, room := range rooms {
		h.registry.Join(conn, room)
		joined[room] = struct{}{}
	}
	h.transition(&state, stateJoined)

	h.logger.Info("realtime connection joined",
		slog.String("connection_id", conn.ID()),
		slog.String("user_id", claims.UserID),
		slog.Int("rooms", len(rooms)))

	if first {
		h.announcePresence(claims.UserID, joined, EventUserOnline)
	}

	h.readLoop(r.Context(), conn, claims, joined)

	// Teardown: leave rooms, drop the registry entry, announce offline
	// when the identity's last connection drains
	h.transition(&state, stateClosed)

	roomList := make([]Room, 0, len(joined))
	for room := range joined {
		roomList = append(roomList, room)
	}

	last := h.registry.Unregister(conn, roomList)
	conn.Close()

	if last {
		h.announcePresence(claims.UserID, joined, EventUserOffline)
	}

	h.logger.Info("realtime connection closed",
		slog.String("connection_id", conn.ID()),
		slog.String("user_id", claims.UserID))
}

// authenticate runs the handshake: the first client message must carry a
// valid bearer token whose session is live and whose account is active.
func (h *Handler) authenticate(ctx context.Context, ws *websocket.Conn, state *connState) (*models.TokenClaims, bool) {
	_ = ws.SetReadDeadline(time.Now().Add(h.config.HandshakeTimeout))

	var msg clientMessage
	if err := ws.ReadJSON(&msg); err != nil {
		h.logger.Info("handshake read failed", slog.Any("error", err))
		return nil, false
	}

	h.transition(state, stateAuthenticating)

	if msg.Action != actionAuth || msg.Token == "" {
		h.logger.Info("handshake missing auth message")
		return nil, false
	}

	claims, err := h.tm.ValidateToken(msg.Token)
	if err != nil {
		h.logger.Info("handshake token invalid", slog.Any("error", err))
		return nil, false
	}

	if _, err := h.sessions.ValidateSession(ctx, claims.SessionID); err != nil {
		h.logger.Info("handshake session invalid",
			slog.String("user_id", claims.UserID),
			slog.Any("error", err))
		return nil, false
	}

	user, err := h.users.GetByID(ctx, claims.UserID)
	if err != nil {
		h.logger.Error("handshake user lookup failed",
			slog.String("user_id", claims.UserID),
			slog.Any("error", err))
		return nil, false
	}
	if !user.IsActive() {
		h.logger.Info("handshake rejected: account deactivated",
			slog.String("user_id", claims.UserID))
		return nil, false
	}

	return claims, true
}

// readLoop services client requests until the connection dies. It is
// the single reader goroutine and the sole owner of the joined set.
func (h *Handler) readLoop(ctx context.Context, conn *wsConn, claims *models.TokenClaims, joined map[Room]struct{}) {
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	})
	_ = conn.ws.SetReadDeadline(time.Now().Add(h.config.PongTimeout))

	for {
		var msg clientMessage
		if err := conn.ws.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Action {
		case actionJoinProject:
			h.handleJoin(ctx, conn, claims, joined, msg.ProjectID)
		case actionLeaveProject:
			h.handleLeave(conn, joined, msg.ProjectID)
		default:
			h.logger.Debug("ignoring unknown realtime action",
				slog.String("action", msg.Action),
				slog.String("connection_id", conn.ID()))
		}
	}
}

// handleJoin authorizes an ad-hoc project room join against the same
// membership rule as initial assignment. A rejected join changes no
// room membership.
func (h *Handler) handleJoin(ctx context.Context, conn *wsConn, claims *models.TokenClaims, joined map[Room]struct{}, projectID string) {
	if projectID == "" {
		return
	}

	allowed, err := h.router.CanJoinProject(ctx, claims.UserID, claims.Role, projectID)
	if err != nil {
		h.logger.Error("join authorization failed",
			slog.String("user_id", claims.UserID),
			slog.String("project_id", projectID),
			slog.Any("error", err))
		return
	}
	if !allowed {
		h.logger.Info("join-project rejected",
			slog.String("user_id", claims.UserID),
			slog.String("project_id", projectID))
		return
	}

	room := ProjectRoom(projectID)
	h.registry.Join(conn, room)
	joined[room] = struct{}{}
}

func (h *Handler) handleLeave(conn *wsConn, joined map[Room]struct{}, projectID string) {
	if projectID == "" {
		return
	}

	room := ProjectRoom(projectID)
	if _, ok := joined[room]; !ok {
		return
	}

	h.registry.Leave(conn, room)
	delete(joined, room)
}

// transition advances a connection's lifecycle state
func (h *Handler) transition(state *connState, next connState) {
	h.logger.Debug("connection state change",
		slog.String("from", state.String()),
		slog.String("to", next.String()))
	*state = next
}

// announcePresence pushes an online/offline event to the identity's
// project rooms
func (h *Handler) announcePresence(userID string, joined map[Room]struct{}, eventType EventType) {
	event := NewEvent(eventType, map[string]string{"user_id": userID})
	for room := range joined {
		if _, ok := room.ProjectID(); !ok {
			continue
		}
		h.broadcaster.ToRoom(room, event)
	}
}
