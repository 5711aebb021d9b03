package statemanager

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/state"
)

// Limits configures the registry's admission caps.
type Limits struct {
	// MaxRoomsPerConnection caps explicit joins. Home rooms are exempt,
	// so an identity with a tenant still gets all three memberships even
	// at the cap.
	MaxRoomsPerConnection int
}

type InMemoryManager struct {
	conns map[uuid.UUID]*state.Connection
	users map[string]*state.User
	rooms map[string]*state.Room

	mu sync.RWMutex

	limits Limits
	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger, limits Limits) *InMemoryManager {
	return &InMemoryManager{
		conns:  make(map[uuid.UUID]*state.Connection),
		users:  make(map[string]*state.User),
		rooms:  make(map[string]*state.Room),
		limits: limits,
		logger: logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

func (m *InMemoryManager) Register(link state.Link, ipAddr string, identity state.Identity) (state.ConnSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	connID := link.ID()
	if _, exists := m.conns[connID]; exists {
		return state.ConnSnapshot{}, state.ErrConnectionExists
	}

	now := time.Now()
	conn := &state.Connection{
		ID:              connID,
		IPAddress:       ipAddr,
		Identity:        identity,
		Transport:       link,
		AuthenticatedAt: now,
		LastActivityAt:  now,
		Rooms:           make(map[string]struct{}),
		HomeRooms:       make(map[string]struct{}),
	}
	m.conns[connID] = conn

	user, exists := m.users[identity.UserID]
	if !exists {
		user = &state.User{
			ID:          identity.UserID,
			Connections: make(map[uuid.UUID]*state.Connection),
		}
		m.users[identity.UserID] = user
		m.logger.Debug("Created new user session", slog.String("userID", identity.UserID))
	}
	user.Connections[connID] = conn

	for _, roomName := range identity.HomeRooms() {
		conn.HomeRooms[roomName] = struct{}{}
		m.joinLocked(conn, roomName, nil, now)
	}

	m.logger.Debug("Connection registered",
		slog.String("connID", connID.String()),
		slog.String("userID", identity.UserID),
	)
	return snapshotOf(conn), nil
}

func (m *InMemoryManager) Unregister(connID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		// disconnect can race with forced eviction; second call is a no-op
		return false
	}
	delete(m.conns, connID)

	for roomName := range conn.Rooms {
		m.leaveLocked(conn, roomName)
	}

	if user, ok := m.users[conn.Identity.UserID]; ok {
		delete(user.Connections, connID)
		if len(user.Connections) == 0 {
			delete(m.users, user.ID)
		}
	}

	m.logger.Debug("Connection deregistered", slog.String("connID", connID.String()))
	return true
}

func (m *InMemoryManager) Touch(connID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn, ok := m.conns[connID]; ok {
		conn.LastActivityAt = time.Now()
	}
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (state.ConnSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[connID]
	if !ok {
		return state.ConnSnapshot{}, false
	}
	return snapshotOf(conn), true
}

func (m *InMemoryManager) GetLink(connID uuid.UUID) (state.Link, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[connID]
	if !ok {
		return nil, false
	}
	return conn.Transport, true
}

func (m *InMemoryManager) AllLinks() []state.Link {
	m.mu.RLock()
	defer m.mu.RUnlock()
	links := make([]state.Link, 0, len(m.conns))
	for _, conn := range m.conns {
		links = append(links, conn.Transport)
	}
	return links
}

func (m *InMemoryManager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// --- User Management ---

func (m *InMemoryManager) ConnectionsOf(userID string) []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[userID]
	if !ok {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(user.Connections))
	for id := range user.Connections {
		ids = append(ids, id)
	}
	return ids
}

func (m *InMemoryManager) UserLinks(userID string) []state.Link {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[userID]
	if !ok {
		return nil
	}
	links := make([]state.Link, 0, len(user.Connections))
	for _, conn := range user.Connections {
		links = append(links, conn.Transport)
	}
	return links
}

func (m *InMemoryManager) GetUserConnectionCount(userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[userID]
	if !ok {
		return 0, nil // User doesn't exist yet, so they have 0 connections.
	}
	return len(user.Connections), nil
}

func (m *InMemoryManager) FindOldestUserConnection(userID string) (state.Link, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, false
	}

	var oldest *state.Connection
	for _, conn := range user.Connections {
		if oldest == nil || conn.AuthenticatedAt.Before(oldest.AuthenticatedAt) {
			oldest = conn
		}
	}
	if oldest == nil {
		return nil, false
	}
	return oldest.Transport, true
}

func (m *InMemoryManager) UserCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

// --- Room & Membership Management ---

func (m *InMemoryManager) Join(connID uuid.UUID, roomName string, metadata map[string]string) (state.RoomInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return state.RoomInfo{}, state.ErrConnectionNotFound
	}

	// Re-joining is idempotent: refresh metadata, report current state.
	if _, member := conn.Rooms[roomName]; !member {
		if m.limits.MaxRoomsPerConnection > 0 && explicitRoomCount(conn) >= m.limits.MaxRoomsPerConnection {
			return state.RoomInfo{}, state.ErrRoomQuotaExceeded
		}
	}

	room := m.joinLocked(conn, roomName, metadata, time.Now())
	m.logger.Debug("Connection joined room",
		slog.String("connID", connID.String()),
		slog.String("roomID", roomName),
		slog.Int("members", len(room.Members)),
	)
	return room.Info(), nil
}

func (m *InMemoryManager) Leave(connID uuid.UUID, roomName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return // connection already gone, nothing to leave
	}
	if _, home := conn.HomeRooms[roomName]; home {
		// Home rooms are server-assigned; membership lasts for the
		// lifetime of the connection. Only Unregister removes them.
		m.logger.Warn("Refused to leave home room",
			slog.String("connID", connID.String()),
			slog.String("roomID", roomName),
		)
		return
	}
	if _, member := conn.Rooms[roomName]; !member {
		return
	}
	m.leaveLocked(conn, roomName)
	m.logger.Debug("Connection left room",
		slog.String("connID", connID.String()),
		slog.String("roomID", roomName),
	)
}

func (m *InMemoryManager) RoomLinks(roomName string) []state.Link {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomName]
	if !ok {
		return nil
	}
	links := make([]state.Link, 0, len(room.Members))
	for _, member := range room.Members {
		links = append(links, member.Transport)
	}
	return links
}

func (m *InMemoryManager) FindRoom(roomName string) (state.RoomInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomName]
	if !ok {
		return state.RoomInfo{}, false
	}
	return room.Info(), true
}

func (m *InMemoryManager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// --- Janitor support ---

func (m *InMemoryManager) IdleConnections(cutoff time.Time) []state.Link {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var idle []state.Link
	for _, conn := range m.conns {
		if conn.LastActivityAt.Before(cutoff) {
			idle = append(idle, conn.Transport)
		}
	}
	return idle
}

// SweepEmptyRooms removes rooms with no live members. Leave already deletes
// empty rooms eagerly, so this is a drift guard, not the primary path.
func (m *InMemoryManager) SweepEmptyRooms() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for name, room := range m.rooms {
		if len(room.Members) == 0 {
			delete(m.rooms, name)
			removed++
			m.logger.Warn("Swept drifted empty room", slog.String("roomID", name))
		}
	}
	return removed
}

// --- internal helpers, caller must hold the write lock ---

func (m *InMemoryManager) joinLocked(conn *state.Connection, roomName string, metadata map[string]string, now time.Time) *state.Room {
	room, exists := m.rooms[roomName]
	if !exists {
		room = &state.Room{
			Name:      roomName,
			Type:      state.ParseRoomType(roomName),
			CreatedAt: now,
			Metadata:  make(map[string]string),
			Members:   make(map[uuid.UUID]*state.Connection),
		}
		m.rooms[roomName] = room
		m.logger.Debug("Created room", slog.String("roomID", roomName))
	}
	for k, v := range metadata {
		room.Metadata[k] = v
	}
	room.Members[conn.ID] = conn
	room.LastActivityAt = now
	conn.Rooms[roomName] = struct{}{}
	return room
}

func (m *InMemoryManager) leaveLocked(conn *state.Connection, roomName string) {
	delete(conn.Rooms, roomName)
	room, ok := m.rooms[roomName]
	if !ok {
		return
	}
	delete(room.Members, conn.ID)
	room.LastActivityAt = time.Now()

	// For memory hygiene, remove the room if it's now empty.
	if len(room.Members) == 0 {
		delete(m.rooms, roomName)
		m.logger.Debug("Removed empty room", slog.String("roomID", roomName))
	}
}

// explicitRoomCount counts client-requested memberships only; the
// server-assigned home rooms never consume quota.
func explicitRoomCount(conn *state.Connection) int {
	count := 0
	for name := range conn.Rooms {
		if _, home := conn.HomeRooms[name]; !home {
			count++
		}
	}
	return count
}

func snapshotOf(conn *state.Connection) state.ConnSnapshot {
	rooms := make([]string, 0, len(conn.Rooms))
	for name := range conn.Rooms {
		rooms = append(rooms, name)
	}
	return state.ConnSnapshot{
		ID:              conn.ID,
		IPAddress:       conn.IPAddress,
		Identity:        conn.Identity,
		AuthenticatedAt: conn.AuthenticatedAt,
		LastActivityAt:  conn.LastActivityAt,
		Rooms:           rooms,
	}
}
