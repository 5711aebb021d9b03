package state

import (
	"time"

	"github.com/google/uuid"
)

type Manager interface {
	// --- Connection Lifecycle ---
	// Register creates the connection record and places it in the
	// identity's home rooms. The identity must already be authenticated.
	Register(link Link, ipAddr string, identity Identity) (ConnSnapshot, error)
	// Unregister removes the connection from every room it was a member
	// of, deleting rooms that become empty. Idempotent: returns false if
	// the connection was already gone.
	Unregister(connID uuid.UUID) bool
	// Touch records client activity, used by the idle reaper.
	Touch(connID uuid.UUID)
	GetConnection(connID uuid.UUID) (ConnSnapshot, bool)
	GetLink(connID uuid.UUID) (Link, bool)
	AllLinks() []Link
	ConnectionCount() int

	// --- User Management (multi-device presence) ---
	ConnectionsOf(userID string) []uuid.UUID
	UserLinks(userID string) []Link
	GetUserConnectionCount(userID string) (int, error)
	FindOldestUserConnection(userID string) (Link, bool)
	UserCount() int

	// --- Room & Membership Management ---
	// Join adds the connection to a room, creating the room if absent.
	// Re-joining is idempotent and returns the current room state.
	Join(connID uuid.UUID, roomName string, metadata map[string]string) (RoomInfo, error)
	// Leave is a no-op (not an error) if the connection is not a member.
	Leave(connID uuid.UUID, roomName string)
	RoomLinks(roomName string) []Link
	FindRoom(roomName string) (RoomInfo, bool)
	RoomCount() int

	// --- Janitor support ---
	IdleConnections(cutoff time.Time) []Link
	SweepEmptyRooms() int
}
