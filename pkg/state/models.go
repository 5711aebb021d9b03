package state

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Link is the transport-facing surface of a connection. The registry fans
// out through it but never reaches into transport internals.
type Link interface {
	ID() uuid.UUID
	Send(message []byte)
	Close(err error)
}

// Identity is the authenticated principal bound to a connection. It is
// fixed at handshake time and never mutated afterwards.
type Identity struct {
	UserID      string
	Email       string
	Role        string
	TenantID    string
	Permissions Permission
}

// HomeRooms lists the rooms every identity is placed in at registration.
func (id Identity) HomeRooms() []string {
	rooms := []string{"user:" + id.UserID, "role:" + id.Role}
	if id.TenantID != "" {
		rooms = append(rooms, "tenant:"+id.TenantID)
	}
	return rooms
}

// Connection is the registry's record of one live transport connection.
// Owned by the manager; callers only ever see snapshots.
type Connection struct {
	ID              uuid.UUID
	IPAddress       string
	Identity        Identity
	Transport       Link
	AuthenticatedAt time.Time
	LastActivityAt  time.Time
	Rooms           map[string]struct{} // includes home rooms
	HomeRooms       map[string]struct{}
}

// ConnSnapshot is the immutable view handed out of the registry.
type ConnSnapshot struct {
	ID              uuid.UUID
	IPAddress       string
	Identity        Identity
	AuthenticatedAt time.Time
	LastActivityAt  time.Time
	Rooms           []string
}

// User aggregates all live connections of one principal.
type User struct {
	ID          string
	Connections map[uuid.UUID]*Connection
}

type RoomType string

const (
	RoomTypeUser    RoomType = "user"
	RoomTypeOrder   RoomType = "order"
	RoomTypeTenant  RoomType = "tenant"
	RoomTypeRole    RoomType = "role"
	RoomTypeSupport RoomType = "support"
	RoomTypeGeneric RoomType = "generic"
)

// ParseRoomType derives the room type from the name prefix. Room names are
// caller-supplied strings, so unknown prefixes map to generic instead of
// failing.
func ParseRoomType(name string) RoomType {
	prefix, _, ok := strings.Cut(name, ":")
	if !ok {
		return RoomTypeGeneric
	}
	switch prefix {
	case "user":
		return RoomTypeUser
	case "order":
		return RoomTypeOrder
	case "tenant", "school":
		return RoomTypeTenant
	case "role":
		return RoomTypeRole
	case "support":
		return RoomTypeSupport
	default:
		return RoomTypeGeneric
	}
}

// Room is created lazily on first join and deleted eagerly when its last
// member leaves.
type Room struct {
	Name           string
	Type           RoomType
	CreatedAt      time.Time
	LastActivityAt time.Time
	Metadata       map[string]string
	Members        map[uuid.UUID]*Connection
}

// RoomInfo is the snapshot view of a room.
type RoomInfo struct {
	Name           string
	Type           RoomType
	MemberCount    int
	CreatedAt      time.Time
	LastActivityAt time.Time
	Metadata       map[string]string
}

func (r *Room) Info() RoomInfo {
	meta := make(map[string]string, len(r.Metadata))
	for k, v := range r.Metadata {
		meta[k] = v
	}
	return RoomInfo{
		Name:           r.Name,
		Type:           r.Type,
		MemberCount:    len(r.Members),
		CreatedAt:      r.CreatedAt,
		LastActivityAt: r.LastActivityAt,
		Metadata:       meta,
	}
}
