package hub

import (
	"log/slog"

	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/platform"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/state"
)

// Broadcaster fans an encoded event out to room members, a user's devices,
// or every live connection. Member snapshots are taken under the registry's
// read lock; delivery happens outside it, so a slow recipient cannot stall
// registry mutation. Delivery is best-effort: a connection that closes
// mid-delivery simply misses the event.
type Broadcaster struct {
	registry state.Manager
	recorder platform.EventRecorder
	logger   *slog.Logger
}

func NewBroadcaster(logger *slog.Logger, registry state.Manager, recorder platform.EventRecorder) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "broadcaster")),
	}
}

// ToRoom delivers event to every member of roomName and returns the
// recipient count.
func (b *Broadcaster) ToRoom(roomName string, event []byte) int {
	links := b.registry.RoomLinks(roomName)
	for _, link := range links {
		link.Send(event)
	}
	if len(links) > 0 {
		b.recorder.RecordEvent("broadcast_room", map[string]string{"room": roomName})
	}
	return len(links)
}

// ToUser delivers event to all of a user's connections (multi-device echo).
func (b *Broadcaster) ToUser(userID string, event []byte) int {
	links := b.registry.UserLinks(userID)
	for _, link := range links {
		link.Send(event)
	}
	return len(links)
}

// ToAll delivers event to every registered connection; used for
// system-wide announcements.
func (b *Broadcaster) ToAll(event []byte) int {
	links := b.registry.AllLinks()
	for _, link := range links {
		link.Send(event)
	}
	b.recorder.RecordEvent("broadcast_all", nil)
	return len(links)
}
