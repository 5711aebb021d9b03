package hub

import (
	"runtime"
	"time"

	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/state"
)

// Stats is the periodic snapshot pushed to analytics subscribers and to the
// admin stats room.
type Stats struct {
	ActiveConnections int       `json:"activeConnections"`
	UniqueUsers       int       `json:"uniqueUsers"`
	Rooms             int       `json:"rooms"`
	Subscriptions     int       `json:"subscriptions"`
	Goroutines        int       `json:"goroutines"`
	Timestamp         time.Time `json:"timestamp"`
}

func collectStats(registry state.Manager, subscriptions int) Stats {
	return Stats{
		ActiveConnections: registry.ConnectionCount(),
		UniqueUsers:       registry.UserCount(),
		Rooms:             registry.RoomCount(),
		Subscriptions:     subscriptions,
		Goroutines:        runtime.NumGoroutine(),
		Timestamp:         time.Now(),
	}
}

// filtered trims the snapshot to the requested metric names. An empty
// request means everything.
func (s Stats) filtered(metrics []string) map[string]any {
	full := map[string]any{
		"activeConnections": s.ActiveConnections,
		"uniqueUsers":       s.UniqueUsers,
		"rooms":             s.Rooms,
		"subscriptions":     s.Subscriptions,
		"goroutines":        s.Goroutines,
		"timestamp":         s.Timestamp,
	}
	if len(metrics) == 0 {
		return full
	}
	out := map[string]any{"timestamp": s.Timestamp}
	for _, name := range metrics {
		if v, ok := full[name]; ok {
			out[name] = v
		}
	}
	return out
}
