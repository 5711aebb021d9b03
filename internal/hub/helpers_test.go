package hub

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/protocol"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/state"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/state/statemanager"
)

func testLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func testRegistry() *statemanager.InMemoryManager {
	return statemanager.NewInMemoryManager(testLogger(), statemanager.Limits{MaxRoomsPerConnection: 50})
}

type fakeLink struct {
	id     uuid.UUID
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func newFakeLink() *fakeLink {
	return &fakeLink{id: uuid.New()}
}

func (f *fakeLink) ID() uuid.UUID { return f.id }

func (f *fakeLink) Send(m []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
}

func (f *fakeLink) Close(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeLink) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// events decodes everything the link received as server events.
func (f *fakeLink) events(t *testing.T) []protocol.ServerEvent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.ServerEvent, 0, len(f.sent))
	for _, raw := range f.sent {
		var ev protocol.ServerEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("link received non-event frame: %s", raw)
		}
		out = append(out, ev)
	}
	return out
}

var _ state.Link = (*fakeLink)(nil)
