package statemanager_test

import (
	"log/slog"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/state"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/state/statemanager"
)

// --- Test Suite Setup ---

func newTestLogger() *slog.Logger {
	// Discard logger output during tests by setting a high level
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestManager(maxRooms int) *statemanager.InMemoryManager {
	return statemanager.NewInMemoryManager(newTestLogger(), statemanager.Limits{MaxRoomsPerConnection: maxRooms})
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

func studentIdentity(userID string) state.Identity {
	return state.Identity{UserID: userID, Role: "student", TenantID: "school-9"}
}

// --- Connection Lifecycle Tests ---

func TestRegisterAutoJoinsHomeRooms(t *testing.T) {
	m := newTestManager(50)
	link := newFakeLink()

	snap, err := m.Register(link, "127.0.0.1", studentIdentity("u1"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if snap.ID != link.ID() {
		t.Errorf("Registered connection ID mismatch")
	}
	if len(snap.Rooms) != 3 {
		t.Fatalf("Expected 3 home rooms, got %d (%v)", len(snap.Rooms), snap.Rooms)
	}
	for _, want := range []string{"user:u1", "role:student", "tenant:school-9"} {
		if info, ok := m.FindRoom(want); !ok || info.MemberCount != 1 {
			t.Errorf("Expected home room %s with 1 member, got %+v (found=%v)", want, info, ok)
		}
	}
}

func TestRegisterWithoutTenant(t *testing.T) {
	m := newTestManager(50)
	link := newFakeLink()

	snap, err := m.Register(link, "127.0.0.1", state.Identity{UserID: "u2", Role: "staff"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if len(snap.Rooms) != 2 {
		t.Errorf("Expected 2 home rooms without tenant, got %v", snap.Rooms)
	}
}

func TestRegisterDuplicateConnection(t *testing.T) {
	m := newTestManager(50)
	link := newFakeLink()

	if _, err := m.Register(link, "1.1.1.1", studentIdentity("u1")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := m.Register(link, "1.1.1.1", studentIdentity("u1")); err != state.ErrConnectionExists {
		t.Errorf("Expected ErrConnectionExists, got %v", err)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	m := newTestManager(50)
	link := newFakeLink()
	m.Register(link, "127.0.0.1", studentIdentity("u1"))

	if !m.Unregister(link.ID()) {
		t.Error("First Unregister should report removal")
	}
	if m.Unregister(link.ID()) {
		t.Error("Second Unregister should be a no-op")
	}
	if _, found := m.GetConnection(link.ID()); found {
		t.Error("Found connection after it should have been unregistered")
	}
}

func TestUnregisterCleansEverything(t *testing.T) {
	m := newTestManager(50)
	link := newFakeLink()
	m.Register(link, "127.0.0.1", studentIdentity("u1"))
	m.Join(link.ID(), "order:o42", nil)

	m.Unregister(link.ID())

	for _, room := range []string{"order:o42", "user:u1", "role:student", "tenant:school-9"} {
		if _, found := m.FindRoom(room); found {
			t.Errorf("Room %s should have been deleted with its last member", room)
		}
	}
	if got := m.ConnectionsOf("u1"); len(got) != 0 {
		t.Errorf("Expected no connections for u1, got %v", got)
	}
	if m.RoomCount() != 0 {
		t.Errorf("Expected 0 rooms, got %d", m.RoomCount())
	}
}

// --- Multi-device presence ---

func TestMultiDevicePresence(t *testing.T) {
	m := newTestManager(50)
	link1 := newFakeLink()
	link2 := newFakeLink()

	m.Register(link1, "1.1.1.1", studentIdentity("u1"))
	m.Register(link2, "2.2.2.2", studentIdentity("u1"))

	count, _ := m.GetUserConnectionCount("u1")
	if count != 2 {
		t.Errorf("Expected connection count 2, got %d", count)
	}
	if len(m.ConnectionsOf("u1")) != 2 {
		t.Errorf("Expected 2 connection ids")
	}

	oldest, found := m.FindOldestUserConnection("u1")
	if !found || oldest.ID() != link1.ID() {
		t.Errorf("Expected oldest connection to be the first registered")
	}

	// Both devices share the user room.
	if info, _ := m.FindRoom("user:u1"); info.MemberCount != 2 {
		t.Errorf("Expected user room memberCount 2, got %d", info.MemberCount)
	}

	m.Unregister(link1.ID())
	count, _ = m.GetUserConnectionCount("u1")
	if count != 1 {
		t.Errorf("Expected connection count 1 after unregister, got %d", count)
	}
}

// --- Room & Membership ---

func TestJoinIsIdempotent(t *testing.T) {
	m := newTestManager(50)
	link := newFakeLink()
	m.Register(link, "127.0.0.1", studentIdentity("u1"))

	first, err := m.Join(link.ID(), "order:o42", nil)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	second, err := m.Join(link.ID(), "order:o42", map[string]string{"via": "retry"})
	if err != nil {
		t.Fatalf("Re-join failed: %v", err)
	}
	if first.MemberCount != 1 || second.MemberCount != 1 {
		t.Errorf("Re-join must not double-increment memberCount: %d then %d", first.MemberCount, second.MemberCount)
	}
	if second.Metadata["via"] != "retry" {
		t.Errorf("Re-join should merge metadata")
	}
}

func TestRoomQuotaExemptsHomeRooms(t *testing.T) {
	m := newTestManager(2)
	link := newFakeLink()
	snap, _ := m.Register(link, "127.0.0.1", studentIdentity("u1"))
	if len(snap.Rooms) != 3 {
		t.Fatalf("Setup: expected 3 home rooms")
	}

	if _, err := m.Join(link.ID(), "club:chess", nil); err != nil {
		t.Fatalf("First explicit join should pass: %v", err)
	}
	if _, err := m.Join(link.ID(), "club:quiz", nil); err != nil {
		t.Fatalf("Second explicit join should pass: %v", err)
	}
	if _, err := m.Join(link.ID(), "club:debate", nil); err != state.ErrRoomQuotaExceeded {
		t.Errorf("Expected ErrRoomQuotaExceeded, got %v", err)
	}
	// Re-joining an existing room is never blocked by the quota.
	if _, err := m.Join(link.ID(), "club:quiz", nil); err != nil {
		t.Errorf("Idempotent re-join must bypass the quota: %v", err)
	}
	// Leaving an explicit room frees exactly one slot.
	m.Leave(link.ID(), "club:chess")
	if _, err := m.Join(link.ID(), "club:debate", nil); err != nil {
		t.Errorf("Join after leave should pass: %v", err)
	}
	if _, err := m.Join(link.ID(), "club:robotics", nil); err != state.ErrRoomQuotaExceeded {
		t.Errorf("Expected ErrRoomQuotaExceeded, got %v", err)
	}
}

func TestLeaveHomeRoomIsRefused(t *testing.T) {
	m := newTestManager(50)
	link := newFakeLink()
	m.Register(link, "127.0.0.1", studentIdentity("u1"))

	for _, home := range []string{"user:u1", "role:student", "tenant:school-9"} {
		m.Leave(link.ID(), home)
		if info, found := m.FindRoom(home); !found || info.MemberCount != 1 {
			t.Errorf("Home room %s must survive a leave attempt, got %+v (found=%v)", home, info, found)
		}
	}
	snap, _ := m.GetConnection(link.ID())
	if len(snap.Rooms) != 3 {
		t.Errorf("Expected all 3 home memberships intact, got %v", snap.Rooms)
	}
}

func TestLeaveNotMemberIsNoop(t *testing.T) {
	m := newTestManager(50)
	link := newFakeLink()
	m.Register(link, "127.0.0.1", studentIdentity("u1"))

	m.Leave(link.ID(), "order:nothere") // must not panic or error
	if _, found := m.FindRoom("order:nothere"); found {
		t.Error("Leave must not create rooms")
	}
}

// Room lifecycle across two members, mirroring live order tracking.
func TestRoomLifecycleAcrossMembers(t *testing.T) {
	m := newTestManager(50)
	a := newFakeLink()
	b := newFakeLink()
	m.Register(a, "1.1.1.1", studentIdentity("u1"))
	m.Register(b, "2.2.2.2", studentIdentity("u2"))

	info, err := m.Join(a.ID(), "order:o42", nil)
	if err != nil || info.MemberCount != 1 {
		t.Fatalf("Expected memberCount 1, got %+v err=%v", info, err)
	}
	if info.Type != state.RoomTypeOrder {
		t.Errorf("Expected order room type, got %s", info.Type)
	}

	info, _ = m.Join(b.ID(), "order:o42", nil)
	if info.MemberCount != 2 {
		t.Fatalf("Expected memberCount 2, got %d", info.MemberCount)
	}

	m.Unregister(a.ID())
	if info, found := m.FindRoom("order:o42"); !found || info.MemberCount != 1 {
		t.Fatalf("Expected room to survive with 1 member, got %+v (found=%v)", info, found)
	}

	m.Leave(b.ID(), "order:o42")
	if _, found := m.FindRoom("order:o42"); found {
		t.Fatal("Room should be deleted when last member leaves")
	}

	c := newFakeLink()
	m.Register(c, "3.3.3.3", studentIdentity("u3"))
	info, err = m.Join(c.ID(), "order:o42", nil)
	if err != nil || info.MemberCount != 1 {
		t.Fatalf("Recreated room should have memberCount 1, got %+v err=%v", info, err)
	}
}

func TestRoomLinksSnapshot(t *testing.T) {
	m := newTestManager(50)
	a := newFakeLink()
	b := newFakeLink()
	m.Register(a, "1.1.1.1", studentIdentity("u1"))
	m.Register(b, "2.2.2.2", studentIdentity("u2"))
	m.Join(a.ID(), "support:desk", nil)
	m.Join(b.ID(), "support:desk", nil)

	links := m.RoomLinks("support:desk")
	if len(links) != 2 {
		t.Fatalf("Expected 2 links, got %d", len(links))
	}
	if links := m.RoomLinks("support:closed"); links != nil {
		t.Errorf("Unknown room should yield no links")
	}
}

// --- Janitor support ---

func TestIdleConnections(t *testing.T) {
	m := newTestManager(50)
	link := newFakeLink()
	m.Register(link, "127.0.0.1", studentIdentity("u1"))

	if idle := m.IdleConnections(time.Now().Add(-time.Minute)); len(idle) != 0 {
		t.Errorf("Fresh connection must not be idle, got %d", len(idle))
	}
	if idle := m.IdleConnections(time.Now().Add(time.Minute)); len(idle) != 1 {
		t.Errorf("Expected 1 idle connection against a future cutoff, got %d", len(idle))
	}
}

func TestTouchRefreshesActivity(t *testing.T) {
	m := newTestManager(50)
	link := newFakeLink()
	snap, _ := m.Register(link, "127.0.0.1", studentIdentity("u1"))

	time.Sleep(5 * time.Millisecond)
	m.Touch(link.ID())
	after, _ := m.GetConnection(link.ID())
	if !after.LastActivityAt.After(snap.LastActivityAt) {
		t.Error("Touch should advance LastActivityAt")
	}
}

func TestSweepEmptyRoomsFindsNothingNormally(t *testing.T) {
	m := newTestManager(50)
	link := newFakeLink()
	m.Register(link, "127.0.0.1", studentIdentity("u1"))
	m.Join(link.ID(), "order:o1", nil)

	if removed := m.SweepEmptyRooms(); removed != 0 {
		t.Errorf("Eager deletion should leave nothing to sweep, removed %d", removed)
	}
}

// --- Concurrency ---

func TestConcurrentJoinsAndLeaves(t *testing.T) {
	m := newTestManager(0) // no quota
	const n = 32

	var wg sync.WaitGroup
	links := make([]*fakeLink, n)
	for i := 0; i < n; i++ {
		links[i] = newFakeLink()
		m.Register(links[i], "1.1.1.1", studentIdentity("u"+strconv.Itoa(i)))
	}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(link *fakeLink) {
			defer wg.Done()
			m.Join(link.ID(), "assembly", nil)
			m.Join(link.ID(), "assembly", nil)
		}(links[i])
	}
	wg.Wait()

	info, found := m.FindRoom("assembly")
	if !found || info.MemberCount != n {
		t.Fatalf("Expected %d members, got %+v (found=%v)", n, info, found)
	}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(link *fakeLink) {
			defer wg.Done()
			m.Leave(link.ID(), "assembly")
		}(links[i])
	}
	wg.Wait()

	if _, found := m.FindRoom("assembly"); found {
		t.Fatal("Room should be gone after all members left")
	}
}
