package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/config"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/platform"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/state"
)

func newJanitorFixture(t *testing.T, cfg config.JanitorConfig) (*Janitor, state.Manager) {
	t.Helper()
	registry := testRegistry()
	scheduler := NewScheduler(testLogger())
	t.Cleanup(scheduler.StopAll)
	limiter := NewRateLimiter(testLogger())
	broadcaster := NewBroadcaster(testLogger(), registry, platform.NopRecorder{})
	subs := NewSubscriptionManager(testLogger(), registry, scheduler, time.Second)
	j := NewJanitor(testLogger(), registry, limiter, subs, broadcaster, scheduler, cfg, time.Minute)
	return j, registry
}

func TestReapIdleConnections(t *testing.T) {
	j, registry := newJanitorFixture(t, config.JanitorConfig{IdleTimeout: 20 * time.Millisecond})

	idle := newFakeLink()
	fresh := newFakeLink()
	registry.Register(idle, "1.1.1.1", state.Identity{UserID: "u1", Role: "student"})

	time.Sleep(30 * time.Millisecond)
	registry.Register(fresh, "2.2.2.2", state.Identity{UserID: "u2", Role: "student"})

	require.NoError(t, j.reapIdleConnections(context.Background()))
	assert.True(t, idle.isClosed(), "idle connection should be force-closed")
	assert.False(t, fresh.isClosed(), "active connection must be left alone")
}

func TestTouchedConnectionSurvivesReaper(t *testing.T) {
	j, registry := newJanitorFixture(t, config.JanitorConfig{IdleTimeout: 30 * time.Millisecond})

	link := newFakeLink()
	registry.Register(link, "1.1.1.1", state.Identity{UserID: "u1", Role: "student"})

	time.Sleep(20 * time.Millisecond)
	registry.Touch(link.ID())
	time.Sleep(15 * time.Millisecond)

	require.NoError(t, j.reapIdleConnections(context.Background()))
	assert.False(t, link.isClosed(), "activity within the threshold must prevent reaping")
}

func TestSweepRateWindows(t *testing.T) {
	j, _ := newJanitorFixture(t, config.JanitorConfig{})
	j.messageWindow = 10 * time.Millisecond

	j.limiter.Allow(newFakeLink().ID(), j.messageWindow, 5)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, j.sweepRateWindows(context.Background()))
	assert.Equal(t, 0, j.limiter.WindowCount())
}

func TestAdminStatsReachRoleRoom(t *testing.T) {
	j, registry := newJanitorFixture(t, config.JanitorConfig{})

	admin := newFakeLink()
	student := newFakeLink()
	// role:admin is the admin's home room, joined at registration.
	registry.Register(admin, "1.1.1.1", state.Identity{UserID: "a1", Role: "admin"})
	registry.Register(student, "2.2.2.2", state.Identity{UserID: "u1", Role: "student"})

	require.NoError(t, j.pushAdminStats(context.Background()))

	events := admin.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, "realtime_stats", events[0].Event)
	assert.Empty(t, student.events(t), "stats must only reach the admin room")
}

func TestEmptyRoomSweepIsQuietNormally(t *testing.T) {
	j, registry := newJanitorFixture(t, config.JanitorConfig{})

	link := newFakeLink()
	registry.Register(link, "1.1.1.1", state.Identity{UserID: "u1", Role: "student"})
	registry.Join(link.ID(), "order:o1", nil)

	require.NoError(t, j.sweepEmptyRooms(context.Background()))
	_, found := registry.FindRoom("order:o1")
	assert.True(t, found, "populated rooms must survive the sweep")
}
