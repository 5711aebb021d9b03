package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/protocol"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/state"
)

func newSubsFixture(t *testing.T, minInterval time.Duration) (*SubscriptionManager, *Scheduler, state.Manager, *fakeLink) {
	t.Helper()
	registry := testRegistry()
	scheduler := NewScheduler(testLogger())
	t.Cleanup(scheduler.StopAll)
	sm := NewSubscriptionManager(testLogger(), registry, scheduler, minInterval)

	link := newFakeLink()
	_, err := registry.Register(link, "127.0.0.1", state.Identity{UserID: "u1", Role: "admin"})
	require.NoError(t, err)
	return sm, scheduler, registry, link
}

func TestSubscribeClampsInterval(t *testing.T) {
	sm, _, _, link := newSubsFixture(t, 5*time.Second)

	subID, effective := sm.Subscribe(link.ID(), []string{"activeConnections"}, 2*time.Second)
	assert.NotEmpty(t, subID)
	assert.Equal(t, 5*time.Second, effective, "intervals below the floor are clamped")

	_, effective = sm.Subscribe(link.ID(), nil, 10*time.Second)
	assert.Equal(t, 10*time.Second, effective, "intervals above the floor pass through")
}

func TestSubscriptionDeliversToOwnerOnly(t *testing.T) {
	sm, _, registry, link := newSubsFixture(t, 10*time.Millisecond)

	bystander := newFakeLink()
	_, err := registry.Register(bystander, "2.2.2.2", state.Identity{UserID: "u2", Role: "student"})
	require.NoError(t, err)

	sm.Subscribe(link.ID(), []string{"activeConnections", "uniqueUsers"}, time.Millisecond)

	require.Eventually(t, func() bool {
		for _, ev := range link.events(t) {
			if ev.Event == protocol.EventAnalyticsUpdate {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "owner should receive analytics updates")

	for _, ev := range bystander.events(t) {
		assert.NotEqual(t, protocol.EventAnalyticsUpdate, ev.Event, "non-owners must not receive updates")
	}
}

func TestUnsubscribeStopsFeed(t *testing.T) {
	sm, _, _, link := newSubsFixture(t, 10*time.Millisecond)

	subID, _ := sm.Subscribe(link.ID(), nil, time.Millisecond)
	require.Equal(t, 1, sm.Count())

	assert.True(t, sm.Unsubscribe(subID))
	assert.False(t, sm.Unsubscribe(subID), "second unsubscribe finds nothing")
	assert.Equal(t, 0, sm.Count())

	_, found := sm.Owner(subID)
	assert.False(t, found)
}

func TestCancelAllOnDisconnect(t *testing.T) {
	sm, _, registry, link := newSubsFixture(t, 10*time.Millisecond)

	sm.Subscribe(link.ID(), nil, time.Millisecond)
	sm.Subscribe(link.ID(), []string{"rooms"}, time.Millisecond)
	require.Equal(t, 2, sm.Count())

	// Disconnect order mirrors the server: subscriptions first, then registry.
	cancelled := sm.CancelAll(link.ID())
	registry.Unregister(link.ID())

	assert.Equal(t, 2, cancelled)
	assert.Equal(t, 0, sm.Count(), "a subscription must not outlive its connection")
}

func TestTickSelfCancelsWhenConnectionGone(t *testing.T) {
	sm, _, registry, link := newSubsFixture(t, 5*time.Millisecond)

	sm.Subscribe(link.ID(), nil, time.Millisecond)
	registry.Unregister(link.ID()) // vanished without CancelAll

	require.Eventually(t, func() bool { return sm.Count() == 0 },
		time.Second, 5*time.Millisecond, "feed for a missing connection should stop itself")
}
