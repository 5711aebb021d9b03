package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/protocol"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/state"
)

// Subscription is one connection's periodic analytics feed.
type Subscription struct {
	ID       string
	ConnID   uuid.UUID
	Metrics  []string
	Interval time.Duration
	cancel   CancelFunc
}

// SubscriptionManager owns analytics subscriptions. A subscription never
// outlives its connection: CancelAll runs on every disconnect.
type SubscriptionManager struct {
	registry  state.Manager
	scheduler *Scheduler
	logger    *slog.Logger

	// MinInterval floors requested intervals to bound load.
	minInterval time.Duration

	mu     sync.Mutex
	subs   map[string]*Subscription
	byConn map[uuid.UUID]map[string]struct{}
}

func NewSubscriptionManager(logger *slog.Logger, registry state.Manager, scheduler *Scheduler, minInterval time.Duration) *SubscriptionManager {
	return &SubscriptionManager{
		registry:    registry,
		scheduler:   scheduler,
		logger:      logger.With(slog.String("component", "subscriptions")),
		minInterval: minInterval,
		subs:        make(map[string]*Subscription),
		byConn:      make(map[uuid.UUID]map[string]struct{}),
	}
}

// Subscribe starts a periodic push of the requested metrics to connID.
// Intervals below the floor are clamped, and the effective interval is
// returned alongside the subscription id.
func (sm *SubscriptionManager) Subscribe(connID uuid.UUID, metrics []string, interval time.Duration) (string, time.Duration) {
	if interval < sm.minInterval {
		interval = sm.minInterval
	}

	sub := &Subscription{
		ID:       "sub_" + ksuid.New().String(),
		ConnID:   connID,
		Metrics:  append([]string(nil), metrics...),
		Interval: interval,
	}

	sub.cancel = sm.scheduler.Schedule("subscription:"+sub.ID, interval, func(ctx context.Context) error {
		return sm.tick(sub)
	})

	sm.mu.Lock()
	sm.subs[sub.ID] = sub
	conns, ok := sm.byConn[connID]
	if !ok {
		conns = make(map[string]struct{})
		sm.byConn[connID] = conns
	}
	conns[sub.ID] = struct{}{}
	sm.mu.Unlock()

	sm.logger.Debug("Analytics subscription started",
		slog.String("subID", sub.ID),
		slog.String("connID", connID.String()),
		slog.Duration("interval", interval),
	)
	return sub.ID, interval
}

func (sm *SubscriptionManager) tick(sub *Subscription) error {
	link, ok := sm.registry.GetLink(sub.ConnID)
	if !ok {
		// Owning connection vanished without CancelAll; stop feeding a ghost.
		sm.Unsubscribe(sub.ID)
		return nil
	}
	snapshot := collectStats(sm.registry, sm.Count())
	link.Send(protocol.NewEvent(protocol.EventAnalyticsUpdate, map[string]any{
		"subscriptionId": sub.ID,
		"metrics":        snapshot.filtered(sub.Metrics),
	}))
	return nil
}

// Unsubscribe cancels the feed. Returns false for unknown ids.
func (sm *SubscriptionManager) Unsubscribe(subID string) bool {
	sm.mu.Lock()
	sub, ok := sm.subs[subID]
	if ok {
		delete(sm.subs, subID)
		if conns, found := sm.byConn[sub.ConnID]; found {
			delete(conns, subID)
			if len(conns) == 0 {
				delete(sm.byConn, sub.ConnID)
			}
		}
	}
	sm.mu.Unlock()

	if !ok {
		return false
	}
	sub.cancel()
	sm.logger.Debug("Analytics subscription cancelled", slog.String("subID", subID))
	return true
}

// Owner reports which connection owns subID.
func (sm *SubscriptionManager) Owner(subID string) (uuid.UUID, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sub, ok := sm.subs[subID]
	if !ok {
		return uuid.UUID{}, false
	}
	return sub.ConnID, true
}

// CancelAll removes every subscription owned by connID.
func (sm *SubscriptionManager) CancelAll(connID uuid.UUID) int {
	sm.mu.Lock()
	ids := make([]string, 0, len(sm.byConn[connID]))
	for id := range sm.byConn[connID] {
		ids = append(ids, id)
	}
	sm.mu.Unlock()

	for _, id := range ids {
		sm.Unsubscribe(id)
	}
	return len(ids)
}

func (sm *SubscriptionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.subs)
}
