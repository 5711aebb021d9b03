package hub

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/config"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/protocol"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/state"
)

var errIdleReaped = errors.New("connection reaped after idle timeout")

// AdminStatsRoom receives the periodic realtime_stats push.
const AdminStatsRoom = "role:admin"

// Janitor reclaims resources that normal request flow leaves behind: idle
// connections, drifted empty rooms, and expired rate windows. Each sweep is
// an independent scheduled task.
type Janitor struct {
	registry      state.Manager
	limiter       *RateLimiter
	subscriptions *SubscriptionManager
	broadcaster   *Broadcaster
	scheduler     *Scheduler
	cfg           config.JanitorConfig
	messageWindow time.Duration
	logger        *slog.Logger
}

func NewJanitor(
	logger *slog.Logger,
	registry state.Manager,
	limiter *RateLimiter,
	subscriptions *SubscriptionManager,
	broadcaster *Broadcaster,
	scheduler *Scheduler,
	cfg config.JanitorConfig,
	messageWindow time.Duration,
) *Janitor {
	return &Janitor{
		registry:      registry,
		limiter:       limiter,
		subscriptions: subscriptions,
		broadcaster:   broadcaster,
		scheduler:     scheduler,
		cfg:           cfg,
		messageWindow: messageWindow,
		logger:        logger.With(slog.String("component", "janitor")),
	}
}

// Start registers the sweeps on the scheduler. Cancellation is owned by the
// scheduler's StopAll during shutdown.
func (j *Janitor) Start() {
	j.scheduler.Schedule("janitor:idle_connections", j.cfg.IdleSweepInterval, j.reapIdleConnections)
	j.scheduler.Schedule("janitor:empty_rooms", j.cfg.RoomSweepInterval, j.sweepEmptyRooms)
	j.scheduler.Schedule("janitor:rate_windows", j.cfg.WindowSweepInterval, j.sweepRateWindows)
	j.scheduler.Schedule("janitor:admin_stats", j.cfg.StatsInterval, j.pushAdminStats)
}

func (j *Janitor) reapIdleConnections(ctx context.Context) error {
	cutoff := time.Now().Add(-j.cfg.IdleTimeout)
	idle := j.registry.IdleConnections(cutoff)
	for _, link := range idle {
		j.logger.Info("Reaping idle connection", slog.String("connID", link.ID().String()))
		// Close runs the transport's onClose hook, which performs the
		// full unregister cleanup.
		link.Close(errIdleReaped)
	}
	return nil
}

func (j *Janitor) sweepEmptyRooms(ctx context.Context) error {
	if removed := j.registry.SweepEmptyRooms(); removed > 0 {
		j.logger.Warn("Empty-room sweep found drift", slog.Int("removed", removed))
	}
	return nil
}

func (j *Janitor) sweepRateWindows(ctx context.Context) error {
	j.limiter.SweepExpired(j.messageWindow)
	return nil
}

func (j *Janitor) pushAdminStats(ctx context.Context) error {
	snapshot := collectStats(j.registry, j.subscriptions.Count())
	j.broadcaster.ToRoom(AdminStatsRoom, protocol.NewEvent(protocol.EventRealtimeStats, snapshot))
	return nil
}
