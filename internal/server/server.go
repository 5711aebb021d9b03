package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/thinkwithmahesh/Hasivu-sub010/internal/hub"
	"github.com/thinkwithmahesh/Hasivu-sub010/internal/router"
	"github.com/thinkwithmahesh/Hasivu-sub010/internal/server/middleware"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/config"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/platform"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/protocol"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/state"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/state/statemanager"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/transport"
)

// Phase is the hub-wide lifecycle state.
type Phase int32

const (
	PhaseUninitialized Phase = iota
	PhaseInitializing
	PhaseRunning
	PhaseDraining
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseInitializing:
		return "initializing"
	case PhaseRunning:
		return "running"
	case PhaseDraining:
		return "draining"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var errServerDraining = errors.New("server draining")

// App is the lifecycle coordinator: it wires the registries, installs the
// authenticator as admission middleware, starts the background tasks, and
// owns the drain sequence on shutdown.
type App struct {
	logger *slog.Logger
	config *config.Config

	registry      state.Manager
	limiter       *hub.RateLimiter
	broadcaster   *hub.Broadcaster
	subscriptions *hub.SubscriptionManager
	janitor       *hub.Janitor
	scheduler     *hub.Scheduler
	eventRouter   *router.EventRouter

	directory platform.UserDirectory
	orders    platform.OrderDirectory
	recorder  platform.EventRecorder
	metrics   http.Handler

	http  *http.Server
	wg    sync.WaitGroup
	ctx   context.Context
	phase atomic.Int32
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, directory platform.UserDirectory, orders platform.OrderDirectory, recorder platform.EventRecorder, metricsHandler http.Handler) *App {
	return &App{
		logger:    logger,
		config:    cfg,
		directory: directory,
		orders:    orders,
		recorder:  recorder,
		metrics:   metricsHandler,
		ctx:       rootCtx,
	}
}

func (a *App) Phase() Phase {
	return Phase(a.phase.Load())
}

// Initialize wires the components and the HTTP surface. Not idempotent:
// calling it again once past uninitialized is a logged no-op.
func (a *App) Initialize() error {
	if !a.phase.CompareAndSwap(int32(PhaseUninitialized), int32(PhaseInitializing)) {
		a.logger.Warn("Initialize called again; ignoring", slog.String("phase", a.Phase().String()))
		return nil
	}

	a.registry = statemanager.NewInMemoryManager(a.logger, statemanager.Limits{
		MaxRoomsPerConnection: a.config.Limits.MaxRoomsPerConnection,
	})
	a.scheduler = hub.NewScheduler(a.logger)
	a.limiter = hub.NewRateLimiter(a.logger)
	a.broadcaster = hub.NewBroadcaster(a.logger, a.registry, a.recorder)
	a.subscriptions = hub.NewSubscriptionManager(a.logger, a.registry, a.scheduler, a.config.Analytics.MinInterval)
	a.janitor = hub.NewJanitor(a.logger, a.registry, a.limiter, a.subscriptions, a.broadcaster, a.scheduler, a.config.Janitor, a.config.Limits.MessageWindow)
	a.eventRouter = router.NewEventRouter(a.logger, a.registry, a.limiter, a.broadcaster, a.subscriptions, a.orders, a.recorder, a.config.Limits)

	mux := http.NewServeMux()
	upgradeHandler := http.HandlerFunc(a.upgradeHandler)
	connCounter := middleware.UserConnectionCounter(a.registry.GetUserConnectionCount)
	// Create a cycler function that closes over the registry and logger.
	connCycler := func(userID string) {
		oldest, found := a.registry.FindOldestUserConnection(userID)
		if found {
			a.logger.Info("Cycling connection: closing oldest", slog.String("userID", userID), slog.String("connID", oldest.ID().String()))
			oldest.Close(errors.New("connection cycled by new connection"))
		}
	}

	mux.Handle("/ws",
		middleware.Chain(upgradeHandler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(a.logger),
			middleware.NewAuthMiddleware(a.logger, a.config.Server.Auth.JWTSecret, a.directory, config.CompilePermissions),
			middleware.NewConnectionLimiter(
				a.logger,
				connCounter,
				connCycler,
				a.config.Server.ConnectionLimit,
			),
		),
	)
	if a.metrics != nil {
		mux.Handle("/metrics", a.metrics)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(a.Phase().String()))
	})

	a.http = &http.Server{Addr: a.config.Server.Address, Handler: mux, BaseContext: func(l net.Listener) context.Context {
		return a.ctx
	}}

	a.logger.Info("Hub initialized")
	return nil
}

// Run starts the background tasks and serves until the root context is
// cancelled. New connections are only admitted while running.
func (a *App) Run() error {
	if !a.phase.CompareAndSwap(int32(PhaseInitializing), int32(PhaseRunning)) {
		return errors.New("hub must be initialized exactly once before Run")
	}

	a.janitor.Start()

	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	if a.Phase() != PhaseRunning {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	reqMeta, ok := middleware.ReqMetadataFrom(r.Context())
	if !ok || reqMeta.Identity.UserID == "" {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.Identity.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	// Handlers are bound at construction: a force-close landing between
	// Register and Run must still reach the disconnect cleanup.
	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig{
			ReadTimeout:  a.config.Transport.ReadTimeout,
			PingInterval: a.config.Transport.PingInterval,
		},
		a.eventRouter.HandleMessage,
		func(id uuid.UUID, err error) {
			connLogger.Info("Deregistering connection due to closure", slog.String("connID", id.String()))
			a.disconnect(id)
		},
		a.logger,
	)

	snapshot, err := a.registry.Register(conn, reqMeta.IP, reqMeta.Identity)
	if err != nil {
		connLogger.Error("Failed to register connection state", slog.Any("error", err))
		conn.Close(err)
		return
	}

	a.recorder.RecordEvent("connection_opened", nil)
	conn.Send(protocol.NewEvent(protocol.EventConnectionStatus, map[string]any{
		"status":       "connected",
		"connectionId": snapshot.ID.String(),
		"rooms":        snapshot.Rooms,
	}))

	connLogger.Info("User connection fully established", slog.String("connID", snapshot.ID.String()))
	conn.Run()
	<-conn.Done()
}

// PublishOrderStatus fans an order change out to its tracking room and
// notifies the owner's devices. The surrounding platform calls this when an
// order moves through the kitchen pipeline.
func (a *App) PublishOrderStatus(order platform.OrderSnapshot) int {
	if a.Phase() != PhaseRunning {
		return 0
	}
	delivered := a.broadcaster.ToRoom("order:"+order.ID, protocol.NewEvent(protocol.EventOrderStatusUpdate, order))
	delivered += a.broadcaster.ToUser(order.PlacedBy, protocol.NewEvent(protocol.EventNotification, map[string]any{
		"kind":    "order_update",
		"orderId": order.ID,
		"status":  order.Status,
	}))
	a.recorder.RecordEvent("order_status_published", nil)
	return delivered
}

// disconnect runs the full cleanup for one connection, regardless of which
// trigger (client close, idle reaper, shutdown) got here first.
func (a *App) disconnect(connID uuid.UUID) {
	a.subscriptions.CancelAll(connID)
	a.limiter.Forget(connID)
	if a.registry.Unregister(connID) {
		a.recorder.RecordEvent("connection_closed", nil)
	}
}

// Shutdown runs the drain sequence: maintenance notice, bounded grace
// period, forced close of every connection, background task cancellation.
func (a *App) Shutdown() error {
	if !a.phase.CompareAndSwap(int32(PhaseRunning), int32(PhaseDraining)) {
		return nil
	}
	a.logger.Info("Shutting down server...")

	notified := a.broadcaster.ToAll(protocol.NewEvent(protocol.EventSystemMaintenance, map[string]any{
		"message":      "server is shutting down for maintenance",
		"disconnectIn": a.config.Server.ShutdownGrace.Milliseconds(),
	}))
	if notified > 0 {
		a.logger.Info("Maintenance notice broadcast", slog.Int("recipients", notified))
		time.Sleep(a.config.Server.ShutdownGrace)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP shutdown failed", slog.Any("error", err))
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, link := range a.registry.AllLinks() {
		link.Close(errServerDraining)
	}

	a.scheduler.StopAll()

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.phase.Store(int32(PhaseClosed))
	a.logger.Info("Server shut down gracefully.")
	return nil
}
