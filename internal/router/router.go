package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/thinkwithmahesh/Hasivu-sub010/internal/hub"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/config"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/platform"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/protocol"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/state"
)

// handlerFunc runs one client operation and returns either a result payload
// or a structured failure. It never terminates the connection.
type handlerFunc func(ctx context.Context, conn state.ConnSnapshot, req *protocol.Request) (any, *protocol.ErrorDetail)

type tableEntry struct {
	handle handlerFunc
	// rateLimited ops consume the connection's message window before
	// touching the registries.
	rateLimited bool
	// fireAndForget ops produce no response envelope on success.
	fireAndForget bool
}

// EventRouter dispatches client requests through a closed operation table,
// so an unknown op is a structured failure rather than a dynamic miss.
type EventRouter struct {
	logger        *slog.Logger
	registry      state.Manager
	limiter       *hub.RateLimiter
	broadcaster   *hub.Broadcaster
	subscriptions *hub.SubscriptionManager
	orders        platform.OrderDirectory
	recorder      platform.EventRecorder
	limits        config.LimitsConfig

	table map[string]tableEntry
}

func NewEventRouter(
	logger *slog.Logger,
	registry state.Manager,
	limiter *hub.RateLimiter,
	broadcaster *hub.Broadcaster,
	subscriptions *hub.SubscriptionManager,
	orders platform.OrderDirectory,
	recorder platform.EventRecorder,
	limits config.LimitsConfig,
) *EventRouter {
	r := &EventRouter{
		logger:        logger.With(slog.String("component", "event_router")),
		registry:      registry,
		limiter:       limiter,
		broadcaster:   broadcaster,
		subscriptions: subscriptions,
		orders:        orders,
		recorder:      recorder,
		limits:        limits,
	}
	r.table = map[string]tableEntry{
		protocol.OpJoinRoom:             {handle: r.handleJoinRoom, rateLimited: true},
		protocol.OpLeaveRoom:            {handle: r.handleLeaveRoom, rateLimited: true},
		protocol.OpTrackOrder:           {handle: r.handleTrackOrder, rateLimited: true},
		protocol.OpPing:                 {handle: r.handlePing},
		protocol.OpTypingStart:          {handle: r.handleTypingStart, rateLimited: true, fireAndForget: true},
		protocol.OpTypingStop:           {handle: r.handleTypingStop, rateLimited: true, fireAndForget: true},
		protocol.OpSendMessage:          {handle: r.handleSendMessage, rateLimited: true},
		protocol.OpSubscribeAnalytics:   {handle: r.handleSubscribeAnalytics, rateLimited: true},
		protocol.OpUnsubscribeAnalytics: {handle: r.handleUnsubscribe, fireAndForget: true},
		protocol.OpBroadcastAnnounce:    {handle: r.handleBroadcastAnnouncement, rateLimited: true},
	}
	return r
}

// HandleMessage is the transport's inbound callback.
func (r *EventRouter) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	var req protocol.Request
	if err := json.Unmarshal(msg, &req); err != nil {
		r.logger.Warn("Failed to unmarshal client message", slog.String("connID", connID.String()), slog.Any("error", err))
		r.respondError(connID, &req, &protocol.ErrorDetail{
			Code:    protocol.CodeInvalidInput,
			Message: "malformed request envelope",
		})
		return
	}

	conn, ok := r.registry.GetConnection(connID)
	if !ok {
		// The connection raced its own disconnect; nothing to answer.
		r.logger.Debug("Dropping request from unregistered connection", slog.String("connID", connID.String()))
		return
	}

	entry, ok := r.table[req.Op]
	if !ok {
		r.logger.Warn("Received unknown op", slog.String("op", req.Op), slog.String("connID", connID.String()))
		r.respondError(connID, &req, &protocol.ErrorDetail{
			Code:    protocol.CodeInvalidInput,
			Message: "unknown operation",
		})
		return
	}

	if entry.rateLimited {
		allowed, resetAt := r.limiter.Allow(connID, r.limits.MessageWindow, r.limits.MessagesPerWindow)
		if !allowed {
			r.warnRateLimited(connID, resetAt)
			r.respondError(connID, &req, &protocol.ErrorDetail{
				Code:    protocol.CodeRateLimitExceeded,
				Message: "rate limit exceeded",
				Meta: map[string]any{
					"limit":   r.limits.MessagesPerWindow,
					"resetAt": resetAt,
				},
			})
			return
		}
	}

	result, opErr := r.dispatch(ctx, entry, conn, &req)
	if opErr != nil {
		r.logger.Warn("Operation failed",
			slog.String("op", req.Op),
			slog.String("connID", connID.String()),
			slog.String("code", opErr.Code),
			slog.String("reason", opErr.Message),
		)
		r.respondError(connID, &req, opErr)
		return
	}

	r.registry.Touch(connID)
	r.recorder.RecordEvent("op_handled", map[string]string{"op": req.Op})

	if entry.fireAndForget {
		return
	}
	r.respond(connID, &req, result)
}

// dispatch isolates handler panics so a bad request can never take down the
// hub process.
func (r *EventRouter) dispatch(ctx context.Context, entry tableEntry, conn state.ConnSnapshot, req *protocol.Request) (result any, opErr *protocol.ErrorDetail) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Handler panicked", slog.String("op", req.Op), slog.Any("panic", rec))
			result = nil
			opErr = &protocol.ErrorDetail{Code: protocol.CodeInternalError, Message: "internal error"}
		}
	}()
	return entry.handle(ctx, conn, req)
}

func (r *EventRouter) respond(connID uuid.UUID, req *protocol.Request, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		r.logger.Error("Failed to marshal result", slog.String("op", req.Op), slog.Any("error", err))
		r.respondError(connID, req, &protocol.ErrorDetail{Code: protocol.CodeInternalError, Message: "internal error"})
		return
	}
	r.send(connID, protocol.Response{ID: req.ID, Op: req.Op, OK: true, Result: raw})
}

func (r *EventRouter) respondError(connID uuid.UUID, req *protocol.Request, detail *protocol.ErrorDetail) {
	r.send(connID, protocol.Response{ID: req.ID, Op: req.Op, OK: false, Error: detail})
}

func (r *EventRouter) send(connID uuid.UUID, resp protocol.Response) {
	link, ok := r.registry.GetLink(connID)
	if !ok {
		return
	}
	msg, err := json.Marshal(resp)
	if err != nil {
		r.logger.Error("Failed to marshal response envelope", slog.Any("error", err))
		return
	}
	link.Send(msg)
}

func (r *EventRouter) warnRateLimited(connID uuid.UUID, resetAt time.Time) {
	r.recorder.RecordEvent("rate_limited", nil)
	if link, ok := r.registry.GetLink(connID); ok {
		link.Send(protocol.NewEvent(protocol.EventRateLimitWarning, map[string]any{
			"limit":    r.limits.MessagesPerWindow,
			"windowMs": r.limits.MessageWindow.Milliseconds(),
			"resetAt":  resetAt,
		}))
	}
}
