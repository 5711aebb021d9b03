package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/segmentio/ksuid"
	"github.com/tidwall/gjson"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/platform"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/protocol"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/state"
)

const maxRoomNameLength = 128

func invalidInput(msg string) *protocol.ErrorDetail {
	return &protocol.ErrorDetail{Code: protocol.CodeInvalidInput, Message: msg}
}

func permissionDenied(msg string) *protocol.ErrorDetail {
	return &protocol.ErrorDetail{Code: protocol.CodePermissionDenied, Message: msg}
}

// canJoin guards identity-scoped rooms. Home rooms belong to exactly one
// identity; support rooms need the support capability; order rooms are
// joined through track_order's own check.
func canJoin(id state.Identity, roomName string) bool {
	switch state.ParseRoomType(roomName) {
	case state.RoomTypeUser:
		return roomName == "user:"+id.UserID
	case state.RoomTypeRole:
		return roomName == "role:"+id.Role
	case state.RoomTypeTenant:
		name, _ := strings.CutPrefix(roomName, "school:")
		name, _ = strings.CutPrefix(name, "tenant:")
		return id.TenantID != "" && name == id.TenantID
	case state.RoomTypeSupport:
		return id.Permissions.Has(state.PermSupport)
	case state.RoomTypeOrder:
		return id.Permissions.Has(state.PermTrackOrders)
	default:
		return true
	}
}

func (r *EventRouter) handleJoinRoom(ctx context.Context, conn state.ConnSnapshot, req *protocol.Request) (any, *protocol.ErrorDetail) {
	roomName := gjson.GetBytes(req.Payload, "room").String()
	if roomName == "" || len(roomName) > maxRoomNameLength {
		return nil, invalidInput("room name must be 1-128 characters")
	}
	if !canJoin(conn.Identity, roomName) {
		return nil, permissionDenied("not allowed to join " + roomName)
	}

	var metadata map[string]string
	if meta := gjson.GetBytes(req.Payload, "metadata"); meta.IsObject() {
		if err := json.Unmarshal([]byte(meta.Raw), &metadata); err != nil {
			return nil, invalidInput("metadata must be a flat string map")
		}
	}

	info, err := r.registry.Join(conn.ID, roomName, metadata)
	if err != nil {
		if errors.Is(err, state.ErrRoomQuotaExceeded) {
			return nil, &protocol.ErrorDetail{
				Code:    protocol.CodeRoomQuotaExceeded,
				Message: "room quota exceeded",
				Meta:    map[string]any{"maxRooms": r.limits.MaxRoomsPerConnection},
			}
		}
		return nil, &protocol.ErrorDetail{Code: protocol.CodeInternalError, Message: "join failed"}
	}
	return map[string]any{"room": info.Name, "memberCount": info.MemberCount}, nil
}

func (r *EventRouter) handleLeaveRoom(ctx context.Context, conn state.ConnSnapshot, req *protocol.Request) (any, *protocol.ErrorDetail) {
	roomName := gjson.GetBytes(req.Payload, "room").String()
	if roomName == "" {
		return nil, invalidInput("room is required")
	}
	for _, home := range conn.Identity.HomeRooms() {
		if roomName == home {
			return nil, invalidInput("assigned rooms cannot be left")
		}
	}
	r.registry.Leave(conn.ID, roomName)
	return map[string]any{}, nil
}

func (r *EventRouter) handleTrackOrder(ctx context.Context, conn state.ConnSnapshot, req *protocol.Request) (any, *protocol.ErrorDetail) {
	orderID := gjson.GetBytes(req.Payload, "orderId").String()
	if orderID == "" {
		return nil, invalidInput("orderId is required")
	}

	order, err := r.orders.Lookup(ctx, orderID)
	if err != nil {
		if errors.Is(err, platform.ErrOrderNotFound) {
			return nil, &protocol.ErrorDetail{Code: protocol.CodeNotFound, Message: "unknown order"}
		}
		// Downstream collaborator failure must not crash the hub.
		r.logger.Error("Order lookup failed", slog.Any("error", err))
		return nil, &protocol.ErrorDetail{Code: protocol.CodeInternalError, Message: "order lookup failed"}
	}

	owns := order.PlacedBy == conn.Identity.UserID
	if !owns && !conn.Identity.Permissions.Has(state.PermTrackOrders) {
		return nil, permissionDenied("not allowed to track this order")
	}

	if _, err := r.registry.Join(conn.ID, "order:"+orderID, nil); err != nil {
		if errors.Is(err, state.ErrRoomQuotaExceeded) {
			return nil, &protocol.ErrorDetail{Code: protocol.CodeRoomQuotaExceeded, Message: "room quota exceeded"}
		}
		return nil, &protocol.ErrorDetail{Code: protocol.CodeInternalError, Message: "join failed"}
	}
	return map[string]any{"order": order, "realtime": true}, nil
}

func (r *EventRouter) handlePing(ctx context.Context, conn state.ConnSnapshot, req *protocol.Request) (any, *protocol.ErrorDetail) {
	return map[string]any{"pong": true, "serverTime": time.Now().UTC()}, nil
}

func (r *EventRouter) handleTypingStart(ctx context.Context, conn state.ConnSnapshot, req *protocol.Request) (any, *protocol.ErrorDetail) {
	return r.fanOutTyping(conn, req, true)
}

func (r *EventRouter) handleTypingStop(ctx context.Context, conn state.ConnSnapshot, req *protocol.Request) (any, *protocol.ErrorDetail) {
	return r.fanOutTyping(conn, req, false)
}

func (r *EventRouter) fanOutTyping(conn state.ConnSnapshot, req *protocol.Request, typing bool) (any, *protocol.ErrorDetail) {
	roomName := gjson.GetBytes(req.Payload, "room").String()
	if roomName == "" {
		return nil, invalidInput("room is required")
	}
	// Only members may signal typing; silently drop otherwise.
	member := false
	for _, name := range conn.Rooms {
		if name == roomName {
			member = true
			break
		}
	}
	if !member {
		return nil, nil
	}
	r.broadcaster.ToRoom(roomName, protocol.NewEvent(protocol.EventTyping, map[string]any{
		"room":   roomName,
		"userId": conn.Identity.UserID,
		"typing": typing,
	}))
	return nil, nil
}

func (r *EventRouter) handleSendMessage(ctx context.Context, conn state.ConnSnapshot, req *protocol.Request) (any, *protocol.ErrorDetail) {
	payload := req.Payload
	to := gjson.GetBytes(payload, "to").String()
	content := gjson.GetBytes(payload, "content").String()
	msgType := gjson.GetBytes(payload, "type").String()

	if to == "" {
		return nil, invalidInput("to is required")
	}
	if content == "" {
		return nil, invalidInput("content is required")
	}
	// The length cap is in characters, not bytes.
	if utf8.RuneCountInString(content) > r.limits.MaxMessageLength {
		return nil, invalidInput("content exceeds maximum length")
	}
	if msgType == "" {
		msgType = "text"
	}

	messageID := "msg_" + ksuid.New().String()
	event := protocol.NewEvent(protocol.EventMessage, map[string]any{
		"messageId": messageID,
		"from":      conn.Identity.UserID,
		"to":        to,
		"content":   content,
		"type":      msgType,
		"timestamp": time.Now().UTC(),
	})

	if userID, ok := strings.CutPrefix(to, "user:"); ok {
		r.broadcaster.ToUser(userID, event)
	} else {
		r.broadcaster.ToRoom(to, event)
	}
	return map[string]any{"messageId": messageID}, nil
}

func (r *EventRouter) handleSubscribeAnalytics(ctx context.Context, conn state.ConnSnapshot, req *protocol.Request) (any, *protocol.ErrorDetail) {
	if !conn.Identity.Permissions.Has(state.PermAnalytics) {
		return nil, permissionDenied("analytics permission required")
	}

	var metrics []string
	if list := gjson.GetBytes(req.Payload, "metrics"); list.IsArray() {
		for _, v := range list.Array() {
			metrics = append(metrics, v.String())
		}
	}
	interval := time.Duration(gjson.GetBytes(req.Payload, "intervalMs").Int()) * time.Millisecond

	subID, effective := r.subscriptions.Subscribe(conn.ID, metrics, interval)
	return map[string]any{"subscriptionId": subID, "intervalMs": effective.Milliseconds()}, nil
}

func (r *EventRouter) handleUnsubscribe(ctx context.Context, conn state.ConnSnapshot, req *protocol.Request) (any, *protocol.ErrorDetail) {
	subID := gjson.GetBytes(req.Payload, "subscriptionId").String()
	if subID == "" {
		return nil, invalidInput("subscriptionId is required")
	}
	owner, ok := r.subscriptions.Owner(subID)
	if !ok || owner != conn.ID {
		return nil, &protocol.ErrorDetail{Code: protocol.CodeNotFound, Message: "unknown subscription"}
	}
	r.subscriptions.Unsubscribe(subID)
	return nil, nil
}

func (r *EventRouter) handleBroadcastAnnouncement(ctx context.Context, conn state.ConnSnapshot, req *protocol.Request) (any, *protocol.ErrorDetail) {
	if !conn.Identity.Permissions.Has(state.PermBroadcast) {
		return nil, permissionDenied("broadcast permission required")
	}

	message := gjson.GetBytes(req.Payload, "message").String()
	if message == "" {
		return nil, invalidInput("message is required")
	}
	if utf8.RuneCountInString(message) > r.limits.MaxMessageLength {
		return nil, invalidInput("message exceeds maximum length")
	}
	priority := gjson.GetBytes(req.Payload, "priority").String()
	if priority == "" {
		priority = "normal"
	}

	broadcastID := "bct_" + ksuid.New().String()
	event := protocol.NewEvent(protocol.EventAnnouncement, map[string]any{
		"broadcastId": broadcastID,
		"message":     message,
		"priority":    priority,
		"from":        conn.Identity.UserID,
		"timestamp":   time.Now().UTC(),
	})

	recipients := 0
	if targets := gjson.GetBytes(req.Payload, "targetRooms"); targets.IsArray() && len(targets.Array()) > 0 {
		for _, target := range targets.Array() {
			recipients += r.broadcaster.ToRoom(target.String(), event)
		}
	} else {
		recipients = r.broadcaster.ToAll(event)
	}
	return map[string]any{"broadcastId": broadcastID, "recipientCount": recipients}, nil
}
