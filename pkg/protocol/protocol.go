// Package protocol defines the message envelope and the closed sets of
// operation names, server event names, and error codes shared between the
// hub and its clients.
package protocol

import "encoding/json"

// Client-initiated operations.
const (
	OpJoinRoom             = "join_room"
	OpLeaveRoom            = "leave_room"
	OpTrackOrder           = "track_order"
	OpPing                 = "ping"
	OpTypingStart          = "typing_start"
	OpTypingStop           = "typing_stop"
	OpSendMessage          = "send_message"
	OpSubscribeAnalytics   = "subscribe_analytics"
	OpUnsubscribeAnalytics = "unsubscribe_analytics"
	OpBroadcastAnnounce    = "broadcast_announcement"
)

// Server-initiated events.
const (
	EventConnectionStatus  = "connection_status"
	EventOrderStatusUpdate = "order_status_update"
	EventNotification      = "notification"
	EventRateLimitWarning  = "rate_limit_warning"
	EventAnalyticsUpdate   = "analytics_update"
	EventRealtimeStats     = "realtime_stats"
	EventSystemMaintenance = "system_maintenance"
	EventTyping            = "typing"
	EventMessage           = "message"
	EventAnnouncement      = "announcement"
)

// Machine-readable failure codes.
const (
	CodeAuthFailed        = "auth_failed"
	CodePermissionDenied  = "permission_denied"
	CodeRoomQuotaExceeded = "room_quota_exceeded"
	CodeRateLimitExceeded = "rate_limit_exceeded"
	CodeInvalidInput      = "invalid_input"
	CodeNotFound          = "not_found"
	CodeInternalError     = "internal_error"
)

// Request is a client operation with a correlation id.
type Request struct {
	ID      string          `json:"id,omitempty"`
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response correlates back to a Request by id.
type Response struct {
	ID     string          `json:"id,omitempty"`
	Op     string          `json:"op"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorDetail    `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ServerEvent is an unsolicited push from the hub.
type ServerEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent marshals a server event envelope. Marshal failures fall back to
// a bare envelope; payloads are hub-built types that marshal cleanly.
func NewEvent(name string, payload any) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = nil
	}
	msg, err := json.Marshal(ServerEvent{Event: name, Payload: raw})
	if err != nil {
		return []byte(`{"event":"` + name + `"}`)
	}
	return msg
}
