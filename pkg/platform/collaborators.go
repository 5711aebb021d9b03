// Package platform declares the hub's outward-facing collaborators. The hub
// consumes these as narrow interfaces; the surrounding platform (user
// service, order service, metrics shipping) owns the real implementations.
package platform

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUserNotFound  = errors.New("user not found in directory")
	ErrOrderNotFound = errors.New("order not found")
)

// UserRecord is the directory's view of a principal.
type UserRecord struct {
	ID          string
	Email       string
	Role        string
	TenantID    string
	Active      bool
	Permissions []string
}

// UserDirectory resolves an authenticated subject to its user record.
type UserDirectory interface {
	Lookup(ctx context.Context, userID string) (*UserRecord, error)
}

// OrderSnapshot is the order service's view of one order.
type OrderSnapshot struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	PlacedBy  string    `json:"placedBy"`
	TenantID  string    `json:"tenantId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OrderDirectory resolves an order reference for live tracking.
type OrderDirectory interface {
	Lookup(ctx context.Context, orderID string) (*OrderSnapshot, error)
}

// EventRecorder ships operational events. Calls are fire-and-forget; the
// hub never blocks on or reacts to recording failures.
type EventRecorder interface {
	RecordEvent(name string, labels map[string]string)
}

// NopRecorder drops every event.
type NopRecorder struct{}

func (NopRecorder) RecordEvent(string, map[string]string) {}
