package platform

import (
	"context"
	"sync"
)

// StaticDirectory is a map-backed UserDirectory, seeded from config. Used by
// the standalone binary and by tests.
type StaticDirectory struct {
	mu    sync.RWMutex
	users map[string]UserRecord
}

func NewStaticDirectory(records []UserRecord) *StaticDirectory {
	users := make(map[string]UserRecord, len(records))
	for _, r := range records {
		users[r.ID] = r
	}
	return &StaticDirectory{users: users}
}

func (d *StaticDirectory) Lookup(_ context.Context, userID string) (*UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	record, ok := d.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &record, nil
}

func (d *StaticDirectory) Put(record UserRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[record.ID] = record
}

// StaticOrders is a map-backed OrderDirectory for the standalone binary and
// tests.
type StaticOrders struct {
	mu     sync.RWMutex
	orders map[string]OrderSnapshot
}

func NewStaticOrders() *StaticOrders {
	return &StaticOrders{orders: make(map[string]OrderSnapshot)}
}

func (o *StaticOrders) Lookup(_ context.Context, orderID string) (*OrderSnapshot, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	snapshot, ok := o.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &snapshot, nil
}

func (o *StaticOrders) Put(snapshot OrderSnapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.orders[snapshot.ID] = snapshot
}
