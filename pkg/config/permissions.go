package config

import (
	"fmt"
	"sync"

	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/state"
)

// The registry maps permission names to bits. It is seeded with the built-in
// capabilities; deployments may register extra names via the permissions list
// in the config file, which get the next free bits.
var (
	mu       sync.RWMutex
	registry map[string]state.Permission
	nextBit  uint
)

func init() {
	registry = make(map[string]state.Permission, len(state.BuiltInPerms))
	for name, perm := range state.BuiltInPerms {
		registry[name] = perm
	}
	nextBit = uint(len(state.BuiltInPerms))
}

// RegisterPermission assigns the next free bit to a custom permission name.
// Built-in names are reserved and re-registration is an error.
func RegisterPermission(name string) error {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := state.BuiltInPerms[name]; exists {
		return fmt.Errorf("'%s' is a built-in permission and cannot be redefined", name)
	}
	if _, exists := registry[name]; exists {
		return fmt.Errorf("permission '%s' is already registered", name)
	}
	if nextBit >= 64 {
		return fmt.Errorf("cannot register '%s': the 64-bit permission space is full", name)
	}

	registry[name] = state.Permission(1 << nextBit)
	nextBit++
	return nil
}

// CompilePermissions resolves a list of permission names into one bitmap.
// Unknown names fail the whole compilation; a credential carrying a name the
// server never registered is a configuration error, not a partial grant.
func CompilePermissions(names []string) (state.Permission, error) {
	mu.RLock()
	defer mu.RUnlock()

	var bitmap state.Permission
	for _, name := range names {
		value, ok := registry[name]
		if !ok {
			return 0, fmt.Errorf("permission '%s' not found", name)
		}
		bitmap |= value
	}
	return bitmap, nil
}

// GetAllRegistered returns a copy of the current registry for inspection.
func GetAllRegistered() map[string]state.Permission {
	mu.RLock()
	defer mu.RUnlock()

	out := make(map[string]state.Permission, len(registry))
	for k, v := range registry {
		out[k] = v
	}
	return out
}

// GetFullPermissionsBitmap returns every registered bit set at once.
func GetFullPermissionsBitmap() state.Permission {
	mu.RLock()
	defer mu.RUnlock()

	var bitmap state.Permission
	for _, p := range registry {
		bitmap |= p
	}
	return bitmap
}
