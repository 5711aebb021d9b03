package state

// a bitmap representing a set of capabilities
type Permission uint64

const (
	PermCanRead      Permission = 1 << iota
	PermCanWrite                // 2
	PermTrackOrders             // 4
	PermAnalytics               // 8
	PermBroadcast               // 16
	PermSupport                 // 32
)

var BuiltInPerms = map[string]Permission{
	"read":         PermCanRead,
	"write":        PermCanWrite,
	"track_orders": PermTrackOrders,
	"analytics":    PermAnalytics,
	"broadcast":    PermBroadcast,
	"support":      PermSupport,
}

func (p Permission) Has(flag Permission) bool {
	return p&flag == flag
}
