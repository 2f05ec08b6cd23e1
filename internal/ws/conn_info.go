package ws

import (
	"sync"
	"time"
)

// ConnInfo carries per-connection metadata for event payloads and cleanup.
// Exactly one ConnInfo exists per upgraded connection, so writeMu is the
// single write lock for that connection no matter how many channels or
// topics it is attached to.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time

	writeMu *sync.Mutex
}
