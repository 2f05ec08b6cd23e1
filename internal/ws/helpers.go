package ws

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"messaging-service/internal/observability"
)

func newConnID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return "c-" + hex.EncodeToString(buf)
}

// newConnInfo seeds the metadata for a freshly upgraded connection. Gorilla
// connections allow a single concurrent writer, so the write lock created
// here travels with the connection into every hub registration.
func newConnInfo(userID int, r *http.Request, requestID, traceID string) ConnInfo {
	return ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(r),
		IP:          observability.IPFromRequest(r),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
		writeMu:     &sync.Mutex{},
	}
}
