package ws

import (
	"time"

	"realtime-service/internal/observability"
)

// ConnInfo is the handshake metadata captured for one connection, used for
// lifecycle events and audit correlation.
type ConnInfo struct {
	ConnID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func (i ConnInfo) eventPayload(userID int, reason string) observability.ConnEventPayload {
	return observability.ConnEventPayload{
		ConnID:     i.ConnID,
		UserID:     userID,
		DeviceID:   i.DeviceID,
		IP:         i.IP,
		DurationMS: time.Since(i.ConnectedAt).Milliseconds(),
		Reason:     reason,
	}
}
