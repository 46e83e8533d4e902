// Package domain defines the core entities for the streamable MCP server.
package domain

// SessionState tracks where a client session is in its lifecycle.
type SessionState int

// Session lifecycle states. A session is created Uninitialized, becomes
// Active once the initialize handshake succeeds, and is Closed when the
// client terminates it or its transport disconnects.
const (
	SessionUninitialized SessionState = iota
	SessionActive
	SessionClosed
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case SessionUninitialized:
		return "uninitialized"
	case SessionActive:
		return "active"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Notification represents a server-to-client notification before it is
// wrapped in a JSON-RPC envelope.
type Notification struct {
	Method string
	Params map[string]interface{}
}

// NewLogMessage builds a notifications/message payload at the given level.
func NewLogMessage(level, data string) *Notification {
	return &Notification{
		Method: "notifications/message",
		Params: map[string]interface{}{
			"level": level,
			"data":  data,
		},
	}
}
