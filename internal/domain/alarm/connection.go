package alarm

// ConnectionState is the broker link state owned by the messaging reconciler.
type ConnectionState uint8

const (
	// ConnectionDisconnected means no link and no attempt scheduled yet.
	ConnectionDisconnected ConnectionState = iota
	// ConnectionConnecting means a connection attempt is in progress.
	ConnectionConnecting
	// ConnectionConnected means the link is up and topics are subscribed.
	ConnectionConnected
	// ConnectionBackoff means the reconciler waits before the next attempt.
	ConnectionBackoff
)

// String returns the connection state name.
func (c ConnectionState) String() string {
	switch c {
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	case ConnectionBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}
