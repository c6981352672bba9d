package feed

// ConnectionStatus represents the state of the upstream feed session.
type ConnectionStatus int32

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusLost
	StatusReconnecting
	StatusGaveUp
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusLost:
		return "lost"
	case StatusReconnecting:
		return "reconnecting"
	case StatusGaveUp:
		return "gave_up"
	default:
		return "unknown"
	}
}

var allStatuses = []string{
	StatusDisconnected.String(),
	StatusConnecting.String(),
	StatusConnected.String(),
	StatusLost.String(),
	StatusReconnecting.String(),
	StatusGaveUp.String(),
}
