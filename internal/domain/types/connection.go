package types

import "time"

// ConnectionStatus summarises the health of a subscription manager.
type ConnectionStatus struct {
	IsConnected     bool      `json:"isConnected"`
	LastConnectedAt time.Time `json:"lastConnectedAt"`
	RetryCount      int       `json:"retryCount"`
	RecentErrors    []string  `json:"recentErrors"`
}

// ListenerState is the lifecycle phase of one managed listener.
type ListenerState int

const (
	StateConnecting ListenerState = iota
	StateConnected
	StateError
	StateReconnecting
	StateDestroyed
)

func (s ListenerState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	case StateReconnecting:
		return "reconnecting"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}
