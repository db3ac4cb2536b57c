package realtime

type State int32

const (
	StateUnsubscribed State = iota
	StateSubscribing
	StateSubscribed
	StateDisconnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateSubscribing:
		return "subscribing"
	case StateSubscribed:
		return "subscribed"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
