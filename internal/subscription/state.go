package subscription

import "fmt"

// State is the lifecycle state of a Subscription.
type State int

const (
	StateUnsynced State = iota
	StateSubscribing
	StateSynced
	StateUnsubscribed
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnsynced:
		return "unsynced"
	case StateSubscribing:
		return "subscribing"
	case StateSynced:
		return "synced"
	case StateUnsubscribed:
		return "unsubscribed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
