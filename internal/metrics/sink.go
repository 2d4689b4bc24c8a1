package metrics

import "time"

// Sink receives client metrics.
type Sink interface {
	// MessageReceived counts one inbound transport message.
	MessageReceived()

	// TransportError counts one transport error event.
	TransportError()

	// PushReceived counts one server push by type.
	PushReceived(pushType string)

	// StateChanged counts one connection state transition.
	StateChanged(state string)

	// SubscriptionCount reports the current number of registered subscriptions.
	SubscriptionCount(n int)

	// CommandCompleted observes one command round trip.
	CommandCompleted(method string, ok bool, d time.Duration)
}

// Nop discards everything.
type Nop struct{}

func (Nop) MessageReceived()                             {}
func (Nop) TransportError()                              {}
func (Nop) PushReceived(string)                          {}
func (Nop) StateChanged(string)                          {}
func (Nop) SubscriptionCount(int)                        {}
func (Nop) CommandCompleted(string, bool, time.Duration) {}
