package subscription

import "context"

// Workflow performs the network side of subscribing and unsubscribing.
type Workflow interface {
	// Subscribe connects if needed and sends SUBSCRIBE for sub.
	Subscribe(ctx context.Context, sub *Subscription) error

	// Unsubscribe sends UNSUBSCRIBE when sub is subscribed and removes it from the repository.
	Unsubscribe(ctx context.Context, sub *Subscription) error

	// Detach removes sub from the repository without any network traffic.
	Detach(sub *Subscription)
}

// Notifier runs handler invocations in submission order on a goroutine of its own. When
// the Workflow given to New implements it, every handler of the Subscription is delivered
// through Notify; otherwise handlers run on the caller's goroutine.
type Notifier interface {
	Notify(fn func())
}

// Subscribable is a channel that can be subscribed and unsubscribed.
type Subscribable interface {
	Subscribe(ctx context.Context) error
	Unsubscribe(ctx context.Context) error
}

// Disposable releases a channel.
type Disposable interface {
	Dispose(ctx context.Context) error
	Detach()
}

// Observable exposes channel notifications.
type Observable interface {
	OnMessage(fn func(text string))
	OnBinaryMessage(fn func(data []byte))
	OnKick(fn func())
	OnStateChange(fn func(State))
	OnError(fn func(reason string))
}

// Channel is the handle returned to applications.
type Channel interface {
	Subscribable
	Disposable
	Observable

	Channel() string
	State() State
}

var _ Channel = (*Subscription)(nil)

// Handle records a subscription the server reported that no local Subscription has claimed.
type Handle struct {
	Channel string
}
