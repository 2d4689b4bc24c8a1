package subscription

import (
	"errors"
	"fmt"
)

var (
	// ErrDisposed is returned by operations on a disposed Subscription.
	ErrDisposed = errors.New("subscription disposed")

	// ErrAlreadySubscribed matches AlreadySubscribedError.
	ErrAlreadySubscribed = errors.New("already subscribed")

	// ErrAlreadyUnsubscribed is returned by Repository.Remove when the channel has no entry.
	ErrAlreadyUnsubscribed = errors.New("already unsubscribed")

	// ErrEmptyChannel is returned when the token provider yields no channel.
	ErrEmptyChannel = errors.New("token provider returned an empty channel")

	// ErrEmptyToken is returned when the token provider yields no token.
	ErrEmptyToken = errors.New("token provider returned an empty token")

	// ErrTokenRetrievalFailed wraps token provider failures.
	ErrTokenRetrievalFailed = errors.New("token retrieval failed")
)

// AlreadySubscribedError is returned when subscribing to a channel that is already synced.
type AlreadySubscribedError struct {
	Channel string
}

func (e *AlreadySubscribedError) Error() string {
	return fmt.Sprintf("channel %s: already subscribed", e.Channel)
}

func (e *AlreadySubscribedError) Unwrap() error {
	return ErrAlreadySubscribed
}

// ChannelChangedError is returned when a token provider names a different channel than the
// one the Subscription is already bound to.
type ChannelChangedError struct {
	Bound     string
	Requested string
}

func (e *ChannelChangedError) Error() string {
	return fmt.Sprintf("subscription bound to channel %s cannot switch to %s", e.Bound, e.Requested)
}
