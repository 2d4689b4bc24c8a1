package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/rickgao/wire/internal/protocol"
	"github.com/rickgao/wire/internal/subscription"
)

var (
	_ subscription.Workflow = (*Controller)(nil)
	_ subscription.Notifier = (*Controller)(nil)
)

// Subscribe connects if needed and sends SUBSCRIBE for sub. In direct mode a channel the
// server already holds is adopted without a round trip.
func (c *Controller) Subscribe(ctx context.Context, sub *subscription.Subscription) error {
	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	tok, err := sub.RetrieveToken(ctx)
	if err != nil {
		return err
	}
	channel := sub.Channel()

	var (
		promoted   bool
		promoteErr error
		synced     bool
		already    bool
		recovering bool
	)
	if err := c.call(ctx, func() {
		// Recovery during the handshake may already have confirmed sub.
		if registered, ok := c.subs.Get(channel); ok && registered == sub && sub.IsSynced() {
			synced = true
			return
		}
		if c.direct.Load() && c.subs.ServerHasSubscription(sub) {
			promoted = true
			if promoteErr = c.subs.PromoteSubscriptionHandle(sub); promoteErr == nil {
				c.directChannel = channel
			}
			return
		}
		already = c.subs.IsAlreadySubscribed(channel)
		recovering = c.subs.IsRecovering(sub)
	}); err != nil {
		return err
	}

	if synced {
		c.logger.Debug("subscription recovered by handshake", "channel", channel)
		return nil
	}
	if promoted {
		if promoteErr != nil {
			return fmt.Errorf("adopt %s: %w", channel, promoteErr)
		}
		c.logger.Info("adopted server subscription", "channel", channel)
		return nil
	}
	if already {
		return &subscription.AlreadySubscribedError{Channel: channel}
	}

	req := &protocol.SubscribeRequest{
		Channel: channel,
		Token:   tok,
		Recover: recovering,
	}
	if recovering {
		req.Offset = sub.Offset()
		req.Epoch = sub.Epoch()
	}

	reply, err := c.sendCommand(ctx, protocol.MethodSubscribe, req)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	var completeErr error
	if err := c.call(ctx, func() {
		if reply.Result != nil && reply.Result.Epoch != "" {
			sub.SetEpoch(reply.Result.Epoch)
		}
		completeErr = c.subs.OnSubscriptionComplete(sub, reply)
	}); err != nil {
		return err
	}
	if completeErr != nil {
		return fmt.Errorf("subscribe %s: %w", channel, completeErr)
	}

	c.logger.Debug("subscribed", "channel", channel, "offset", sub.Offset(), "recovered", recovering)
	return nil
}

// Unsubscribe sends UNSUBSCRIBE when sub is confirmed on the live connection, then removes
// it. The local registration is dropped even if the relay rejects the command.
func (c *Controller) Unsubscribe(ctx context.Context, sub *subscription.Subscription) error {
	var send bool
	err := c.call(ctx, func() {
		registered, ok := c.subs.Get(sub.Channel())
		send = c.current == StateConnected && ok && registered == sub && sub.IsSynced()
	})
	if errors.Is(err, ErrNotStarted) {
		c.remove(sub)
		return nil
	}
	if err != nil {
		return err
	}

	var sendErr error
	if send {
		reply, err := c.sendCommand(ctx, protocol.MethodUnsubscribe, &protocol.UnsubscribeRequest{Channel: sub.Channel()})
		if err == nil {
			err = reply.Err()
		}
		if err != nil {
			sendErr = fmt.Errorf("unsubscribe %s: %w", sub.Channel(), err)
		}
	}

	if err := c.call(ctx, func() { c.remove(sub) }); err != nil {
		if !errors.Is(err, ErrNotStarted) {
			return err
		}
		c.remove(sub)
	}
	return sendErr
}

// Detach removes sub without any network traffic.
func (c *Controller) Detach(sub *subscription.Subscription) {
	if err := c.call(context.Background(), func() { c.remove(sub) }); err != nil {
		c.remove(sub)
	}
}

func (c *Controller) remove(sub *subscription.Subscription) {
	channel := sub.Channel()
	if err := c.subs.Remove(sub); err != nil {
		if errors.Is(err, subscription.ErrAlreadyUnsubscribed) {
			c.logger.Debug("subscription was not registered", "channel", channel)
		} else {
			c.logger.Warn("remove subscription", "channel", channel, "error", err)
		}
		return
	}
	if channel != "" && channel == c.directChannel {
		c.directChannel = ""
	}
}
