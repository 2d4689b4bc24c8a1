// Package subscription tracks per-channel subscriptions to the relay.
//
// A Subscription is a small state machine bound to one channel:
//
//	Unsynced -> Subscribing -> Synced <-> Unsynced -> Unsubscribed
//
// with Error reachable from any state. It owns the channel's stream offset and epoch,
// which the relay uses to replay publications missed while the connection was down.
//
// The Repository maps channel names to Subscriptions and to Handles, placeholders for
// subscriptions the server reports that no local Subscription has claimed yet. A channel
// is never present in both maps.
//
// Network work is delegated to a Workflow, implemented by connection.Controller.
package subscription
