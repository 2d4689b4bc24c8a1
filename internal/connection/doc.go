// Package connection maintains one duplex connection to the relay.
//
// The Controller owns the connection state machine:
//
//	Disconnected -> Connecting -> Connected -> Disconnecting -> Disconnected
//
// Every transport callback and every state mutation runs on a single dispatch goroutine.
// Blocking work (the CONNECT handshake, command round trips, the heartbeat and the reconnect
// delay) runs on separate goroutines that post their results back to the dispatch goroutine.
// Consumer notifications (state changes, publications, kicks, errors) are queued in order to
// an event goroutine, so handlers may call back into the Controller.
//
// Commands are correlated with replies by the Correlator. When the transport closes, every
// pending command fails with a CommandInterruptedError carrying the close code, and the
// Controller reconnects with exponential backoff unless the close code forbids it.
package connection
