package model

import (
	"time"

	"github.com/google/uuid"
)

// Publication is one channel payload as received by a client session.
type Publication struct {
	ID         uuid.UUID // Primary key, assigned on receipt
	SessionID  string    // Controller session that received it
	Channel    string    // Relay channel
	Kind       string    // Envelope "type" field of JSON payloads, "" otherwise
	Payload    []byte    // Payload bytes as delivered
	ReceivedAt int64     // Receive timestamp (µs since epoch)
}

// NewPublication stamps a payload with a fresh id and receive time.
func NewPublication(sessionID, channel string, payload []byte, receivedAt time.Time) Publication {
	return Publication{
		ID:         uuid.New(),
		SessionID:  sessionID,
		Channel:    channel,
		Payload:    payload,
		ReceivedAt: receivedAt.UnixMicro(),
	}
}

// ReceivedTime returns ReceivedAt as a time.Time.
func (p Publication) ReceivedTime() time.Time {
	return time.UnixMicro(p.ReceivedAt)
}
