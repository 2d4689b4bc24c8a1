// Package protocol defines the relay wire messages and the codecs that frame them.
//
// Every outbound command carries {id, method, params}. Replies echo the command id;
// unsolicited server messages have id 0 and are either pushes (result.type > 0) or
// ordinary channel publications. A single transport message may batch several frames:
// JSON frames are newline separated, msgpack frames are concatenated values.
package protocol
