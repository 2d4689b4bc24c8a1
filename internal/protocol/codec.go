package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrUnknownCodec is returned by CodecByName.
var ErrUnknownCodec = errors.New("unknown codec")

// Codec frames commands and replies.
type Codec interface {
	// Name is the codec identifier used in configuration.
	Name() string

	// Encode serializes one outbound command.
	Encode(cmd *Command) ([]byte, error)

	// Split separates a transport message into individual frames.
	Split(data []byte) ([][]byte, error)

	// Decode parses one inbound frame.
	Decode(frame []byte) (*Reply, error)

	// EncodeReply serializes a reply. Used by relay fakes and tooling.
	EncodeReply(reply *Reply) ([]byte, error)
}

// CodecByName returns the codec registered under name ("json" or "msgpack").
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// JSONCodec is the default text codec. Batched frames are newline separated.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(cmd *Command) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s command: %w", cmd.Method, err)
	}
	return data, nil
}

func (JSONCodec) Split(data []byte) ([][]byte, error) {
	var frames [][]byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		frames = append(frames, line)
	}
	return frames, nil
}

func (JSONCodec) Decode(frame []byte) (*Reply, error) {
	var reply Reply
	if err := json.Unmarshal(frame, &reply); err != nil {
		return nil, fmt.Errorf("decode json frame: %w", err)
	}
	return &reply, nil
}

func (JSONCodec) EncodeReply(reply *Reply) ([]byte, error) {
	return json.Marshal(reply)
}

// MsgpackCodec is the binary codec. Field names follow the JSON tags; batched frames are
// concatenated msgpack values.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) Encode(cmd *Command) ([]byte, error) {
	data, err := marshalMsgpack(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s command: %w", cmd.Method, err)
	}
	return data, nil
}

func (MsgpackCodec) Split(data []byte) ([][]byte, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	var frames [][]byte
	for {
		raw, err := dec.DecodeRaw()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("split msgpack frames: %w", err)
		}
		frames = append(frames, []byte(raw))
	}
}

func (MsgpackCodec) Decode(frame []byte) (*Reply, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(frame))
	dec.SetCustomStructTag("json")
	var reply Reply
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode msgpack frame: %w", err)
	}
	return &reply, nil
}

func (MsgpackCodec) EncodeReply(reply *Reply) ([]byte, error) {
	return marshalMsgpack(reply)
}

func marshalMsgpack(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
