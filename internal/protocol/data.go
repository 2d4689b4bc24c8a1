package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// Data is a publication body as received from the relay. Payloads published through the
// relay API are wrapped in a {"payload": "..."} envelope; Payload is set when that envelope
// is present. Raw always holds the undecoded body in the codec's own encoding.
type Data struct {
	Payload *string
	Raw     []byte
}

// TextData returns Data carrying an enveloped text payload.
func TextData(payload string) Data {
	return Data{Payload: &payload}
}

// IsZero reports whether nothing was received.
func (d Data) IsZero() bool {
	return d.Payload == nil && len(d.Raw) == 0
}

// Text returns the enveloped payload, falling back to the raw body.
func (d Data) Text() string {
	if d.Payload != nil {
		return *d.Payload
	}
	return string(d.Raw)
}

// Bytes returns the enveloped payload bytes, falling back to the raw body.
func (d Data) Bytes() []byte {
	if d.Payload != nil {
		return []byte(*d.Payload)
	}
	return d.Raw
}

func (d Data) MarshalJSON() ([]byte, error) {
	if len(d.Raw) > 0 {
		return d.Raw, nil
	}
	if d.Payload != nil {
		return json.Marshal(struct {
			Payload string `json:"payload"`
		}{*d.Payload})
	}
	return []byte("null"), nil
}

func (d *Data) UnmarshalJSON(b []byte) error {
	*d = Data{}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	d.Raw = append([]byte(nil), trimmed...)
	if p := gjson.GetBytes(d.Raw, "payload"); p.Type == gjson.String {
		s := p.String()
		d.Payload = &s
	}
	return nil
}

func (d Data) EncodeMsgpack(enc *msgpack.Encoder) error {
	if len(d.Raw) > 0 {
		return enc.Encode(msgpack.RawMessage(d.Raw))
	}
	if d.Payload != nil {
		return enc.Encode(map[string]string{"payload": *d.Payload})
	}
	return enc.EncodeNil()
}

func (d *Data) DecodeMsgpack(dec *msgpack.Decoder) error {
	*d = Data{}
	raw, err := dec.DecodeRaw()
	if err != nil {
		return err
	}
	if len(raw) == 0 || (len(raw) == 1 && raw[0] == msgpcode.Nil) {
		return nil
	}
	d.Raw = append([]byte(nil), raw...)

	var envelope struct {
		Payload *string `msgpack:"payload"`
	}
	if err := msgpack.Unmarshal(d.Raw, &envelope); err == nil && envelope.Payload != nil {
		d.Payload = envelope.Payload
	}
	return nil
}
