package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

func Encode(t string, payload any) ([]byte, error) {
	return encode(t, 0, payload)
}

// EncodeAck builds the reply to request id.
func EncodeAck(id int64, ack Ack) ([]byte, error) {
	return encode(MsgAck, id, ack)
}

func encode(t string, id int64, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("trying to encode envelope type nil")
	}
	if payload == nil {
		return nil, fmt.Errorf("trying to encode nil payload")
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return json.Marshal(Envelope{T: t, ID: id, P: pb})
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("decode envelope: empty frame")
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if e.T == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return e, nil
}

func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.P) == 0 {
		return out, fmt.Errorf("empty payload for type %q", env.T)
	}
	if err := json.Unmarshal(env.P, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", env.T, err)
	}
	return out, nil
}

// binaryEnvelope mirrors Envelope for msgpack frames; the payload is
// embedded directly instead of as raw JSON.
type binaryEnvelope struct {
	T string `json:"t"`
	P any    `json:"p"`
}

// EncodeMsgpack encodes a frame as msgpack using the same field names as the
// JSON encoding.
func EncodeMsgpack(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("trying to encode envelope type nil")
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(binaryEnvelope{T: t, P: payload}); err != nil {
		return nil, fmt.Errorf("encode %s msgpack: %w", t, err)
	}
	return buf.Bytes(), nil
}

// DecodeMsgpack decodes a frame produced by EncodeMsgpack into out and
// returns its type.
func DecodeMsgpack(b []byte, out any) (string, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	var env struct {
		T string             `json:"t"`
		P msgpack.RawMessage `json:"p"`
	}
	if err := dec.Decode(&env); err != nil {
		return "", fmt.Errorf("decode msgpack envelope: %w", err)
	}
	pd := msgpack.NewDecoder(bytes.NewReader(env.P))
	pd.SetCustomStructTag("json")
	if err := pd.Decode(out); err != nil {
		return env.T, fmt.Errorf("decode %s msgpack payload: %w", env.T, err)
	}
	return env.T, nil
}
