package eventstore

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// SerializedObject is the wire form of a payload produced by a Serializer:
// a declared type+revision plus the serialized bytes (§6 Serializer).
type SerializedObject struct {
	Type PayloadType
	Data []byte
}

// EventCodec defines how a single event type is encoded/decoded for
// persistence. Each payload type+revision registers its own codec with a
// Serializer.
type EventCodec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte) (any, error)
}

// JSONCodec is a generic EventCodec for JSON-based encoding, parametric in
// the concrete Go type T it decodes into.
func JSONCodec[T any]() EventCodec {
	return jsonCodec[T]{}
}

type jsonCodec[T any] struct{}

func (jsonCodec[T]) Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "eventstore: encode json payload")
	}
	return b, nil
}

func (jsonCodec[T]) Decode(b []byte) (any, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, errors.Wrap(err, "eventstore: decode json payload")
	}
	return v, nil
}

type typeKey struct {
	name     string
	revision string
}

// Serializer is the core's seam onto the collaborator interface described in
// §6: serialize/deserialize/classForType, keyed on (type name, revision).
// The zero value is not usable; construct with NewSerializer.
type Serializer struct {
	codecs map[typeKey]EventCodec
}

// NewSerializer creates an empty Serializer. Register event types with
// Register before using it to append or read events.
func NewSerializer() *Serializer {
	return &Serializer{codecs: make(map[typeKey]EventCodec)}
}

// Register associates a (name, revision) payload type with the codec used
// to encode/decode it. Registering the same key twice overwrites the codec.
func (s *Serializer) Register(name, revision string, codec EventCodec) {
	s.codecs[typeKey{name: name, revision: revision}] = codec
}

// RegisterCurrent registers a codec at the current (non-upcasted) revision
// "0" — the common case for an event type with a single known shape.
func (s *Serializer) RegisterCurrent(name string, codec EventCodec) {
	s.Register(name, "0", codec)
}

// Resolvable reports whether classForType(t) would succeed, i.e. whether a
// codec is registered for t. This is the hook the entry store / stream
// assembler use to classify UnknownSerializedType without attempting a
// decode.
func (s *Serializer) Resolvable(t PayloadType) bool {
	_, ok := s.codecs[typeKey{name: t.Name, revision: t.Revision}]
	return ok
}

// Serialize encodes v under the given payload type.
func (s *Serializer) Serialize(v any, t PayloadType) (SerializedObject, error) {
	codec, ok := s.codecs[typeKey{name: t.Name, revision: t.Revision}]
	if !ok {
		return SerializedObject{}, errors.Errorf("eventstore: no codec registered for %s", t)
	}
	data, err := codec.Encode(v)
	if err != nil {
		return SerializedObject{}, err
	}
	return SerializedObject{Type: t, Data: data}, nil
}

// Deserialize decodes a SerializedObject back into its domain event value.
// If no codec is registered for obj.Type, it returns an
// *UnknownSerializedTypeError, which callers (readEvents vs visitEvents)
// handle differently per §4.D/§7.
func (s *Serializer) Deserialize(obj SerializedObject) (any, error) {
	codec, ok := s.codecs[typeKey{name: obj.Type.Name, revision: obj.Type.Revision}]
	if !ok {
		return nil, &UnknownSerializedTypeError{PayloadType: obj.Type}
	}
	v, err := codec.Decode(obj.Data)
	if err != nil {
		return nil, errors.Wrapf(err, "eventstore: decode %s", obj.Type)
	}
	return v, nil
}
